// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

// buildLocalTimeExceeded6 constructs a same-family ICMPv6 Time
// Exceeded (hop limit, code 0) reply to a v6 sender whose datagram's
// hop limit would have reached zero, addressed from the translator's
// own configured v6 address. Like every reply built in this file, it
// is sent back in the ingress family from the translator's own
// address; the Packet Too Big / Fragmentation Needed replies below
// differ only in reporting the MTU the datagram would need once
// translated to the other family.
func (t *Translator) buildLocalTimeExceeded6(h *ipv6Header, orig []byte) []byte {
	embed := orig
	if len(embed) > 1232 {
		embed = embed[:1232]
	}
	out := append(buildICMPHeader(icmp6TimeExceeded, 0, [4]byte{}), embed...)
	recomputeICMP6Checksum(out, t.cfg.OwnV6, h.Src)
	hh := &ipv6Header{HopLimit: 64, Src: t.cfg.OwnV6, Dst: h.Src}
	pkt := buildIPv6Header(hh, protoICMPv6, len(out))
	return append(pkt, out...)
}

// buildLocalTimeExceeded4 is the IPv4 counterpart for a v4 datagram
// whose TTL would reach zero.
func (t *Translator) buildLocalTimeExceeded4(h *ipv4Header, orig []byte) []byte {
	embed := orig
	if len(embed) > 28 {
		embed = embed[:28]
	}
	out := buildICMPHeader(icmp4TimeExceeded, 0, [4]byte{})
	out = append(out, embed...)
	recomputeICMP4Checksum(out)
	hh := &ipv4Header{TTL: 64, Protocol: protoICMP, Src: t.cfg.OwnV4, Dst: h.Src}
	pkt := buildIPv4Header(hh, len(out))
	return append(pkt, out...)
}

// buildLocalPacketTooBig6 constructs an ICMPv6 Packet Too Big reply for
// a v6 datagram that, once translated to v4, would exceed the egress
// MTU. IPv6 has no DF-equivalent: a v6 stack never sends an
// on-path-fragmentable datagram, so oversize always routes through
// PTB rather than IPv6 fragmentation.
func (t *Translator) buildLocalPacketTooBig6(h *ipv6Header, orig []byte) []byte {
	embed := orig
	if len(embed) > 1232 {
		embed = embed[:1232]
	}
	mtu := ptbMTUFor6to4(t.cfg.OfflinkMTU)
	var rest [4]byte
	rest[0], rest[1] = byte(mtu>>24), byte(mtu>>16)
	rest[2], rest[3] = byte(mtu>>8), byte(mtu)
	out := append(buildICMPHeader(icmp6PacketTooBig, 0, rest), embed...)
	recomputeICMP6Checksum(out, t.cfg.OwnV6, h.Src)
	hh := &ipv6Header{HopLimit: 64, Src: t.cfg.OwnV6, Dst: h.Src}
	pkt := buildIPv6Header(hh, protoICMPv6, len(out))
	return append(pkt, out...)
}

// buildLocalFragNeeded4 is the inverse for a v4 sender whose DF=1
// datagram would, once translated to v6, exceed the egress MTU.
func (t *Translator) buildLocalFragNeeded4(h *ipv4Header, orig []byte) []byte {
	embed := orig
	if len(embed) > 28 {
		embed = embed[:28]
	}
	mtu := fragNeededMTUFor4to6(t.cfg.OfflinkMTU)
	var rest [4]byte
	rest[2], rest[3] = byte(mtu>>8), byte(mtu)
	out := append(buildICMPHeader(icmp4DestUnreach, icmp4DUFragNeeded, rest), embed...)
	recomputeICMP4Checksum(out)
	hh := &ipv4Header{TTL: 64, Protocol: protoICMP, Src: t.cfg.OwnV4, Dst: h.Src}
	pkt := buildIPv4Header(hh, len(out))
	return append(pkt, out...)
}
