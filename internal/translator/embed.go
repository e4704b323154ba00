// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

import (
	"net/netip"
)

// embeddedMinBytes is the smallest embedded-packet prefix worth
// attempting to translate from an ICMPv4 error: a 20-byte IPv4 header
// plus 8 bytes of upper-layer data, the classic "IP header + 8 bytes"
// envelope RFC 792 guarantees ICMPv4 carries. The ICMPv6 path checks
// its own 48-byte minimum (40-byte IPv6 header plus 8 bytes).
const embeddedMinBytes = 28

// translateEmbedded4to6 translates the IPv4 packet embedded in an
// ICMPv4 error message into its IPv6 form, as a bounded single-level
// recursion: addresses are translated, the transport
// checksum is adjusted incrementally where enough of the transport
// header survived truncation, and the result is capped at budget
// bytes. The embedded packet describes the same flow direction as the
// enclosing ICMPv4 message (v4→v6), but with source and destination
// roles swapped relative to the outer packet: the embedded source is
// the translator's own tracked client (must resolve to an explicit
// binding) and the embedded destination is the generic remote v4 host
// (ordinarily RFC 6052-embedded).
func (t *Translator) translateEmbedded4to6(seg []byte, budget int) ([]byte, bool) {
	if len(seg) < 20 {
		return nil, false
	}
	ihl := int(seg[0]&0x0f) * 4
	if ihl < 20 || ihl > len(seg) {
		return nil, false
	}
	totalLen := int(uint16(seg[2])<<8 | uint16(seg[3]))
	body := seg[ihl:]
	if totalLen > ihl && totalLen-ihl < len(body) {
		body = body[:totalLen-ihl]
	}

	embSrc := netip.AddrFrom4([4]byte{seg[12], seg[13], seg[14], seg[15]})
	embDst := netip.AddrFrom4([4]byte{seg[16], seg[17], seg[18], seg[19]})
	protocol := seg[9]

	// Swap roles: the embedded destination resolves generically, the
	// embedded source must already be a tracked binding.
	dst6, src6, err := t.addrMap.Translate4to6(embDst, embSrc)
	if err != nil {
		return nil, false
	}

	upperOut := protocol
	if protocol == protoICMP {
		upperOut = protoICMPv6
	}

	if protocol == protoTCP || protocol == protoUDP {
		adjustEmbeddedTransportChecksum4to6(body, embSrc, embDst, src6, dst6, protocol)
	}

	h6 := &ipv6Header{TrafficClass: seg[1], HopLimit: seg[8], Src: src6, Dst: dst6}
	out := append(buildIPv6Header(h6, upperOut, len(body)), body...)
	if len(out) > budget {
		out = out[:budget]
	}
	return out, true
}

// translateEmbedded6to4 is the inverse of translateEmbedded4to6 for an
// embedded packet found inside an ICMPv6 error message (v6→v4
// direction), with the same role swap: the embedded destination is the
// translator's own client and resolves through its binding, while the
// embedded source is the remote host and resolves generically
// (ordinarily via RFC 6052 extraction).
func (t *Translator) translateEmbedded6to4(seg []byte, budget int) ([]byte, bool) {
	if len(seg) < 40 {
		return nil, false
	}
	payloadLen := int(uint16(seg[4])<<8 | uint16(seg[5]))
	body := seg[40:]
	if payloadLen < len(body) {
		body = body[:payloadLen]
	}
	protocol := seg[6]

	embSrc := netip.AddrFrom16([16]byte(seg[8:24]))
	embDst := netip.AddrFrom16([16]byte(seg[24:40]))

	dst4, src4, err := t.addrMap.Translate6to4(embDst, embSrc)
	if err != nil {
		return nil, false
	}

	upperOut := protocol
	if protocol == protoICMPv6 {
		upperOut = protoICMP
	}

	if protocol == protoTCP || protocol == protoUDP {
		adjustEmbeddedTransportChecksum6to4(body, embSrc, embDst, src4, dst4, protocol)
	}

	h4 := &ipv4Header{TOS: seg[0]<<4 | seg[1]>>4, TTL: seg[7], Protocol: upperOut, Src: src4, Dst: dst4}
	out := buildIPv4Header(h4, len(body))
	out = append(out, body...)
	if len(out) > budget {
		out = out[:budget]
	}
	return out, true
}

// transportChecksumOffset returns the byte offset of the checksum
// field within a TCP or UDP header, or -1 if proto is neither.
func transportChecksumOffset(proto uint8) int {
	switch proto {
	case protoTCP:
		return 16
	case protoUDP:
		return 6
	}
	return -1
}

func adjustEmbeddedTransportChecksum4to6(body []byte, oldSrc, oldDst, newSrc, newDst netip.Addr, proto uint8) {
	off := transportChecksumOffset(proto)
	if off < 0 || off+2 > len(body) {
		return
	}
	length := uint16(len(body))
	old := uint16(body[off])<<8 | uint16(body[off+1])
	oldWords := pseudoHeaderWords4(oldSrc, oldDst, proto, length)
	newWords := be16Words(pseudoHeaderBytes6(newSrc, newDst, protoUpperFor(proto), uint32(length)))
	nc := adjustChecksum(old, oldWords, newWords)
	body[off], body[off+1] = byte(nc>>8), byte(nc)
}

func adjustEmbeddedTransportChecksum6to4(body []byte, oldSrc, oldDst, newSrc, newDst netip.Addr, proto uint8) {
	off := transportChecksumOffset(proto)
	if off < 0 || off+2 > len(body) {
		return
	}
	length := uint16(len(body))
	old := uint16(body[off])<<8 | uint16(body[off+1])
	oldWords := be16Words(pseudoHeaderBytes6(oldSrc, oldDst, proto, uint32(length)))
	newWords := pseudoHeaderWords4(newSrc, newDst, proto, length)
	nc := adjustChecksum(old, oldWords, newWords)
	body[off], body[off+1] = byte(nc>>8), byte(nc)
}

// protoUpperFor returns proto unchanged: TCP/UDP's protocol number is
// identical in both pseudo headers, this only exists so the two
// adjust* helpers above read symmetrically at the call site.
func protoUpperFor(proto uint8) uint8 { return proto }
