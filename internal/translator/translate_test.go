// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/addrmap"
	"grimm.is/flywall/internal/clock"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/pool"
)

func testValidated(t *testing.T, cfg config.Config) *config.Validated {
	t.Helper()
	v, err := config.Validate(cfg)
	require.NoError(t, err)
	return v
}

func baseTranslatorCfg() config.Config {
	return config.Config{
		TunDevice:   "nat64",
		IPv4Addr:    "198.51.100.1",
		IPv6Addr:    "2001:db8::1",
		Prefix:      "64:ff9b::/96",
		DynamicPool: "198.51.100.0/24",
		Maps: []config.MapEntry{
			{V4: "203.0.113.5", V6: "2001:db8:1::5"},
		},
	}
}

func newTestTranslator(t *testing.T, cfg config.Config) *Translator {
	t.Helper()
	v := testValidated(t, cfg)
	m, err := addrmap.New(v)
	require.NoError(t, err)
	return New(v, m, nil)
}

// udpV6Datagram builds a minimal 40-byte-header IPv6/UDP datagram with
// a correctly computed checksum, for the v6->v4 dynamic-pool scenario.
func udpV6Datagram(t *testing.T, src, dst netip.Addr, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	udp := make([]byte, 8+len(payload))
	udp[0], udp[1] = byte(sport>>8), byte(sport)
	udp[2], udp[3] = byte(dport>>8), byte(dport)
	l := uint16(len(udp))
	udp[4], udp[5] = byte(l>>8), byte(l)
	copy(udp[8:], payload)
	pseudo := pseudoHeaderBytes6(src, dst, protoUDP, uint32(len(udp)))
	cs := checksumWithPseudo(pseudo, udp)
	udp[6], udp[7] = byte(cs>>8), byte(cs)

	h := &ipv6Header{HopLimit: 64, Src: src, Dst: dst}
	pkt := buildIPv6Header(h, protoUDP, len(udp))
	return append(pkt, udp...)
}

func tcpV4Datagram(t *testing.T, src, dst netip.Addr, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	tcp := make([]byte, 20+len(payload))
	tcp[0], tcp[1] = byte(sport>>8), byte(sport)
	tcp[2], tcp[3] = byte(dport>>8), byte(dport)
	tcp[12] = 5 << 4 // data offset, no options
	copy(tcp[20:], payload)
	pseudo4 := pseudoHeaderWords4(src, dst, protoTCP, uint16(len(tcp)))
	cs := checksumOverWordsAndBytes(pseudo4, tcp)
	tcp[16], tcp[17] = byte(cs>>8), byte(cs)

	h := &ipv4Header{TTL: 64, Protocol: protoTCP, Src: src, Dst: dst}
	out := buildIPv4Header(h, len(tcp))
	return append(out, tcp...)
}

// checksumOverWordsAndBytes folds precomputed pseudo-header words
// together with a byte segment into one RFC 1071 checksum, for test
// fixtures that need the real on-wire TCP checksum.
func checksumOverWordsAndBytes(words []uint16, segment []byte) uint16 {
	var sum uint32
	for _, w := range words {
		sum += uint32(w)
	}
	n := len(segment)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(segment[i])<<8 | uint32(segment[i+1])
	}
	if n%2 == 1 {
		sum += uint32(segment[n-1]) << 8
	}
	return ^foldCarries(sum)
}

func TestHandleIPv6_UDPDynamicPool(t *testing.T) {
	tr := newTestTranslator(t, baseTranslatorCfg())
	p, err := pool.New(tr.cfg, clock.System, tr.addrMap)
	require.NoError(t, err)
	tr.addrMap.SetAllocator(p)

	client := netip.MustParseAddr("2001:db8:1::100")
	remote6 := netip.MustParseAddr("64:ff9b::cb00:7109") // embeds 203.0.113.9
	pkt := udpV6Datagram(t, client, remote6, 33000, 53, []byte("hello"))

	out := tr.HandleIPv6(pkt)
	require.Len(t, out, 1)
	require.Equal(t, FamilyIPv4, out[0].Family)

	h, payload, err := parseIPv4(out[0].Bytes)
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("203.0.113.9"), h.Dst)
	require.Equal(t, uint8(protoUDP), h.Protocol)
	require.Equal(t, uint8(63), h.TTL)
	require.True(t, h.Src.Is4())
	require.Equal(t, []byte("hello"), payload[8:])
}

func TestHandleIPv4_TCPStaticMap(t *testing.T) {
	tr := newTestTranslator(t, baseTranslatorCfg())

	remote4 := netip.MustParseAddr("203.0.113.9")
	mapped4 := netip.MustParseAddr("203.0.113.5")
	pkt := tcpV4Datagram(t, remote4, mapped4, 443, 51000, []byte("payload"))

	out := tr.HandleIPv4(pkt)
	require.Len(t, out, 1)
	require.Equal(t, FamilyIPv6, out[0].Family)

	h, _, err := parseIPv6(out[0].Bytes, false)
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("2001:db8:1::5"), h.Dst)
	require.Equal(t, uint8(protoTCP), h.NextHeader)
	require.Equal(t, uint8(63), h.HopLimit)
}

func TestHandleIPv6_WKPFStrictDropsPrivateEmbedding(t *testing.T) {
	cfg := baseTranslatorCfg()
	cfg.WKPFStrict = true
	tr := newTestTranslator(t, cfg)

	client := netip.MustParseAddr("2001:db8:1::100")
	privateRemote := netip.MustParseAddr("64:ff9b::0a00:0001") // embeds 10.0.0.1
	pkt := udpV6Datagram(t, client, privateRemote, 1000, 2000, []byte("x"))

	out := tr.HandleIPv6(pkt)
	require.Nil(t, out)
}

func TestHandleIPv6_ICMPEcho(t *testing.T) {
	tr := newTestTranslator(t, baseTranslatorCfg())

	client := netip.MustParseAddr("2001:db8:1::5") // statically mapped
	remote6 := netip.MustParseAddr("64:ff9b::cb00:7109")

	icmp := buildICMPHeader(icmp6EchoRequest, 0, [4]byte{0x12, 0x34, 0x00, 0x01})
	icmp = append(icmp, []byte("ping")...)
	recomputeICMP6Checksum(icmp, client, remote6)

	h := &ipv6Header{HopLimit: 64, Src: client, Dst: remote6}
	pkt := append(buildIPv6Header(h, protoICMPv6, len(icmp)), icmp...)

	out := tr.HandleIPv6(pkt)
	require.Len(t, out, 1)
	require.Equal(t, FamilyIPv4, out[0].Family)

	h4, payload, err := parseIPv4(out[0].Bytes)
	require.NoError(t, err)
	require.Equal(t, uint8(protoICMP), h4.Protocol)
	require.Equal(t, uint8(icmp4EchoRequest), payload[0])
}

func TestHandleIPv4_TTLExpiredRepliesTimeExceeded(t *testing.T) {
	tr := newTestTranslator(t, baseTranslatorCfg())

	remote4 := netip.MustParseAddr("203.0.113.9")
	mapped4 := netip.MustParseAddr("203.0.113.5")
	tcp := make([]byte, 20)
	tcp[0], tcp[1] = 1, 187 // sport 443
	tcp[2], tcp[3] = 199, 56
	tcp[12] = 5 << 4
	pseudo4 := pseudoHeaderWords4(remote4, mapped4, protoTCP, uint16(len(tcp)))
	cs := checksumOverWordsAndBytes(pseudo4, tcp)
	tcp[16], tcp[17] = byte(cs>>8), byte(cs)
	h := &ipv4Header{TTL: 1, Protocol: protoTCP, Src: remote4, Dst: mapped4}
	pkt := append(buildIPv4Header(h, len(tcp)), tcp...)

	out := tr.HandleIPv4(pkt)
	require.Len(t, out, 1)
	require.Equal(t, FamilyIPv4, out[0].Family)

	h, payload, err := parseIPv4(out[0].Bytes)
	require.NoError(t, err)
	require.Equal(t, uint8(protoICMP), h.Protocol)
	require.Equal(t, uint8(icmp4TimeExceeded), payload[0])
	require.Equal(t, tr.cfg.OwnV4, h.Src)
	require.Equal(t, remote4, h.Dst)
}

func TestHandleIPv6_UnsupportedProtocolDropped(t *testing.T) {
	tr := newTestTranslator(t, baseTranslatorCfg())

	client := netip.MustParseAddr("2001:db8:1::100")
	remote6 := netip.MustParseAddr("64:ff9b::cb00:7109")
	h := &ipv6Header{HopLimit: 64, Src: client, Dst: remote6}
	pkt := append(buildIPv6Header(h, 132 /* SCTP */, 4), 0, 0, 0, 0)

	out := tr.HandleIPv6(pkt)
	require.Nil(t, out)
}

func TestHandleIPv4_FragmentedNonInitialPassesThroughAddressOnly(t *testing.T) {
	tr := newTestTranslator(t, baseTranslatorCfg())

	remote4 := netip.MustParseAddr("203.0.113.9")
	mapped4 := netip.MustParseAddr("203.0.113.5")

	body := make([]byte, 64)
	h := &ipv4Header{Protocol: protoUDP, TTL: 64, Src: remote4, Dst: mapped4, FragOffset: 100, Flags: 0, ID: 42}
	pkt := buildIPv4Header(h, len(body))
	pkt = append(pkt, body...)

	out := tr.HandleIPv4(pkt)
	require.Len(t, out, 1)
	require.Equal(t, FamilyIPv6, out[0].Family)

	h6, _, err := parseIPv6(out[0].Bytes, false)
	require.NoError(t, err)
	require.True(t, h6.Frag.Present)
	require.Equal(t, uint16(100), h6.Frag.FragOffset)
}

func TestEmbeddedICMPErrorTooShortEmbedOmitted(t *testing.T) {
	// A Time Exceeded message whose embedded datagram is itself too
	// short to parse must not propagate an error; the embed is simply
	// omitted rather than causing the outer translation to fail.
	tr := newTestTranslator(t, baseTranslatorCfg())

	client := netip.MustParseAddr("2001:db8:1::5") // statically mapped
	remote6 := netip.MustParseAddr("64:ff9b::cb00:7109")

	icmp := buildICMPHeader(icmp6TimeExceeded, 0, [4]byte{})
	icmp = append(icmp, []byte{0x01, 0x02}...) // too short to be a real embedded v6 header
	recomputeICMP6Checksum(icmp, client, remote6)

	h := &ipv6Header{HopLimit: 64, Src: client, Dst: remote6}
	pkt := append(buildIPv6Header(h, protoICMPv6, len(icmp)), icmp...)

	out := tr.HandleIPv6(pkt)
	require.Len(t, out, 1)
	h4, payload, err := parseIPv4(out[0].Bytes)
	require.NoError(t, err)
	require.Equal(t, uint8(icmp4TimeExceeded), payload[0])
	require.Equal(t, len(payload), 8) // header only, embed dropped
	_ = h4
}
