// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

import "net/netip"

// isICMPError reports whether an ICMPv4 type carries an embedded
// offending datagram that itself needs recursive translation.
func isICMPv4Error(t uint8) bool {
	switch t {
	case icmp4DestUnreach, icmp4TimeExceeded, icmp4ParamProblem:
		return true
	}
	return false
}

func isICMPv6Error(t uint8) bool {
	switch t {
	case icmp6DestUnreach, icmp6PacketTooBig, icmp6TimeExceeded, icmp6ParamProblem:
		return true
	}
	return false
}

// translateICMP4to6 translates an ICMPv4 segment (type/code/checksum/
// rest-of-header/body) into its ICMPv6 equivalent per RFC 6145 §4.2,
// addressed from newSrc to newDst (the already-translated outer IPv6
// endpoints). depth is the current embedded-packet recursion depth;
// error messages recurse into their embedded datagram only at depth 0;
// recursion depth is capped at 1.
func (t *Translator) translateICMP4to6(seg []byte, newSrc, newDst netip.Addr, depth int, mtuBudget int) ([]byte, dropReason) {
	typ, code, rest, body, err := parseICMPHeader(seg)
	if err != nil {
		return nil, reasonHeaderMalformed
	}

	newType, newCode, ok := icmp4to6TypeCode(typ, code)
	if !ok {
		return nil, reasonICMPDropped
	}

	switch {
	case typ == icmp4EchoRequest || typ == icmp4EchoReply:
		out := buildICMPHeader(newType, newCode, rest)
		out = append(out, body...)
		recomputeICMP6Checksum(out, newSrc, newDst)
		return out, ""

	case typ == icmp4ParamProblem:
		// rest[0] is the IPv4 option pointer; RFC 6145 §4.2 maps it
		// through a small fixed table for the handful of pointer
		// values that have a clean IPv6 equivalent.
		ptr, ok := icmp4ParamPointerToV6(rest[0])
		if !ok {
			return nil, reasonICMPDropped
		}
		var newRest [4]byte
		newRest[3] = ptr
		out := buildICMPHeader(newType, newCode, newRest)
		out = append(out, t.translateEmbeddedForError4to6(body, depth, mtuBudget)...)
		recomputeICMP6Checksum(out, newSrc, newDst)
		return out, ""

	case typ == icmp4DestUnreach && code == icmp4DUFragNeeded:
		// rest[2:4] carries the next-hop MTU; widen it by the header
		// size delta the v4->v6 direction adds.
		mtu := uint16(rest[2])<<8 | uint16(rest[3])
		newMTU := ptbMTUFor6to4Value(int(mtu))
		var newRest [4]byte
		newRest[2], newRest[3] = byte(newMTU>>8), byte(newMTU)
		out := buildICMPHeader(newType, newCode, newRest)
		out = append(out, t.translateEmbeddedForError4to6(body, depth, mtuBudget)...)
		recomputeICMP6Checksum(out, newSrc, newDst)
		return out, ""

	case typ == icmp4DestUnreach && code == icmp4DUProtoUnreach:
		// Protocol Unreachable becomes a Parameter Problem whose pointer
		// names the IPv6 Next Header field (byte offset 6).
		var newRest [4]byte
		newRest[3] = 6
		out := buildICMPHeader(newType, newCode, newRest)
		out = append(out, t.translateEmbeddedForError4to6(body, depth, mtuBudget)...)
		recomputeICMP6Checksum(out, newSrc, newDst)
		return out, ""

	case isICMPv4Error(typ):
		out := buildICMPHeader(newType, newCode, [4]byte{})
		out = append(out, t.translateEmbeddedForError4to6(body, depth, mtuBudget)...)
		recomputeICMP6Checksum(out, newSrc, newDst)
		return out, ""

	default:
		return nil, reasonICMPDropped
	}
}

// translateICMP6to4 is the inverse of translateICMP4to6, per RFC 6145
// §4.3.
func (t *Translator) translateICMP6to4(seg []byte, newSrc, newDst netip.Addr, depth int, mtuBudget int) ([]byte, dropReason) {
	typ, code, rest, body, err := parseICMPHeader(seg)
	if err != nil {
		return nil, reasonHeaderMalformed
	}
	if isNeighborDiscovery(typ) {
		return nil, reasonICMPDropped
	}

	newType, newCode, ok := icmp6to4TypeCode(typ, code)
	if !ok {
		return nil, reasonICMPDropped
	}

	switch {
	case typ == icmp6EchoRequest || typ == icmp6EchoReply:
		out := buildICMPHeader(newType, newCode, rest)
		out = append(out, body...)
		recomputeICMP4Checksum(out)
		return out, ""

	case typ == icmp6PacketTooBig:
		mtu := uint32(rest[0])<<24 | uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3])
		newMTU := fragNeededMTUFor4to6Value(int(mtu))
		var newRest [4]byte
		newRest[2], newRest[3] = byte(newMTU>>8), byte(newMTU)
		out := buildICMPHeader(newType, newCode, newRest)
		out = append(out, t.translateEmbeddedForError6to4(body, depth, mtuBudget)...)
		recomputeICMP4Checksum(out)
		return out, ""

	case typ == icmp6ParamProblem:
		ptr := uint32(rest[0])<<24 | uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3])
		newPtr, ok := icmp6ParamPointerToV4(ptr)
		if !ok {
			return nil, reasonICMPDropped
		}
		var newRest [4]byte
		newRest[0] = newPtr
		out := buildICMPHeader(newType, newCode, newRest)
		out = append(out, t.translateEmbeddedForError6to4(body, depth, mtuBudget)...)
		recomputeICMP4Checksum(out)
		return out, ""

	case isICMPv6Error(typ):
		out := buildICMPHeader(newType, newCode, [4]byte{})
		out = append(out, t.translateEmbeddedForError6to4(body, depth, mtuBudget)...)
		recomputeICMP4Checksum(out)
		return out, ""

	default:
		return nil, reasonICMPDropped
	}
}

// translateEmbeddedForError4to6 recurses into the offending datagram
// carried by an ICMPv4 error, bounded to depth < maxRecursionDepth. At
// the cap, or on a too-short/unparseable embed, the body is dropped
// rather than forwarded untranslated, since an address-family-mismatched
// embedded packet is worse than an ICMP message with a truncated body.
func (t *Translator) translateEmbeddedForError4to6(body []byte, depth int, mtuBudget int) []byte {
	if depth >= maxRecursionDepth || len(body) < embeddedMinBytes {
		return nil
	}
	out, ok := t.translateEmbedded4to6(body, mtuBudget)
	if !ok {
		return nil
	}
	return out
}

func (t *Translator) translateEmbeddedForError6to4(body []byte, depth int, mtuBudget int) []byte {
	if depth >= maxRecursionDepth || len(body) < 48 { // 40-byte v6 header + 8 bytes
		return nil
	}
	out, ok := t.translateEmbedded6to4(body, mtuBudget)
	if !ok {
		return nil
	}
	return out
}

// icmp4ParamPointerToV6 maps the subset of ICMPv4 Parameter Problem
// pointer values RFC 6145 §4.2 gives a clean IPv6 field for.
func icmp4ParamPointerToV6(p uint8) (uint8, bool) {
	switch p {
	case 0:
		return 0, true // version/IHL -> version/traffic class
	case 1:
		return 1, true // TOS -> traffic class
	case 2, 3:
		return 4, true // total length -> payload length
	case 8:
		return 7, true // TTL -> hop limit
	case 9:
		return 6, true // protocol -> next header
	case 12:
		return 8, true // source address
	case 16:
		return 24, true // destination address
	}
	return 0, false
}

// icmp6ParamPointerToV4 is the inverse table.
func icmp6ParamPointerToV4(p uint32) (uint8, bool) {
	switch p {
	case 0:
		return 0, true
	case 1:
		return 1, true
	case 4:
		return 2, true
	case 6:
		return 9, true
	case 7:
		return 8, true
	case 8:
		return 12, true
	case 24:
		return 16, true
	}
	return 0, false
}

// ptbMTUFor6to4Value and fragNeededMTUFor4to6Value apply the same
// +/-20 header-size delta as fragment.go's egress-MTU variants, but to
// an MTU value already carried in an upstream ICMP message being
// relayed rather than computed from the local egress MTU.
func ptbMTUFor6to4Value(mtu int) uint32 {
	v := mtu + mtuDelta
	if v < icmpv6MinMTU {
		v = icmpv6MinMTU
	}
	return uint32(v)
}

func fragNeededMTUFor4to6Value(mtu int) uint16 {
	v := mtu - mtuDelta
	if v < 0 {
		v = 0
	}
	return uint16(v)
}
