// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

import (
	"net/netip"

	xerrors "grimm.is/flywall/internal/errors"
)

// ICMPv4 types/codes referenced by the translation tables below.
const (
	icmp4EchoReply             = 0
	icmp4DestUnreach           = 3
	icmp4SourceQuench          = 4
	icmp4Redirect              = 5
	icmp4EchoRequest           = 8
	icmp4TimeExceeded          = 11
	icmp4ParamProblem          = 12

	icmp4DUNetUnreach     = 0
	icmp4DUHostUnreach    = 1
	icmp4DUProtoUnreach   = 2
	icmp4DUPortUnreach    = 3
	icmp4DUFragNeeded     = 4
	icmp4DUAdminProhibit  = 10
)

// ICMPv6 types/codes (RFC 4443).
const (
	icmp6DestUnreach    = 1
	icmp6PacketTooBig   = 2
	icmp6TimeExceeded   = 3
	icmp6ParamProblem   = 4
	icmp6EchoRequest    = 128
	icmp6EchoReply      = 129
	icmp6RouterSolicit  = 133
	icmp6RouterAdvert   = 134
	icmp6NeighborSolicit = 135
	icmp6NeighborAdvert  = 136
	icmp6Redirect        = 137

	icmp6DUNoRoute        = 0
	icmp6DUAdminProhibit  = 1
	icmp6DUBeyondScope    = 2
	icmp6DUAddrUnreach    = 3
	icmp6DUPortUnreach    = 4
)

// isNeighborDiscovery reports whether an ICMPv6 type is one of the
// Neighbor Discovery Protocol messages this translator drops: it is
// an L3 forwarder, not an L2 peer. mdlayher/ndp's own
// message-type table (ndp.RouterSolicitation et al.) enumerates exactly
// this set; reproduced here as a constant range check so this package
// does not need to decode a full NDP message just to classify it.
func isNeighborDiscovery(icmp6Type uint8) bool {
	switch icmp6Type {
	case icmp6RouterSolicit, icmp6RouterAdvert, icmp6NeighborSolicit, icmp6NeighborAdvert, icmp6Redirect:
		return true
	}
	return false
}

// icmp4to6TypeCode maps an ICMPv4 (type, code) to its ICMPv6 equivalent
// per RFC 6145 §4.2. ok is false for types/codes that are silently
// dropped (Redirect, Source Quench, host-precedence violations and
// other codes RFC 6145 has no v6 equivalent for).
func icmp4to6TypeCode(t, c uint8) (newType, newCode uint8, ok bool) {
	switch t {
	case icmp4EchoRequest:
		return icmp6EchoRequest, 0, true
	case icmp4EchoReply:
		return icmp6EchoReply, 0, true
	case icmp4DestUnreach:
		switch c {
		case icmp4DUNetUnreach, icmp4DUHostUnreach, 5, 6, 7, 8, 11, 12:
			return icmp6DestUnreach, icmp6DUNoRoute, true
		case icmp4DUProtoUnreach:
			return icmp6ParamProblem, 1, true // pointer fixed up by caller
		case icmp4DUPortUnreach:
			return icmp6DestUnreach, icmp6DUPortUnreach, true
		case icmp4DUFragNeeded:
			return icmp6PacketTooBig, 0, true
		case 14: // host precedence violation
			return 0, 0, false
		case 9, 10, 13, 15:
			return icmp6DestUnreach, icmp6DUAdminProhibit, true
		default:
			return icmp6DestUnreach, icmp6DUNoRoute, true
		}
	case icmp4TimeExceeded:
		return icmp6TimeExceeded, c, true
	case icmp4ParamProblem:
		switch c {
		case 0, 2:
			return icmp6ParamProblem, 0, true
		case 1:
			return icmp6ParamProblem, 1, true
		}
	}
	return 0, 0, false
}

// icmp6to4TypeCode is the inverse of icmp4to6TypeCode, per RFC 6145 §4.3.
func icmp6to4TypeCode(t, c uint8) (newType, newCode uint8, ok bool) {
	switch t {
	case icmp6EchoRequest:
		return icmp4EchoRequest, 0, true
	case icmp6EchoReply:
		return icmp4EchoReply, 0, true
	case icmp6DestUnreach:
		switch c {
		case icmp6DUNoRoute, icmp6DUBeyondScope, icmp6DUAddrUnreach:
			return icmp4DestUnreach, icmp4DUHostUnreach, true
		case icmp6DUAdminProhibit:
			return icmp4DestUnreach, icmp4DUAdminProhibit, true
		case icmp6DUPortUnreach:
			return icmp4DestUnreach, icmp4DUPortUnreach, true
		default:
			return icmp4DestUnreach, icmp4DUHostUnreach, true
		}
	case icmp6PacketTooBig:
		return icmp4DestUnreach, icmp4DUFragNeeded, true
	case icmp6TimeExceeded:
		return icmp4TimeExceeded, c, true
	case icmp6ParamProblem:
		switch c {
		case 0:
			return icmp4ParamProblem, 0, true
		case 1:
			return icmp4DestUnreach, icmp4DUProtoUnreach, true
		case 2:
			return 0, 0, false // no ICMPv4 equivalent for an unrecognized IPv6 option
		}
	}
	if isNeighborDiscovery(t) {
		return 0, 0, false
	}
	return 0, 0, false
}

// parseICMPHeader splits an ICMP(v4/v6) segment into its 8-byte header
// (type, code, checksum, 4-byte rest-of-header) and body.
func parseICMPHeader(seg []byte) (typ, code uint8, rest [4]byte, body []byte, err error) {
	if len(seg) < 8 {
		return 0, 0, rest, nil, xerrors.New(xerrors.KindHeaderMalformed, "icmp segment shorter than header")
	}
	typ, code = seg[0], seg[1]
	copy(rest[:], seg[4:8])
	return typ, code, rest, seg[8:], nil
}

// buildICMPHeader assembles an 8-byte ICMP(v4/v6) header with the
// checksum left zeroed for the caller to fill in after composing the
// full pseudo-header-covered (v6) or bare (v4) segment.
func buildICMPHeader(typ, code uint8, rest [4]byte) []byte {
	out := make([]byte, 8)
	out[0], out[1] = typ, code
	copy(out[4:8], rest[:])
	return out
}

// recomputeICMP4Checksum fills in seg's checksum field assuming seg is
// type,code,checksum,rest,body with no pseudo-header (RFC 792).
func recomputeICMP4Checksum(seg []byte) {
	seg[2], seg[3] = 0, 0
	cs := checksum(seg)
	seg[2] = byte(cs >> 8)
	seg[3] = byte(cs)
}

// recomputeICMP6Checksum fills in seg's checksum field over the IPv6
// pseudo header plus segment (RFC 4443 §2.3 / RFC 2460 §8.1).
func recomputeICMP6Checksum(seg []byte, src, dst netip.Addr) {
	seg[2], seg[3] = 0, 0
	pseudo := pseudoHeaderBytes6(src, dst, protoICMPv6, uint32(len(seg)))
	cs := checksumWithPseudo(pseudo, seg)
	seg[2] = byte(cs >> 8)
	seg[3] = byte(cs)
}
