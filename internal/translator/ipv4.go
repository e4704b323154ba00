// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

import (
	"net/netip"

	xerrors "grimm.is/flywall/internal/errors"
)

const (
	protoICMP   = 1
	protoTCP    = 6
	protoUDP    = 17
	protoICMPv6 = 58
)

const (
	flagDF = 0x2
	flagMF = 0x1
)

// ipv4Header is the parsed form of a 20-byte-minimum IPv4 header.
type ipv4Header struct {
	TOS         byte
	TotalLength uint16
	ID          uint16
	Flags       uint8
	FragOffset  uint16 // in 8-byte units
	TTL         uint8
	Protocol    uint8
	Src         netip.Addr
	Dst         netip.Addr
	HeaderLen   int
}

func (h *ipv4Header) df() bool { return h.Flags&flagDF != 0 }
func (h *ipv4Header) mf() bool { return h.Flags&flagMF != 0 }

// parseIPv4 validates and parses b as an IPv4 datagram, returning the
// header and the remaining bytes (the upper-layer segment, truncated
// to TotalLength). Options are rejected: the translator is a pure
// forwarder with no local ICMP origination path for option errors.
func parseIPv4(b []byte) (*ipv4Header, []byte, error) {
	if len(b) < 20 {
		return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "ipv4 datagram shorter than minimum header")
	}
	version := b[0] >> 4
	ihl := int(b[0] & 0x0f)
	if version != 4 {
		return nil, nil, xerrors.Errorf(xerrors.KindHeaderMalformed, "unexpected ip version %d in ipv4 path", version)
	}
	if ihl < 5 {
		return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "ipv4 ihl below minimum")
	}
	headerLen := ihl * 4
	if headerLen > len(b) {
		return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "ipv4 header length exceeds buffer")
	}
	if ihl > 5 {
		return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "ipv4 options are not supported")
	}

	totalLength := uint16(b[2])<<8 | uint16(b[3])
	if int(totalLength) > len(b) {
		return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "ipv4 total length exceeds buffer")
	}

	if checksum(b[:headerLen]) != 0 {
		return nil, nil, xerrors.New(xerrors.KindChecksumInvalid, "ipv4 header checksum invalid")
	}

	flagsFrag := uint16(b[6])<<8 | uint16(b[7])

	h := &ipv4Header{
		TOS:         b[1],
		TotalLength: totalLength,
		ID:          uint16(b[4])<<8 | uint16(b[5]),
		Flags:       uint8(flagsFrag >> 13),
		FragOffset:  flagsFrag & 0x1fff,
		TTL:         b[8],
		Protocol:    b[9],
		Src:         netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]}),
		Dst:         netip.AddrFrom4([4]byte{b[16], b[17], b[18], b[19]}),
		HeaderLen:   headerLen,
	}
	return h, b[headerLen:int(totalLength)], nil
}

// buildIPv4Header synthesizes a 20-byte IPv4 header for the v6→v4
// direction, writing its checksum in place.
func buildIPv4Header(h *ipv4Header, payloadLen int) []byte {
	out := make([]byte, 20)
	out[0] = 0x45
	out[1] = h.TOS
	total := uint16(20 + payloadLen)
	out[2] = byte(total >> 8)
	out[3] = byte(total)
	out[4] = byte(h.ID >> 8)
	out[5] = byte(h.ID)
	flagsFrag := uint16(h.Flags)<<13 | h.FragOffset
	out[6] = byte(flagsFrag >> 8)
	out[7] = byte(flagsFrag)
	out[8] = h.TTL
	out[9] = h.Protocol
	s4 := h.Src.As4()
	d4 := h.Dst.As4()
	copy(out[12:16], s4[:])
	copy(out[16:20], d4[:])

	cs := checksum(out)
	out[10] = byte(cs >> 8)
	out[11] = byte(cs)
	return out
}
