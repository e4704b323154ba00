// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

import (
	"net/netip"

	xerrors "grimm.is/flywall/internal/errors"
)

const (
	extHopByHop    = 0
	extRouting     = 43
	extFragment    = 44
	extDestOptions = 60
	extAH          = 51
	extNoNext      = 59
)

// fragInfo is the parsed contents of an IPv6 fragment extension header
// (RFC 8200 §4.5), if one was present in the header chain.
type fragInfo struct {
	Present    bool
	ID         uint32
	FragOffset uint16 // in 8-byte units
	MoreFrags  bool
}

// ipv6Header is the parsed form of a 40-byte IPv6 header plus whatever
// extension headers were walked to find the first upper-layer protocol.
type ipv6Header struct {
	TrafficClass uint8
	PayloadLen   uint16
	NextHeader   uint8 // upper-layer protocol, after walking extensions
	HopLimit     uint8
	Src          netip.Addr
	Dst          netip.Addr

	Frag fragInfo

	// headerLen is the total length in bytes of the base header plus
	// every extension header walked, i.e. the offset of the upper-layer
	// segment.
	headerLen int
}

// parseIPv6 validates and parses b as an IPv6 datagram, walking the
// extension header chain. strictFragHdr rejects a fragment header that
// breaks the canonical RFC 8200 §4.1 ordering (hop-by-hop,
// destination options, routing, fragment, AH, destination options,
// upper layer): a second fragment header, or a hop-by-hop or routing
// header after the fragment header. Destination options may follow
// the fragment header.
func parseIPv6(b []byte, strictFragHdr bool) (*ipv6Header, []byte, error) {
	if len(b) < 40 {
		return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "ipv6 datagram shorter than fixed header")
	}
	version := b[0] >> 4
	if version != 6 {
		return nil, nil, xerrors.Errorf(xerrors.KindHeaderMalformed, "unexpected ip version %d in ipv6 path", version)
	}

	payloadLen := uint16(b[4])<<8 | uint16(b[5])
	if int(payloadLen)+40 > len(b) {
		return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "ipv6 payload length exceeds buffer")
	}

	h := &ipv6Header{
		TrafficClass: (b[0]&0x0f)<<4 | b[1]>>4,
		PayloadLen:   payloadLen,
		HopLimit:     b[7],
		Src:          netip.AddrFrom16([16]byte(b[8:24])),
		Dst:          netip.AddrFrom16([16]byte(b[24:40])),
	}

	next := b[6]
	at := 40
	end := 40 + int(payloadLen)
	seenFragment := false
	seenHopByHop := false
	for {
		switch next {
		case extHopByHop, extDestOptions, extRouting:
			if at+2 > end {
				return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "truncated ipv6 extension header")
			}
			extLen := 8 + int(b[at+1])*8
			if at+extLen > end {
				return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "truncated ipv6 extension header")
			}
			if strictFragHdr && seenFragment && next != extDestOptions {
				return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "hop-by-hop or routing header after fragment header")
			}
			if next == extHopByHop {
				if err := checkHopByHopOptions(b[at : at+extLen]); err != nil {
					return nil, nil, err
				}
				seenHopByHop = true
			}
			next = b[at]
			at += extLen

		case extFragment:
			if at+8 > end {
				return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "truncated ipv6 fragment header")
			}
			if strictFragHdr && seenFragment {
				return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "duplicate ipv6 fragment header")
			}
			offsetFlags := uint16(b[at+2])<<8 | uint16(b[at+3])
			h.Frag = fragInfo{
				Present:    true,
				ID:         uint32(b[at+4])<<24 | uint32(b[at+5])<<16 | uint32(b[at+6])<<8 | uint32(b[at+7]),
				FragOffset: offsetFlags >> 3,
				MoreFrags:  offsetFlags&0x1 != 0,
			}
			seenFragment = true
			next = b[at]
			at += 8

		case extAH:
			if at+2 > end {
				return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "truncated ipv6 AH header")
			}
			extLen := 8 + int(b[at+1])*4
			if at+extLen > end {
				return nil, nil, xerrors.New(xerrors.KindHeaderMalformed, "truncated ipv6 AH header")
			}
			next = b[at]
			at += extLen

		case extNoNext:
			h.NextHeader = extNoNext
			h.headerLen = at
			return h, b[at:end], nil

		default:
			h.NextHeader = next
			h.headerLen = at
			_ = seenHopByHop
			return h, b[at:end], nil
		}
	}
}

// checkHopByHopOptions scans a hop-by-hop options header for an option
// whose "unrecognized" action bits (the top two bits of the option
// type) demand the packet be dropped for an unknown critical option.
func checkHopByHopOptions(hdr []byte) error {
	if len(hdr) < 2 {
		return xerrors.New(xerrors.KindHeaderMalformed, "truncated hop-by-hop options header")
	}
	i := 2
	for i < len(hdr) {
		optType := hdr[i]
		if optType == 0 { // Pad1
			i++
			continue
		}
		if i+1 >= len(hdr) {
			return xerrors.New(xerrors.KindHeaderMalformed, "truncated hop-by-hop option")
		}
		optLen := int(hdr[i+1])
		action := optType >> 6
		if action != 0 && action != 1 {
			// act==2 (discard silently) or act==3 (discard + ICMP): this
			// translator is a pure forwarder, so both collapse to a drop.
			return xerrors.New(xerrors.KindHeaderMalformed, "unrecognized critical hop-by-hop option")
		}
		i += 2 + optLen
	}
	return nil
}

// buildIPv6Header synthesizes a 40-byte IPv6 header for the v4→v6
// direction. Flow label is always zero.
func buildIPv6Header(h *ipv6Header, nextHeader uint8, payloadLen int) []byte {
	out := make([]byte, 40)
	out[0] = 0x60 | (h.TrafficClass >> 4)
	out[1] = h.TrafficClass << 4
	pl := uint16(payloadLen)
	out[4] = byte(pl >> 8)
	out[5] = byte(pl)
	out[6] = nextHeader
	out[7] = h.HopLimit
	s6 := h.Src.As16()
	d6 := h.Dst.As16()
	copy(out[8:24], s6[:])
	copy(out[24:40], d6[:])
	return out
}

// buildFragmentHeader synthesizes an 8-byte IPv6 fragment extension
// header (RFC 8200 §4.5).
func buildFragmentHeader(nextHeader uint8, id uint32, fragOffset uint16, moreFrags bool) []byte {
	out := make([]byte, 8)
	out[0] = nextHeader
	out[1] = 0
	offsetFlags := fragOffset << 3
	if moreFrags {
		offsetFlags |= 0x1
	}
	out[2] = byte(offsetFlags >> 8)
	out[3] = byte(offsetFlags)
	out[4] = byte(id >> 24)
	out[5] = byte(id >> 16)
	out[6] = byte(id >> 8)
	out[7] = byte(id)
	return out
}
