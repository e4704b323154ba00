// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package addrmap

import (
	"net/netip"

	xerrors "grimm.is/flywall/internal/errors"
)

// validPrefixLengths lists the RFC 6052 prefix lengths that may embed
// an IPv4 address.
var validPrefixLengths = map[int]bool{32: true, 40: true, 48: true, 56: true, 64: true, 96: true}

// wkpf is the RFC 6052 well-known prefix 64:ff9b::/96.
var wkpf = netip.MustParsePrefix("64:ff9b::/96")

// privateUnderWKPF lists the IPv4 ranges RFC 6052 §3.1 forbids
// translating under the well-known prefix when wkpf-strict is set.
var privateUnderWKPF = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("192.88.99.0/24"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

// embed places v4's 32 bits into an IPv6 address under prefix, following
// the RFC 6052 §2.2 byte layout: prefix bytes first, then the 32 bits
// of v4 packed into the following bytes in order while skipping byte
// index 8 (the reserved "u" byte, always zero), with any remaining
// bytes (the suffix) left zero. This single loop reproduces all six
// legal table rows (/32,/40,/48,/56,/64,/96) without special-casing
// any of them.
func embed(v4 netip.Addr, prefix netip.Prefix) netip.Addr {
	v4b := v4.As4()
	pfxBytes := prefix.Addr().As16()

	var out [16]byte
	bits := prefix.Bits()
	copy(out[:], pfxBytes[:bits/8])

	vi := 0
	for i := bits / 8; i < 16 && vi < 4; i++ {
		if i == 8 {
			continue
		}
		out[i] = v4b[vi]
		vi++
	}
	return netip.AddrFrom16(out)
}

// extract reverses embed, returning the embedded v4 address. It fails
// with KindAddressReserved if the "u" byte (index 8) is nonzero.
func extract(v6 netip.Addr, prefixLen int) (netip.Addr, error) {
	b := v6.As16()
	if b[8] != 0 {
		return netip.Addr{}, xerrors.New(xerrors.KindAddressReserved, "nonzero u byte in embedded address")
	}

	var v4 [4]byte
	vi := 0
	for i := prefixLen / 8; i < 16 && vi < 4; i++ {
		if i == 8 {
			continue
		}
		v4[vi] = b[i]
		vi++
	}
	return netip.AddrFrom4(v4), nil
}

// isPrivateUnderWKPF reports whether a4 falls in one of the ranges RFC
// 6052 §3.1 forbids translating under the well-known prefix.
func isPrivateUnderWKPF(a4 netip.Addr) bool {
	for _, p := range privateUnderWKPF {
		if p.Contains(a4) {
			return true
		}
	}
	return false
}
