// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

import "net/netip"

// foldCarries folds a 32-bit accumulator down to 16 bits with end-around
// carry, the final step of every Internet checksum (RFC 1071).
func foldCarries(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}

// checksum computes the ones-complement Internet checksum (RFC 1071)
// over b. Used for full (re)computation: the IPv4 header checksum and
// every ICMPv4 checksum, which RFC 6145 §4.5 says must be recomputed
// from scratch rather than incrementally adjusted. ICMPv6 checksums,
// which cover a pseudo header, go through checksumWithPseudo.
func checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	return ^foldCarries(sum)
}

// checksumWithPseudo computes a transport checksum over a pseudo
// header followed by the transport segment, folding both into one
// accumulator before the final complement.
func checksumWithPseudo(pseudo, segment []byte) uint16 {
	var sum uint32
	add := func(b []byte) {
		n := len(b)
		for i := 0; i+1 < n; i += 2 {
			sum += uint32(b[i])<<8 | uint32(b[i+1])
		}
		if n%2 == 1 {
			sum += uint32(b[n-1]) << 8
		}
	}
	add(pseudo)
	add(segment)
	return ^foldCarries(sum)
}

// adjustChecksum applies the RFC 1624 incremental update: given the
// checksum computed over a set of 16-bit words and the subset of
// those words that changed, produces the checksum that would have
// resulted from recomputing over the new words — without a second
// pass over the unchanged payload. Used for TCP/UDP checksums across
// address-family translation, where only the pseudo-header changes.
func adjustChecksum(old uint16, oldWords, newWords []uint16) uint16 {
	sum := uint32(^old) & 0xffff
	for _, w := range oldWords {
		sum += uint32(^w) & 0xffff
	}
	for _, w := range newWords {
		sum += uint32(w)
	}
	return ^foldCarries(sum)
}

// be16Words reinterprets a byte slice as big-endian 16-bit words,
// zero-padding a trailing odd byte.
func be16Words(b []byte) []uint16 {
	words := make([]uint16, 0, (len(b)+1)/2)
	for i := 0; i < len(b); i += 2 {
		if i+1 < len(b) {
			words = append(words, uint16(b[i])<<8|uint16(b[i+1]))
		} else {
			words = append(words, uint16(b[i])<<8)
		}
	}
	return words
}

// pseudoHeaderWords4 returns the big-endian 16-bit words of an IPv4
// TCP/UDP pseudo header: src, dst, zero+protocol, length.
func pseudoHeaderWords4(src, dst netip.Addr, protocol uint8, length uint16) []uint16 {
	b := make([]byte, 12)
	s4 := src.As4()
	d4 := dst.As4()
	copy(b[0:4], s4[:])
	copy(b[4:8], d4[:])
	b[8] = 0
	b[9] = protocol
	b[10] = byte(length >> 8)
	b[11] = byte(length)
	return be16Words(b)
}

// pseudoHeaderBytes6 returns the raw bytes of an IPv6 TCP/UDP/ICMPv6
// pseudo header: src, dst, upper-layer length, zero, next header. Used
// both directly alongside a segment via checksumWithPseudo and,
// converted with be16Words, in the incremental adjustChecksum path.
func pseudoHeaderBytes6(src, dst netip.Addr, nextHeader uint8, length uint32) []byte {
	b := make([]byte, 40)
	s6 := src.As16()
	d6 := dst.As16()
	copy(b[0:16], s6[:])
	copy(b[16:32], d6[:])
	b[32] = byte(length >> 24)
	b[33] = byte(length >> 16)
	b[34] = byte(length >> 8)
	b[35] = byte(length)
	b[36], b[37], b[38] = 0, 0, 0
	b[39] = nextHeader
	return b
}

// pseudoHeaderWords6 returns the big-endian 16-bit words of an IPv6
// TCP/UDP pseudo header: src, dst, upper-layer length, zero, next
// header.
func pseudoHeaderWords6(src, dst netip.Addr, nextHeader uint8, length uint32) []uint16 {
	b := make([]byte, 40)
	s6 := src.As16()
	d6 := dst.As16()
	copy(b[0:16], s6[:])
	copy(b[16:32], d6[:])
	b[32] = byte(length >> 24)
	b[33] = byte(length >> 16)
	b[34] = byte(length >> 8)
	b[35] = byte(length)
	b[36], b[37], b[38] = 0, 0, 0
	b[39] = nextHeader
	return be16Words(b)
}
