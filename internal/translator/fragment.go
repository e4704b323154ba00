// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

// mtuDelta is the header-size difference accounted for when reporting
// an egress MTU back to a sender in the other address family: an IPv6
// header is 20 bytes larger than the IPv4 header it replaces.
const mtuDelta = 20

// icmpv6MinMTU is the smallest MTU IPv6 guarantees end-to-end (RFC
// 8200 §5); a Packet Too Big report is never allowed to advertise
// less, even if the egress MTU is configured right at the 1280 floor.
const icmpv6MinMTU = 1280

// ptbMTUFor6to4 computes the MTU reported in an ICMPv6 Packet Too Big
// sent back to a v6 sender whose packet, once translated to v4, would
// exceed the egress MTU: "MTU = egress_mtu + 20" (accounting for the
// 20-byte header delta the v6→v4 direction removes).
func ptbMTUFor6to4(egressMTU int) uint32 {
	mtu := egressMTU + mtuDelta
	if mtu < icmpv6MinMTU {
		mtu = icmpv6MinMTU
	}
	return uint32(mtu)
}

// fragNeededMTUFor4to6 computes the MTU reported in an ICMPv4
// Fragmentation Needed sent back to a v4 sender whose DF=1 packet,
// once translated to v6, would exceed the egress MTU:
// "MTU = egress_mtu - 20".
func fragNeededMTUFor4to6(egressMTU int) uint16 {
	mtu := egressMTU - mtuDelta
	if mtu < 0 {
		mtu = 0
	}
	return uint16(mtu)
}
