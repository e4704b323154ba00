// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package addrmap

import "net/netip"

// RuleType classifies an entry in Map4 or Map6.
type RuleType int

const (
	// TypeStaticOneToOne is a configured 1:1 binding between a single
	// v4 and a single v6 address.
	TypeStaticOneToOne RuleType = iota
	// TypeRFC6052Prefix covers an entire translation prefix; the peer
	// address is derived by RFC 6052 embed/extract rather than stored.
	TypeRFC6052Prefix
	// TypeDynamicPool marks the CIDR a dynamic pool allocates from.
	TypeDynamicPool
	// TypeDynamicHost is one live dynamic binding, materialized as a
	// peer pair of host entries.
	TypeDynamicHost
	// TypeReserved marks an address range forbidden to translate.
	TypeReserved
)

func (t RuleType) String() string {
	switch t {
	case TypeStaticOneToOne:
		return "static-1:1"
	case TypeRFC6052Prefix:
		return "rfc6052-prefix"
	case TypeDynamicPool:
		return "dynamic-pool"
	case TypeDynamicHost:
		return "dynamic-host"
	case TypeReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// precedence orders rule types for the tie-break applied when two
// rules share the same prefix length: lower value wins.
func (t RuleType) precedence() int {
	switch t {
	case TypeStaticOneToOne:
		return 0
	case TypeRFC6052Prefix:
		return 1
	case TypeDynamicHost:
		return 2
	case TypeDynamicPool:
		return 3
	case TypeReserved:
		return 4
	default:
		return 99
	}
}

// Rule is one entry in the address map, stored by value-reference in
// the bart.Table longest-prefix-match index.
type Rule struct {
	Prefix netip.Prefix
	Type   RuleType

	// Peer is the mapped address in the other address family. Unused
	// for TypeRFC6052Prefix (derived by embed/extract) and
	// TypeDynamicPool (a pool membership marker, not a binding).
	Peer netip.Addr

	// EmbedPrefix is the v6 translation prefix to embed a v4 address
	// under. Only set on the v4 RFC-6052 catch-all rule, whose own
	// Prefix is 0.0.0.0/0 and so cannot itself carry the v6 prefix.
	EmbedPrefix netip.Prefix
}
