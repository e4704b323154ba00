// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

// Family identifies the address family a packet buffer carries,
// mirroring the 4-byte TUN prefix a frame is tagged with.
type Family int

const (
	FamilyIPv4 Family = 4
	FamilyIPv6 Family = 6
)

// outcome names the terminal states of a single packet translation.
// It carries no behavior of its own and is not referenced by the
// translate path: debug logging and the prometheus counters label
// packets by dropReason and family instead.
type outcome int

const (
	outcomeEmitted outcome = iota
	outcomeDropped
	outcomeRepliedICMP
)

// dropReason labels why a packet was silently discarded, logged at
// debug level only.
type dropReason string

const (
	reasonHeaderMalformed   dropReason = "header_malformed"
	reasonChecksumInvalid   dropReason = "checksum_invalid"
	reasonNoMapping         dropReason = "no_mapping"
	reasonAddressReserved   dropReason = "address_reserved"
	reasonPoolExhausted     dropReason = "pool_exhausted"
	reasonUnsupportedProto  dropReason = "unsupported_protocol"
	reasonTTLExpired        dropReason = "ttl_expired"
	reasonFragHdrOutOfOrder dropReason = "frag_hdr_out_of_order"
	reasonHopByHopCritical  dropReason = "hop_by_hop_critical_option"
	reasonOversized         dropReason = "oversized_datagram"
	reasonICMPDropped       dropReason = "icmp_type_dropped"
	reasonRecursionDepth    dropReason = "icmp_recursion_depth_exceeded"
)

// maxRecursionDepth bounds ICMP embedded-packet translation to a
// single level.
const maxRecursionDepth = 1
