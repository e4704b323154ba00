// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package translator implements the translator core:
// per-family ingress parsing, address translation via internal/addrmap,
// IPv4/IPv6 header synthesis, RFC 1624 incremental checksum adjustment,
// fragmentation-aware rewriting, and ICMP/ICMPv6 translation with a
// single bounded level of embedded-packet recursion.
package translator

import (
	"net/netip"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/flywall/internal/addrmap"
	"grimm.is/flywall/internal/config"
	xerrors "grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
)

// Emission is a single datagram the translator wants written back to
// the TUN channel, tagged with the family it must be framed as.
type Emission struct {
	Family Family
	Bytes  []byte
}

// Translator is the packet-translation engine: stateless beyond the
// address map and dynamic pool it was built with. There is no
// inter-packet state beyond those two.
type Translator struct {
	cfg     *config.Validated
	addrMap *addrmap.Map
	logger  *logging.Logger
	metrics *metrics
}

// New builds a Translator bound to cfg and addrMap. reg may be nil to
// skip prometheus registration (used in tests).
func New(cfg *config.Validated, addrMap *addrmap.Map, reg prometheus.Registerer) *Translator {
	return &Translator{
		cfg:     cfg,
		addrMap: addrMap,
		logger:  logging.WithComponent("translator"),
		metrics: newMetrics(reg),
	}
}

func (t *Translator) drop(family Family, reason dropReason, keyvals ...any) []Emission {
	t.metrics.dropped.WithLabelValues(string(reason)).Inc()
	args := append([]any{"reason", string(reason), "family", int(family)}, keyvals...)
	t.logger.Debug("packet dropped", args...)
	return nil
}

func (t *Translator) emit(family Family, b []byte) []Emission {
	t.metrics.translated.WithLabelValues(familyLabel(family)).Inc()
	return []Emission{{Family: family, Bytes: b}}
}

func (t *Translator) icmpReply(family Family, typ uint8, b []byte) []Emission {
	t.metrics.icmpReply.WithLabelValues(icmpReplyLabel(family, typ)).Inc()
	return []Emission{{Family: family, Bytes: b}}
}

func familyLabel(f Family) string {
	if f == FamilyIPv4 {
		return "ipv4"
	}
	return "ipv6"
}

func icmpReplyLabel(f Family, typ uint8) string {
	if f == FamilyIPv4 {
		switch typ {
		case icmp4TimeExceeded:
			return "v4_time_exceeded"
		case icmp4DestUnreach:
			return "v4_frag_needed"
		}
	} else {
		switch typ {
		case icmp6TimeExceeded:
			return "v6_time_exceeded"
		case icmp6PacketTooBig:
			return "v6_packet_too_big"
		}
	}
	return "other"
}

// Handle dispatches a TUN-framed datagram to the matching ingress
// handler, returning zero or more datagrams to write back.
func (t *Translator) Handle(family Family, b []byte) []Emission {
	switch family {
	case FamilyIPv4:
		return t.HandleIPv4(b)
	case FamilyIPv6:
		return t.HandleIPv6(b)
	default:
		return t.drop(family, reasonUnsupportedProto)
	}
}

// HandleIPv6 implements the v6→v4 translation path.
func (t *Translator) HandleIPv6(b []byte) []Emission {
	h, payload, err := parseIPv6(b, t.cfg.StrictFragHdr)
	if err != nil {
		if xerrors.GetKind(err) == xerrors.KindHeaderMalformed {
			return t.drop(FamilyIPv6, reasonHeaderMalformed, "error", err)
		}
		return t.drop(FamilyIPv6, reasonFragHdrOutOfOrder, "error", err)
	}

	if h.HopLimit <= 1 {
		return t.icmpReply(FamilyIPv6, icmp6TimeExceeded, t.buildLocalTimeExceeded6(h, b))
	}

	upperProto := h.NextHeader
	if upperProto != protoTCP && upperProto != protoUDP && upperProto != protoICMPv6 {
		return t.drop(FamilyIPv6, reasonUnsupportedProto, "next_header", upperProto)
	}
	if upperProto == protoICMPv6 && isNeighborDiscoveryPayload(payload) {
		return t.drop(FamilyIPv6, reasonICMPDropped)
	}

	src4, dst4, terr := t.addrMap.Translate6to4(h.Src, h.Dst)
	if terr != nil {
		return t.drop(FamilyIPv6, dropReasonFor(terr))
	}

	isFirstFragment := !h.Frag.Present || h.Frag.FragOffset == 0
	isUnfragmented := !h.Frag.Present
	var newPayload []byte
	upperOut := upperProto
	if upperProto == protoICMPv6 {
		if !isUnfragmented {
			return t.drop(FamilyIPv6, reasonUnsupportedProto, "note", "fragmented icmp unsupported")
		}
		var reason dropReason
		newPayload, reason = t.translateICMP6to4(payload, src4, dst4, 0, t.cfg.OfflinkMTU-20)
		if reason != "" {
			return t.drop(FamilyIPv6, reason)
		}
		upperOut = protoICMP
	} else {
		newPayload = append([]byte(nil), payload...)
		if isFirstFragment && len(newPayload) >= 4 {
			adjustTransportChecksum6to4(newPayload, h.Src, h.Dst, src4, dst4, upperProto)
		}
	}

	id := uint16(h.Frag.ID)
	flags, fragOff := uint8(flagDF), uint16(0)
	if h.Frag.Present {
		flags = 0
		if h.Frag.MoreFrags {
			flags |= flagMF
		}
		fragOff = h.Frag.FragOffset
	}

	ih := &ipv4Header{
		TOS: h.TrafficClass, ID: id, Flags: flags, FragOffset: fragOff,
		TTL: h.HopLimit - 1, Protocol: upperOut, Src: src4, Dst: dst4,
	}
	out := buildIPv4Header(ih, len(newPayload))
	out = append(out, newPayload...)

	if len(out) > t.cfg.OfflinkMTU {
		if !h.Frag.Present {
			return t.icmpReply(FamilyIPv6, icmp6PacketTooBig, t.buildLocalPacketTooBig6(h, b))
		}
		return t.drop(FamilyIPv6, reasonOversized)
	}

	return t.emit(FamilyIPv4, out)
}

// HandleIPv4 implements the v4→v6 translation path.
func (t *Translator) HandleIPv4(b []byte) []Emission {
	h, payload, err := parseIPv4(b)
	if err != nil {
		if xerrors.GetKind(err) == xerrors.KindChecksumInvalid {
			return t.drop(FamilyIPv4, reasonChecksumInvalid)
		}
		return t.drop(FamilyIPv4, reasonHeaderMalformed, "error", err)
	}

	if h.TTL <= 1 {
		return t.icmpReply(FamilyIPv4, icmp4TimeExceeded, t.buildLocalTimeExceeded4(h, b))
	}

	if h.Protocol != protoTCP && h.Protocol != protoUDP && h.Protocol != protoICMP {
		return t.drop(FamilyIPv4, reasonUnsupportedProto, "protocol", h.Protocol)
	}

	src6, dst6, terr := t.addrMap.Translate4to6(h.Src, h.Dst)
	if terr != nil {
		return t.drop(FamilyIPv4, dropReasonFor(terr))
	}

	isFirstFragment := h.FragOffset == 0
	isUnfragmented := h.FragOffset == 0 && !h.mf()
	upperOut := h.Protocol
	var newPayload []byte
	if h.Protocol == protoICMP {
		if !isUnfragmented {
			return t.drop(FamilyIPv4, reasonUnsupportedProto, "note", "fragmented icmp unsupported")
		}
		var reason dropReason
		newPayload, reason = t.translateICMP4to6(payload, src6, dst6, 0, t.cfg.OfflinkMTU)
		if reason != "" {
			return t.drop(FamilyIPv4, reason)
		}
		upperOut = protoICMPv6
	} else {
		newPayload = append([]byte(nil), payload...)
		if isFirstFragment && len(newPayload) >= 4 {
			if h.Protocol == protoUDP && len(newPayload) >= 8 && newPayload[6] == 0 && newPayload[7] == 0 {
				computeFullUDPChecksum6(newPayload, src6, dst6)
			} else {
				adjustTransportChecksum4to6(newPayload, h.Src, h.Dst, src6, dst6, h.Protocol)
			}
		}
	}

	fragNeeded := h.mf() || (!h.df() && h.FragOffset != 0)

	h6 := &ipv6Header{TrafficClass: h.TOS, HopLimit: h.TTL - 1, Src: src6, Dst: dst6}

	if !fragNeeded {
		out := buildIPv6Header(h6, upperOut, len(newPayload))
		out = append(out, newPayload...)
		if len(out) > t.cfg.OfflinkMTU {
			if h.df() {
				return t.icmpReply(FamilyIPv4, icmp4DestUnreach, t.buildLocalFragNeeded4(h, b))
			}
			return t.fragmentOutgoingV6(h6, upperOut, uint32(h.ID), newPayload)
		}
		return t.emit(FamilyIPv6, out)
	}

	fragHdr := buildFragmentHeader(upperOut, uint32(h.ID), h.FragOffset, h.mf())
	payloadWithFrag := append(fragHdr, newPayload...)
	out := buildIPv6Header(h6, extFragment, len(payloadWithFrag))
	out = append(out, payloadWithFrag...)
	if len(out) > t.cfg.OfflinkMTU {
		return t.drop(FamilyIPv6, reasonOversized)
	}
	return t.emit(FamilyIPv6, out)
}

// fragmentOutgoingV6 splits payload (already its final upper-layer
// bytes, unfragmented on the wire) into multiple IPv6 fragments so an
// oversized DF=0 IPv4 datagram still fits the egress MTU once
// translated, by inserting an IPv6 fragment header into each piece.
func (t *Translator) fragmentOutgoingV6(h6 *ipv6Header, upperProto uint8, id uint32, payload []byte) []Emission {
	const fragHdrLen = 8
	chunkLen := (t.cfg.OfflinkMTU - 40 - fragHdrLen) &^ 7
	if chunkLen <= 0 {
		return t.drop(FamilyIPv6, reasonOversized)
	}

	var emissions []Emission
	for off := 0; off < len(payload); off += chunkLen {
		end := off + chunkLen
		more := true
		if end >= len(payload) {
			end = len(payload)
			more = false
		}
		fragHdr := buildFragmentHeader(upperProto, id, uint16(off/8), more)
		body := append(fragHdr, payload[off:end]...)
		out := buildIPv6Header(h6, extFragment, len(body))
		out = append(out, body...)
		emissions = append(emissions, Emission{Family: FamilyIPv6, Bytes: out})
	}
	t.metrics.translated.WithLabelValues("ipv6").Add(float64(len(emissions)))
	return emissions
}

func dropReasonFor(err error) dropReason {
	switch xerrors.GetKind(err) {
	case xerrors.KindAddressReserved:
		return reasonAddressReserved
	case xerrors.KindPoolExhausted:
		return reasonPoolExhausted
	default:
		return reasonNoMapping
	}
}

// isNeighborDiscoveryPayload peeks at an ICMPv6 segment's type byte
// without fully parsing it, so Neighbor Discovery traffic is dropped
// before address translation is even attempted: the translator is an
// L3 forwarder, not an L2 peer.
func isNeighborDiscoveryPayload(seg []byte) bool {
	if len(seg) < 1 {
		return false
	}
	return isNeighborDiscovery(seg[0])
}

func adjustTransportChecksum6to4(body []byte, oldSrc, oldDst netip.Addr, newSrc, newDst netip.Addr, proto uint8) {
	off := transportChecksumOffset(proto)
	if off < 0 || off+2 > len(body) {
		return
	}
	length := uint16(len(body))
	old := uint16(body[off])<<8 | uint16(body[off+1])
	oldWords := be16Words(pseudoHeaderBytes6(oldSrc, oldDst, proto, uint32(length)))
	newWords := pseudoHeaderWords4(newSrc, newDst, proto, length)
	nc := adjustChecksum(old, oldWords, newWords)
	body[off], body[off+1] = byte(nc>>8), byte(nc)
}

func adjustTransportChecksum4to6(body []byte, oldSrc, oldDst netip.Addr, newSrc, newDst netip.Addr, proto uint8) {
	off := transportChecksumOffset(proto)
	if off < 0 || off+2 > len(body) {
		return
	}
	length := uint16(len(body))
	old := uint16(body[off])<<8 | uint16(body[off+1])
	oldWords := pseudoHeaderWords4(oldSrc, oldDst, proto, length)
	newWords := be16Words(pseudoHeaderBytes6(newSrc, newDst, proto, uint32(length)))
	nc := adjustChecksum(old, oldWords, newWords)
	body[off], body[off+1] = byte(nc>>8), byte(nc)
}

// computeFullUDPChecksum6 handles the rule that UDP-over-IPv6 forbids
// a zero checksum: an incoming IPv4 UDP datagram with checksum
// 0 must have its checksum fully computed (a complete pass over the
// payload, not an incremental adjustment) before it can legally cross
// into IPv6.
func computeFullUDPChecksum6(body []byte, src6, dst6 netip.Addr) {
	body[6], body[7] = 0, 0
	pseudo := pseudoHeaderBytes6(src6, dst6, protoUDP, uint32(len(body)))
	cs := checksumWithPseudo(pseudo, body)
	if cs == 0 {
		cs = 0xffff // RFC 768: a computed checksum of 0 is sent as all-ones.
	}
	body[6], body[7] = byte(cs>>8), byte(cs)
}
