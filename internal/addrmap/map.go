// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package addrmap implements the static/derived/dynamic address map:
// longest-prefix-match lookup between IPv4 and IPv6, RFC 6052 address
// embedding, and WKPF strictness. Longest-prefix matching is
// delegated to github.com/gaissmai/bart, a balanced-routing-table
// library.
package addrmap

import (
	"net/netip"
	"sync"

	"github.com/gaissmai/bart"

	"grimm.is/flywall/internal/config"
	xerrors "grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
)

// DynamicAllocator is consulted when a v6 source has no static or
// already-bound mapping; it is implemented by internal/pool.Pool.
// Kept as a narrow interface so addrmap never imports pool directly.
type DynamicAllocator interface {
	Allocate(v6 netip.Addr) (netip.Addr, error)
}

// Map is the address map: a longest-prefix-match index per family plus
// an optional dynamic allocator for v6 sources with no static mapping.
type Map struct {
	mu sync.RWMutex

	v4 *bart.Table[*Rule]
	v6 *bart.Table[*Rule]

	wkpfStrict bool
	allocator  DynamicAllocator

	logger *logging.Logger
}

// New builds a Map from a validated configuration: one RFC 6052
// catch-all in each family bound to the translation prefix, one static
// pair per `map` directive, and (if configured) a dynamic-pool
// membership marker in Map4.
func New(v *config.Validated) (*Map, error) {
	m := &Map{
		v4:         &bart.Table[*Rule]{},
		v6:         &bart.Table[*Rule]{},
		wkpfStrict: v.WKPFStrict,
		logger:     logging.WithComponent("addrmap"),
	}

	if v.Prefix.IsValid() {
		m.insert6(&Rule{Prefix: v.Prefix, Type: TypeRFC6052Prefix})
		m.insert4(&Rule{Prefix: netip.PrefixFrom(netip.IPv4Unspecified(), 0), Type: TypeRFC6052Prefix, EmbedPrefix: v.Prefix})
	}

	for _, sm := range v.StaticMaps {
		m.insert4(&Rule{Prefix: netip.PrefixFrom(sm.V4, 32), Type: TypeStaticOneToOne, Peer: sm.V6})
		m.insert6(&Rule{Prefix: netip.PrefixFrom(sm.V6, 128), Type: TypeStaticOneToOne, Peer: sm.V4})
	}

	if v.HasDynamicPool {
		m.insert4(&Rule{Prefix: v.DynamicPool, Type: TypeDynamicPool})
	}

	return m, nil
}

// SetAllocator wires the dynamic pool allocator consulted when a v6
// source has no mapping.
func (m *Map) SetAllocator(a DynamicAllocator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocator = a
}

// insert4/insert6 apply the tie-break rule: when
// a rule already occupies the exact prefix, the one with higher
// precedence (lower precedence()) wins; static shadows derived shadows
// pool.
func (m *Map) insert4(r *Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.v4.Get(r.Prefix); ok && existing.Type.precedence() <= r.Type.precedence() {
		m.logger.Debug("map4 entry shadowed", "prefix", r.Prefix, "existing_type", existing.Type, "new_type", r.Type)
		return
	}
	m.v4.Insert(r.Prefix, r)
}

func (m *Map) insert6(r *Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.v6.Get(r.Prefix); ok && existing.Type.precedence() <= r.Type.precedence() {
		m.logger.Debug("map6 entry shadowed", "prefix", r.Prefix, "existing_type", existing.Type, "new_type", r.Type)
		return
	}
	m.v6.Insert(r.Prefix, r)
}

// Lookup4 returns the longest-prefix-matching rule for a v4 address.
func (m *Map) Lookup4(addr netip.Addr) (*Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v4.Lookup(addr)
}

// Lookup6 returns the longest-prefix-matching rule for a v6 address.
func (m *Map) Lookup6(addr netip.Addr) (*Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v6.Lookup(addr)
}

// AddDynamicHost materializes a live dynamic binding as a peer pair of
// dynamic-host entries, so ordinary longest-prefix lookup finds it
// so lookups resolve it like any other rule.
func (m *Map) AddDynamicHost(v6, v4 netip.Addr) {
	m.insert4(&Rule{Prefix: netip.PrefixFrom(v4, 32), Type: TypeDynamicHost, Peer: v6})
	m.insert6(&Rule{Prefix: netip.PrefixFrom(v6, 128), Type: TypeDynamicHost, Peer: v4})
}

// RemoveDynamicHost removes both halves of a reaped dynamic binding.
func (m *Map) RemoveDynamicHost(v6, v4 netip.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.v4.Get(netip.PrefixFrom(v4, 32)); ok && r.Type == TypeDynamicHost {
		m.v4.Delete(netip.PrefixFrom(v4, 32))
	}
	if r, ok := m.v6.Get(netip.PrefixFrom(v6, 128)); ok && r.Type == TypeDynamicHost {
		m.v6.Delete(netip.PrefixFrom(v6, 128))
	}
}

// resolveGenericV4 resolves a v4 address for a v6-side rule, allowing
// RFC 6052 embedding — used for the destination in v6→v4 translation,
// where the remote v4 host's address is ordinarily derived from the
// embedded form rather than bound.
func (m *Map) resolveGenericV4(rule *Rule, addr6 netip.Addr) (netip.Addr, error) {
	switch rule.Type {
	case TypeStaticOneToOne, TypeDynamicHost:
		return rule.Peer, nil
	case TypeRFC6052Prefix:
		v4, err := extract(addr6, rule.Prefix.Bits())
		if err != nil {
			return netip.Addr{}, err
		}
		if m.wkpfStrict && rule.Prefix == wkpf && isPrivateUnderWKPF(v4) {
			return netip.Addr{}, xerrors.New(xerrors.KindAddressReserved, "private v4 address under well-known prefix with wkpf-strict set")
		}
		return v4, nil
	default:
		return netip.Addr{}, xerrors.New(xerrors.KindAddressReserved, "address falls in a reserved range")
	}
}

// resolveBoundV4 resolves a v4 address for a v6-side rule that must
// already be an explicit binding (static or dynamic-host) — used for
// our own client's address, which is never itself an embedded form.
func (m *Map) resolveBoundV4(rule *Rule) (netip.Addr, error) {
	switch rule.Type {
	case TypeStaticOneToOne, TypeDynamicHost:
		return rule.Peer, nil
	default:
		return netip.Addr{}, xerrors.New(xerrors.KindMapLookupMiss, "no bound v4 mapping")
	}
}

// resolveGenericV6 mirrors resolveGenericV4 for the v4→v6 direction:
// the remote v4 host's source address is ordinarily embedded under the
// translation prefix.
func (m *Map) resolveGenericV6(rule *Rule, addr4 netip.Addr) (netip.Addr, error) {
	switch rule.Type {
	case TypeStaticOneToOne, TypeDynamicHost:
		return rule.Peer, nil
	case TypeRFC6052Prefix:
		return embed(addr4, rule.EmbedPrefix), nil
	default:
		return netip.Addr{}, xerrors.New(xerrors.KindAddressReserved, "address falls in a reserved range")
	}
}

// resolveBoundV6 mirrors resolveBoundV4: our own client's v4 address
// must resolve to an explicit binding, never a derived embedding.
func (m *Map) resolveBoundV6(rule *Rule) (netip.Addr, error) {
	switch rule.Type {
	case TypeStaticOneToOne, TypeDynamicHost:
		return rule.Peer, nil
	default:
		return netip.Addr{}, xerrors.New(xerrors.KindMapLookupMiss, "no bound v6 mapping")
	}
}

// Translate6to4 resolves the v6→v4 direction: dst6 resolves
// generically (possibly an RFC 6052 embedding of a remote v4 host);
// src6 must resolve to an explicit binding, falling back to dynamic
// allocation if one is configured.
func (m *Map) Translate6to4(src6, dst6 netip.Addr) (src4, dst4 netip.Addr, err error) {
	dstRule, ok := m.Lookup6(dst6)
	if !ok {
		return netip.Addr{}, netip.Addr{}, xerrors.New(xerrors.KindMapLookupMiss, "no v4 mapping for destination")
	}
	dst4, err = m.resolveGenericV4(dstRule, dst6)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	if srcRule, ok := m.Lookup6(src6); ok && srcRule.Type != TypeRFC6052Prefix {
		src4, err = m.resolveBoundV4(srcRule)
		if err != nil {
			return netip.Addr{}, netip.Addr{}, err
		}
		return src4, dst4, nil
	}

	m.mu.RLock()
	allocator := m.allocator
	m.mu.RUnlock()
	if allocator == nil {
		return netip.Addr{}, netip.Addr{}, xerrors.New(xerrors.KindMapLookupMiss, "no v4 mapping for source")
	}
	src4, err = allocator.Allocate(src6)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, xerrors.Wrap(err, xerrors.KindPoolExhausted, "dynamic pool exhausted")
	}
	m.AddDynamicHost(src6, src4)
	return src4, dst4, nil
}

// Translate4to6 resolves the v4→v6 direction: dst4 must
// resolve to an explicit binding (our own tracked client); src4
// resolves generically, ordinarily via RFC 6052 embedding of the
// remote v4 host.
func (m *Map) Translate4to6(src4, dst4 netip.Addr) (src6, dst6 netip.Addr, err error) {
	dstRule, ok := m.Lookup4(dst4)
	if !ok {
		return netip.Addr{}, netip.Addr{}, xerrors.New(xerrors.KindMapLookupMiss, "no v6 mapping for destination")
	}
	dst6, err = m.resolveBoundV6(dstRule)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	srcRule, ok := m.Lookup4(src4)
	if !ok {
		return netip.Addr{}, netip.Addr{}, xerrors.New(xerrors.KindMapLookupMiss, "no v6 mapping for source")
	}
	src6, err = m.resolveGenericV6(srcRule, src4)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	return src6, dst6, nil
}
