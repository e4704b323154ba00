// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package pool implements the dynamic IPv4 pool: demand
// allocation of v4 addresses to v6 sources with no static mapping,
// idle-eviction, and on-disk persistence of live bindings across
// restarts.
package pool

import (
	"crypto/rand"
	"encoding/binary"
	"net/netip"
	"sync"
	"time"

	"grimm.is/flywall/internal/clock"
	"grimm.is/flywall/internal/config"
	xerrors "grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
)

// Binding is one live dynamic mapping between a v6 source and a v4
// address drawn from the pool.
type Binding struct {
	V6      netip.Addr
	V4      netip.Addr
	LastUse time.Time

	// usedSinceLastScan is the second-chance flag scan() consults:
	// a binding touched since the previous scan survives this round
	// even if it is otherwise past T_idle.
	usedSinceLastScan bool
}

// HostBinder is the subset of addrmap.Map a pool needs to materialize
// or remove a dynamic binding's peer entries.
type HostBinder interface {
	AddDynamicHost(v6, v4 netip.Addr)
	RemoveDynamicHost(v6, v4 netip.Addr)
}

// Pool is the dynamic IPv4 address pool bound to a single CIDR.
type Pool struct {
	mu sync.Mutex

	prefix netip.Prefix
	base   uint32
	size   uint32
	seed   uint32
	ownV4  netip.Addr

	byV6 map[netip.Addr]*Binding
	byV4 map[netip.Addr]*Binding

	idleTimeout time.Duration
	persistPath string

	clock  clock.Clock
	binder HostBinder
	logger *logging.Logger
}

// New builds a Pool bound to v.DynamicPool. It seeds the allocation
// hash from the system entropy source and, if a persistence path is
// configured, reloads any bindings saved by a previous run.
func New(v *config.Validated, clk clock.Clock, binder HostBinder) (*Pool, error) {
	if !v.HasDynamicPool {
		return nil, nil
	}

	base := binary.BigEndian.Uint32(v.DynamicPool.Addr().As4())
	size := uint32(1) << uint(32-v.DynamicPool.Bits())

	seed, err := randomOddSeed()
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.KindOSResourceError, "failed to seed dynamic pool hash")
	}

	p := &Pool{
		prefix:      v.DynamicPool,
		base:        base,
		size:        size,
		seed:        seed,
		ownV4:       v.OwnV4,
		byV6:        make(map[netip.Addr]*Binding),
		byV4:        make(map[netip.Addr]*Binding),
		idleTimeout: time.Duration(v.IdleTimeoutSeconds) * time.Second,
		clock:       clk,
		binder:      binder,
		logger:      logging.WithComponent("pool"),
	}
	if v.DataDir != "" {
		p.persistPath = v.DataDir + "/dynamic.map"
	}

	if p.persistPath != "" {
		if err := p.load(); err != nil {
			p.logger.Warning("failed to reload dynamic pool", "error", err)
		}
	}

	return p, nil
}

// randomOddSeed draws a 32-bit seed from the system CSPRNG and forces
// it odd, matching tayga's read_random_bytes-seeded multiplicative
// hash: an odd multiplier keeps the hash's period at 2^32.
func randomOddSeed() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	seed := binary.BigEndian.Uint32(buf[:])
	return seed | 1, nil
}

// hash reduces a v6 address to a uint32 pool index candidate via a
// multiplicative hash with the odd per-process seed.
func (p *Pool) hash(v6 netip.Addr) uint32 {
	b := v6.As16()
	var h uint32
	h ^= binary.BigEndian.Uint32(b[0:4])
	h ^= binary.BigEndian.Uint32(b[4:8])
	h ^= binary.BigEndian.Uint32(b[8:12])
	h ^= binary.BigEndian.Uint32(b[12:16])
	return h * p.seed
}

// usableRange excludes the network and broadcast addresses from
// allocation when the pool is larger than a /31. The translator's own
// v4 address is excluded separately in Allocate's probe loop, since it
// is allowed to fall anywhere inside the pool's CIDR (config.Validate
// does not reject that overlap).
func (p *Pool) usableRange() (first, count uint32) {
	if p.size <= 2 {
		return 0, p.size
	}
	return 1, p.size - 2
}

func (p *Pool) addrAt(offset uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], p.base+offset)
	return netip.AddrFrom4(b)
}

// Allocate returns the v4 address bound to v6, creating a new binding
// via hash-then-linear-probe if none exists yet. It reports
// KindPoolExhausted if every usable
// address is already bound to a different v6 source.
func (p *Pool) Allocate(v6 netip.Addr) (netip.Addr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()

	if b, ok := p.byV6[v6]; ok {
		b.LastUse = now
		b.usedSinceLastScan = true
		return b.V4, nil
	}

	first, count := p.usableRange()
	if count == 0 {
		return netip.Addr{}, xerrors.New(xerrors.KindPoolExhausted, "dynamic pool has no usable addresses")
	}

	start := first + p.hash(v6)%count
	for i := uint32(0); i < count; i++ {
		offset := first + (start-first+i)%count
		candidate := p.addrAt(offset)
		if candidate == p.ownV4 {
			continue
		}
		if _, taken := p.byV4[candidate]; taken {
			continue
		}
		b := &Binding{V6: v6, V4: candidate, LastUse: now, usedSinceLastScan: true}
		p.byV6[v6] = b
		p.byV4[candidate] = b
		if p.binder != nil {
			p.binder.AddDynamicHost(v6, candidate)
		}
		return candidate, nil
	}

	return netip.Addr{}, xerrors.New(xerrors.KindPoolExhausted, "dynamic pool exhausted")
}

// Scan runs a scan(now, forced) pass: a non-forced scan
// reaps bindings idle past T_idle with no traffic since the previous
// scan, then persists the table; a forced scan (shutdown) skips
// eviction and flushes the table unconditionally.
func (p *Pool) Scan(now time.Time, forced bool) []Binding {
	p.mu.Lock()

	var reaped []Binding
	if !forced {
		var stale []*Binding
		for _, b := range p.byV6 {
			if !b.usedSinceLastScan && now.Sub(b.LastUse) >= p.idleTimeout {
				stale = append(stale, b)
				continue
			}
			b.usedSinceLastScan = false
		}
		for _, b := range stale {
			delete(p.byV6, b.V6)
			delete(p.byV4, b.V4)
			reaped = append(reaped, *b)
		}
	}

	snapshot := p.snapshotLocked()
	p.mu.Unlock()

	for _, b := range reaped {
		if p.binder != nil {
			p.binder.RemoveDynamicHost(b.V6, b.V4)
		}
	}

	if p.persistPath != "" {
		if err := p.save(snapshot); err != nil {
			p.logger.Warning("dynamic pool persist failed", "error", err, "path", p.persistPath)
		} else {
			p.logger.Info("dynamic pool saved", "bindings", len(snapshot), "reaped", len(reaped))
		}
	}

	return reaped
}

func (p *Pool) snapshotLocked() []Binding {
	out := make([]Binding, 0, len(p.byV6))
	for _, b := range p.byV6 {
		out = append(out, *b)
	}
	return out
}

// Len reports the number of live bindings.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byV6)
}
