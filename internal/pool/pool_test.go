// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pool

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/clock"
	"grimm.is/flywall/internal/config"
	xerrors "grimm.is/flywall/internal/errors"
)

type fakeBinder struct {
	added   []netip.Addr
	removed []netip.Addr
}

func (f *fakeBinder) AddDynamicHost(v6, v4 netip.Addr)    { f.added = append(f.added, v4) }
func (f *fakeBinder) RemoveDynamicHost(v6, v4 netip.Addr) { f.removed = append(f.removed, v4) }

func validatedWithPool(t *testing.T, dataDir string) *config.Validated {
	t.Helper()
	cfg := config.Config{
		TunDevice: "nat64",
		// Own v4 deliberately falls outside the /30 pool below so the
		// exhaustion counts in TestAllocateExhaustion aren't shifted by
		// the own-address reservation exercised separately in
		// TestAllocateNeverHandsOutOwnV4.
		IPv4Addr:    "198.51.100.5",
		IPv6Addr:    "2001:db8::1",
		Prefix:      "64:ff9b::/96",
		DynamicPool: "198.51.100.0/30",
		DataDir:     dataDir,
	}
	v, err := config.Validate(cfg)
	require.NoError(t, err)
	return v
}

// TestAllocateNeverHandsOutOwnV4 mirrors the spec's local-v4-inside-
// dynamic-pool scenario (local v4 198.51.100.1, pool 198.51.100.0/24):
// the translator's own address must never be handed to a dynamic
// source even though config.Validate allows the overlap.
func TestAllocateNeverHandsOutOwnV4(t *testing.T) {
	cfg := config.Config{
		TunDevice:   "nat64",
		IPv4Addr:    "198.51.100.1",
		IPv6Addr:    "2001:db8::1",
		Prefix:      "64:ff9b::/96",
		DynamicPool: "198.51.100.0/30", // usable offsets: .1 (own v4), .2
	}
	v, err := config.Validate(cfg)
	require.NoError(t, err)

	fk := clock.NewFake(time.Unix(1000, 0))
	p, err := New(v, fk, &fakeBinder{})
	require.NoError(t, err)

	a1, err := p.Allocate(netip.MustParseAddr("2001:db8:1::1"))
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("198.51.100.2"), a1)

	_, err = p.Allocate(netip.MustParseAddr("2001:db8:1::2"))
	require.Error(t, err)
	require.Equal(t, xerrors.KindPoolExhausted, xerrors.GetKind(err))
}

func TestAllocateIsStableForSameSource(t *testing.T) {
	v := validatedWithPool(t, "")
	fk := clock.NewFake(time.Unix(1000, 0))
	b := &fakeBinder{}
	p, err := New(v, fk, b)
	require.NoError(t, err)

	client := netip.MustParseAddr("2001:db8:1::1")
	a1, err := p.Allocate(client)
	require.NoError(t, err)
	a2, err := p.Allocate(client)
	require.NoError(t, err)
	require.Equal(t, a1, a2)
	require.True(t, v.DynamicPool.Contains(a1))
}

func TestAllocateExhaustion(t *testing.T) {
	v := validatedWithPool(t, "") // /30 => 4 addresses, 2 usable
	fk := clock.NewFake(time.Unix(1000, 0))
	b := &fakeBinder{}
	p, err := New(v, fk, b)
	require.NoError(t, err)

	_, err = p.Allocate(netip.MustParseAddr("2001:db8:1::1"))
	require.NoError(t, err)
	_, err = p.Allocate(netip.MustParseAddr("2001:db8:1::2"))
	require.NoError(t, err)

	_, err = p.Allocate(netip.MustParseAddr("2001:db8:1::3"))
	require.Error(t, err)
	require.Equal(t, xerrors.KindPoolExhausted, xerrors.GetKind(err))
}

func TestScanReapsIdleBindings(t *testing.T) {
	v := validatedWithPool(t, "")
	fk := clock.NewFake(time.Unix(1000, 0))
	v.IdleTimeoutSeconds = 60
	b := &fakeBinder{}
	p, err := New(v, fk, b)
	require.NoError(t, err)

	client := netip.MustParseAddr("2001:db8:1::1")
	_, err = p.Allocate(client)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	fk.Advance(30 * time.Second)
	reaped := p.Scan(fk.Now(), false)
	require.Empty(t, reaped)
	require.Equal(t, 1, p.Len())

	fk.Advance(61 * time.Second)
	reaped = p.Scan(fk.Now(), false)
	require.Len(t, reaped, 1)
	require.Equal(t, 0, p.Len())
	require.Len(t, b.removed, 1)
}

func TestScanSecondChanceKeepsRecentlyUsedBindings(t *testing.T) {
	v := validatedWithPool(t, "")
	fk := clock.NewFake(time.Unix(1000, 0))
	v.IdleTimeoutSeconds = 60
	p, err := New(v, fk, &fakeBinder{})
	require.NoError(t, err)

	client := netip.MustParseAddr("2001:db8:1::1")
	_, err = p.Allocate(client)
	require.NoError(t, err)

	fk.Advance(90 * time.Second)
	_, err = p.Allocate(client) // touches last-use + sets used-since-last-scan
	require.NoError(t, err)

	reaped := p.Scan(fk.Now(), false)
	require.Empty(t, reaped)
	require.Equal(t, 1, p.Len())
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	v := validatedWithPool(t, dir)
	fk := clock.NewFake(time.Unix(2000, 0))
	b := &fakeBinder{}
	p, err := New(v, fk, b)
	require.NoError(t, err)

	client := netip.MustParseAddr("2001:db8:1::1")
	v4, err := p.Allocate(client)
	require.NoError(t, err)

	p.Scan(fk.Now(), true)

	_, err = os.Stat(filepath.Join(dir, "dynamic.map"))
	require.NoError(t, err)

	reloaded, err := New(v, fk, &fakeBinder{})
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	got, err := reloaded.Allocate(client)
	require.NoError(t, err)
	require.Equal(t, v4, got)
}

func TestForcedScanDoesNotEvict(t *testing.T) {
	v := validatedWithPool(t, "")
	fk := clock.NewFake(time.Unix(1000, 0))
	v.IdleTimeoutSeconds = 1
	p, err := New(v, fk, &fakeBinder{})
	require.NoError(t, err)

	client := netip.MustParseAddr("2001:db8:1::1")
	_, err = p.Allocate(client)
	require.NoError(t, err)

	fk.Advance(time.Hour)
	reaped := p.Scan(fk.Now(), true)
	require.Empty(t, reaped)
	require.Equal(t, 1, p.Len())
}
