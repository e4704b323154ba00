// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"net/netip"

	xerrors "grimm.is/flywall/internal/errors"
)

// validPrefixLengths are the RFC 6052 prefix lengths a NAT64 prefix may
// use.
var validPrefixLengths = map[int]bool{32: true, 40: true, 48: true, 56: true, 64: true, 96: true}

// Validated is the immutable, parsed configuration record the rest of
// the module consumes. Unlike Config, every address field is a
// netip.Addr/netip.Prefix so components never re-parse strings on the
// packet path.
type Validated struct {
	TunDevice string

	OwnV4 netip.Addr
	OwnV6 netip.Addr

	StaticMaps []StaticMap

	Prefix netip.Prefix

	HasDynamicPool bool
	DynamicPool    netip.Prefix

	DataDir string

	CacheSize int

	StrictFragHdr bool
	WKPFStrict    bool

	OfflinkMTU int

	IdleTimeoutSeconds        int
	PoolCheckIntervalSeconds  int
	CacheCheckIntervalSeconds int
}

// StaticMap is one validated `map` directive.
type StaticMap struct {
	V4 netip.Addr
	V6 netip.Addr
}

// Validate parses and cross-checks cfg, returning the immutable record
// components borrow by reference thereafter. Every failure is
// KindConfigInvalid: misconfiguration must halt before the TUN is
// attached.
func Validate(cfg Config) (*Validated, error) {
	cfg = cfg.WithDefaults()

	v := &Validated{
		TunDevice:                 cfg.TunDevice,
		DataDir:                   cfg.DataDir,
		CacheSize:                 cfg.CacheSize,
		StrictFragHdr:             cfg.StrictFragHdr,
		WKPFStrict:                cfg.WKPFStrict,
		OfflinkMTU:                cfg.OfflinkMTU,
		IdleTimeoutSeconds:        cfg.IdleTimeoutSeconds,
		PoolCheckIntervalSeconds:  cfg.PoolCheckIntervalSeconds,
		CacheCheckIntervalSeconds: cfg.CacheCheckIntervalSeconds,
	}

	if cfg.TunDevice == "" {
		return nil, xerrors.New(xerrors.KindConfigInvalid, "tun-device is required")
	}

	if cfg.OfflinkMTU != 0 && cfg.OfflinkMTU < MinimumMTU {
		return nil, xerrors.Errorf(xerrors.KindConfigInvalid, "offlink-mtu %d is below the minimum of %d", cfg.OfflinkMTU, MinimumMTU)
	}
	if v.OfflinkMTU == 0 {
		v.OfflinkMTU = MinimumMTU
	}

	var err error
	if v.OwnV4, err = parseAddr(cfg.IPv4Addr, "ipv4-addr"); err != nil {
		return nil, err
	}
	if v.OwnV6, err = parseAddr(cfg.IPv6Addr, "ipv6-addr"); err != nil {
		return nil, err
	}

	if cfg.Prefix != "" {
		v.Prefix, err = netip.ParsePrefix(cfg.Prefix)
		if err != nil {
			return nil, xerrors.Wrapf(err, xerrors.KindConfigInvalid, "invalid prefix %q", cfg.Prefix)
		}
		if !v.Prefix.Addr().Is6() {
			return nil, xerrors.Errorf(xerrors.KindConfigInvalid, "prefix %q must be an IPv6 prefix", cfg.Prefix)
		}
		if !validPrefixLengths[v.Prefix.Bits()] {
			return nil, xerrors.Errorf(xerrors.KindConfigInvalid, "prefix length /%d is not one of the RFC 6052 lengths (32/40/48/56/64/96)", v.Prefix.Bits())
		}
	}

	for _, m := range cfg.Maps {
		sm := StaticMap{}
		if sm.V4, err = parseAddr(m.V4, "map v4"); err != nil {
			return nil, err
		}
		if sm.V6, err = parseAddr(m.V6, "map v6"); err != nil {
			return nil, err
		}
		v.StaticMaps = append(v.StaticMaps, sm)
	}

	if cfg.DynamicPool != "" {
		pfx, err := netip.ParsePrefix(cfg.DynamicPool)
		if err != nil {
			return nil, xerrors.Wrapf(err, xerrors.KindConfigInvalid, "invalid dynamic-pool %q", cfg.DynamicPool)
		}
		if !pfx.Addr().Is4() {
			return nil, xerrors.Errorf(xerrors.KindConfigInvalid, "dynamic-pool %q must be an IPv4 CIDR", cfg.DynamicPool)
		}
		v.HasDynamicPool = true
		v.DynamicPool = pfx.Masked()
	}

	if v.Prefix.IsValid() && v.Prefix.Contains(v.OwnV6) {
		return nil, xerrors.New(xerrors.KindConfigInvalid, "ipv6-addr must not fall inside the translating prefix")
	}
	// ipv4-addr is allowed inside dynamic-pool: the pool reserves its
	// own offset so it is never handed out to a dynamic source.

	return v, nil
}

func parseAddr(s, field string) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, xerrors.Errorf(xerrors.KindConfigInvalid, "%s is required", field)
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, xerrors.Wrapf(err, xerrors.KindConfigInvalid, "invalid %s %q", field, s)
	}
	return a, nil
}

// String implements fmt.Stringer for log-friendly summaries.
func (v *Validated) String() string {
	return fmt.Sprintf("tun=%s v4=%s v6=%s prefix=%s dynamic-pool=%v", v.TunDevice, v.OwnV4, v.OwnV6, v.Prefix, v.HasDynamicPool)
}
