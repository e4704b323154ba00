// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config defines the translator's configuration record.
// Parsing the on-disk configuration file is an external collaborator;
// this package only defines the typed, hcl-tagged record and the
// Validate step that turns raw directives into the immutable record
// the rest of the module consumes.
package config

// Config is the top-level, pre-validation configuration record. Its
// hcl tags mirror the flat directive list, tagging every field for an
// HCL-based loader even though the loader itself lives outside this
// package (cmd/nat64d's loadConfig).
type Config struct {
	TunDevice string `hcl:"tun_device,optional" json:"tun_device,omitempty"`

	IPv4Addr string `hcl:"ipv4_addr,optional" json:"ipv4_addr,omitempty"`
	IPv6Addr string `hcl:"ipv6_addr,optional" json:"ipv6_addr,omitempty"`

	// Maps holds the ordered static 1:1 bindings from `map` directives.
	// Later directives may only add, never replace.
	Maps []MapEntry `hcl:"map,block" json:"map,omitempty"`

	// Prefix is the NAT64 translation prefix (RFC 6052), e.g.
	// "64:ff9b::/96".
	Prefix string `hcl:"prefix,optional" json:"prefix,omitempty"`

	// DynamicPool is an IPv4 CIDR, e.g. "192.168.255.0/24". Empty means
	// dynamic allocation is disabled.
	DynamicPool string `hcl:"dynamic_pool,optional" json:"dynamic_pool,omitempty"`

	// DataDir is the persistence root for dynamic.map. Empty disables
	// persistence.
	DataDir string `hcl:"data_dir,optional" json:"data_dir,omitempty"`

	// CacheSize is the cache-size directive (entries). It is carried
	// into Validated but no component reads it; the dynamic pool's
	// capacity is set by the DynamicPool CIDR alone.
	CacheSize int `hcl:"cache_size,optional" json:"cache_size,omitempty"`

	StrictFragHdr bool `hcl:"strict_frag_hdr,optional" json:"strict_frag_hdr,omitempty"`

	// WKPFStrict enforces RFC 6052 §3.1's rule against translating
	// private IPv4 ranges under 64:ff9b::/96.
	WKPFStrict bool `hcl:"wkpf_strict,optional" json:"wkpf_strict,omitempty"`

	// OfflinkMTU is the egress MTU; must be >= 1280.
	OfflinkMTU int `hcl:"offlink_mtu,optional" json:"offlink_mtu,omitempty"`

	// IdleTimeoutSeconds is T_idle; default 2 hours.
	IdleTimeoutSeconds int `hcl:"idle_timeout_seconds,optional" json:"idle_timeout_seconds,omitempty"`

	// PoolCheckIntervalSeconds is POOL_CHECK_INTERVAL; default 3600.
	PoolCheckIntervalSeconds int `hcl:"pool_check_interval_seconds,optional" json:"pool_check_interval_seconds,omitempty"`

	// CacheCheckIntervalSeconds is CACHE_CHECK_INTERVAL; default 5.
	CacheCheckIntervalSeconds int `hcl:"cache_check_interval_seconds,optional" json:"cache_check_interval_seconds,omitempty"`
}

// MapEntry is a single `map` directive: a static 1:1 binding between an
// IPv4 and an IPv6 address.
type MapEntry struct {
	V4 string `hcl:"v4,attr" json:"v4"`
	V6 string `hcl:"v6,attr" json:"v6"`
}

// Default values for the maintenance timers.
const (
	DefaultIdleTimeoutSeconds        = 2 * 60 * 60
	DefaultPoolCheckIntervalSeconds  = 3600
	DefaultCacheCheckIntervalSeconds = 5
	DefaultCacheSize                 = 4096
	MinimumMTU                       = 1280
)

// WithDefaults returns a copy of cfg with zero-valued timer/size fields
// filled in from the package defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.IdleTimeoutSeconds == 0 {
		cfg.IdleTimeoutSeconds = DefaultIdleTimeoutSeconds
	}
	if cfg.PoolCheckIntervalSeconds == 0 {
		cfg.PoolCheckIntervalSeconds = DefaultPoolCheckIntervalSeconds
	}
	if cfg.CacheCheckIntervalSeconds == 0 {
		cfg.CacheCheckIntervalSeconds = DefaultCacheCheckIntervalSeconds
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	return cfg
}
