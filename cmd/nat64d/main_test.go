// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigParsesHCL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nat64d.conf")
	body := `
tun_device = "nat64"
ipv4_addr  = "198.51.100.1"
ipv6_addr  = "2001:db8::1"
prefix     = "64:ff9b::/96"

map {
  v4 = "203.0.113.5"
  v6 = "2001:db8:1::5"
}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "nat64", cfg.TunDevice)
	require.Equal(t, "198.51.100.1", cfg.IPv4Addr)
	require.Len(t, cfg.Maps, 1)
	require.Equal(t, "203.0.113.5", cfg.Maps[0].V4)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.conf"))
	require.Error(t, err)
}
