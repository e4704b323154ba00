// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	xerrors "grimm.is/flywall/internal/errors"
)

func baseConfig() Config {
	return Config{
		TunDevice:   "nat64",
		IPv4Addr:    "198.51.100.1",
		IPv6Addr:    "2001:db8::1",
		Prefix:      "64:ff9b::/96",
		DynamicPool: "198.51.100.0/24",
		Maps: []MapEntry{
			{V4: "203.0.113.5", V6: "2001:db8:1::5"},
		},
	}
}

func TestValidateOK(t *testing.T) {
	v, err := Validate(baseConfig())
	require.NoError(t, err)
	require.Equal(t, 96, v.Prefix.Bits())
	require.True(t, v.HasDynamicPool)
	require.Equal(t, MinimumMTU, v.OfflinkMTU)
	require.Equal(t, DefaultIdleTimeoutSeconds, v.IdleTimeoutSeconds)
	require.Len(t, v.StaticMaps, 1)
}

func TestValidateRejectsSmallMTU(t *testing.T) {
	cfg := baseConfig()
	cfg.OfflinkMTU = 1000
	_, err := Validate(cfg)
	require.Error(t, err)
	require.Equal(t, xerrors.KindConfigInvalid, xerrors.GetKind(err))
}

func TestValidateRejectsBadPrefixLength(t *testing.T) {
	cfg := baseConfig()
	cfg.Prefix = "64:ff9b::/100"
	_, err := Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsMissingTunDevice(t *testing.T) {
	cfg := baseConfig()
	cfg.TunDevice = ""
	_, err := Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsOwnV6InsidePrefix(t *testing.T) {
	cfg := baseConfig()
	cfg.IPv6Addr = "64:ff9b::1"
	_, err := Validate(cfg)
	require.Error(t, err)
}

func TestValidateAllowsOwnV4InsidePool(t *testing.T) {
	cfg := baseConfig()
	cfg.IPv4Addr = "198.51.100.50"
	_, err := Validate(cfg)
	require.NoError(t, err)
}

func TestValidateRejectsBadDynamicPoolFamily(t *testing.T) {
	cfg := baseConfig()
	cfg.DynamicPool = "2001:db8::/96"
	_, err := Validate(cfg)
	require.Error(t, err)
}
