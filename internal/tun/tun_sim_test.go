// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package tun

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenDefaultsName(t *testing.T) {
	d, err := Open("")
	require.NoError(t, err)
	require.NotEmpty(t, d.Name())
}

func TestReadReturnsInjectedDatagram(t *testing.T) {
	d, err := Open("nat64test0")
	require.NoError(t, err)
	sim := d.(*simDevice)

	sim.Inject([]byte{0, 0, 0, 4, 1, 2, 3})

	buf := make([]byte, 64)
	n, err := d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 4, 1, 2, 3}, buf[:n])
}

func TestReadWithNothingQueuedReturnsZeroNoError(t *testing.T) {
	d, err := Open("nat64test0")
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestSetPersistentAndOwner(t *testing.T) {
	d, err := Open("nat64test0")
	require.NoError(t, err)
	require.NoError(t, d.SetPersistent(true))
	require.NoError(t, d.SetOwner(1000))
}

func TestQueryMTUDefault(t *testing.T) {
	d, err := Open("nat64test0")
	require.NoError(t, err)
	mtu, err := d.QueryMTU()
	require.NoError(t, err)
	require.Equal(t, 1500, mtu)
}

func TestWriteAfterCloseErrors(t *testing.T) {
	d, err := Open("nat64test0")
	require.NoError(t, err)
	require.NoError(t, d.Close())
	_, err = d.Write([]byte{1, 2, 3})
	require.Error(t, err)
}
