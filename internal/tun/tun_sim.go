// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package tun

import (
	"errors"
	"sync"
)

// simDevice is an in-memory stand-in for a real TUN device, used on
// non-Linux development platforms and in tests the way SimKernel stands
// in for LinuxKernel.
type simDevice struct {
	mu         sync.Mutex
	name       string
	mtu        int
	persistent bool
	owner      int
	closed     bool
	inbound    chan []byte
}

// Open returns an in-memory Device; name is recorded but no real
// interface is created.
func Open(name string) (Device, error) {
	if name == "" {
		name = "nat64sim0"
	}
	return &simDevice{name: name, mtu: 1500, inbound: make(chan []byte, 64)}, nil
}

func (d *simDevice) Name() string { return d.name }

func (d *simDevice) Read(p []byte) (int, error) {
	select {
	case b, ok := <-d.inbound:
		if !ok {
			return 0, errors.New("tun: device closed")
		}
		n := copy(p, b)
		return n, nil
	default:
		return 0, nil
	}
}

// Write discards the datagram: there is no kernel networking stack on
// the other end of a simulated device, and written bytes are not
// recorded. Inject on the concrete type feeds the read side only.
func (d *simDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errors.New("tun: device closed")
	}
	return len(p), nil
}

func (d *simDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.inbound)
	return nil
}

func (d *simDevice) SetPersistent(persistent bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.persistent = persistent
	return nil
}

func (d *simDevice) SetOwner(uid int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owner = uid
	return nil
}

func (d *simDevice) QueryMTU() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mtu, nil
}

// Inject feeds a datagram to a subsequent Read, for tests driving the
// event loop against a simulated device.
func (d *simDevice) Inject(b []byte) {
	cp := append([]byte(nil), b...)
	d.inbound <- cp
}

// SetUpAndMTU is the non-Linux counterpart of tun_linux.go's
// netlink-backed variant: it does nothing and returns nil.
func SetUpAndMTU(name string, mtu int) error {
	return nil
}
