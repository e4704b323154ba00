// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tun abstracts the TUN device the translator reads and writes
// 4-byte-prefixed IPv4/IPv6 datagrams through: a real implementation on
// Linux, an in-memory one everywhere else.
package tun

import "io"

// Device is a TUN network interface in IFF_TUN (no ethernet framing)
// mode. Read/Write exchange whole datagrams, each prefixed by the
// 4-byte address-family tag.
type Device interface {
	io.ReadWriteCloser

	// Name returns the interface name the device was opened (or
	// created) as.
	Name() string

	// SetPersistent toggles the device's persistence flag: a
	// persistent TUN survives the owning process exiting, the
	// behavior --mktun/--rmtun rely on.
	SetPersistent(persistent bool) error

	// SetOwner restricts the device to a single uid via TUNSETOWNER.
	SetOwner(uid int) error

	// QueryMTU returns the kernel's current MTU for this interface.
	QueryMTU() (int, error)
}
