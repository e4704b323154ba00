// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package tun

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const (
	ifnameSize = 16
	iffTun     = 0x0001
	iffNoPI    = 0x1000
	tunDevPath = "/dev/net/tun"
)

// ifreqFlags mirrors the kernel's struct ifreq layout for the TUNSETIFF
// ioctl: a fixed-size interface name followed by a flags word.
type ifreqFlags struct {
	name  [ifnameSize]byte
	flags uint16
	_     [22]byte // pad to sizeof(struct ifreq)
}

// linuxDevice opens a real /dev/net/tun character device in IFF_TUN |
// IFF_NO_PI mode (no per-packet protocol-family header).
type linuxDevice struct {
	mu   sync.Mutex
	file *os.File
	name string
}

// Open creates or attaches to the named TUN device. An empty name asks
// the kernel to pick one (tunN).
func Open(name string) (Device, error) {
	f, err := os.OpenFile(tunDevPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", tunDevPath, err)
	}

	var req ifreqFlags
	copy(req.name[:], name)
	req.flags = iffTun | iffNoPI

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&req))); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("TUNSETIFF: %w", errno)
	}

	if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
		f.Close()
		return nil, fmt.Errorf("set nonblocking: %w", err)
	}

	actualName := nullTerminated(req.name[:])
	return &linuxDevice{file: f, name: actualName}, nil
}

func nullTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func (d *linuxDevice) Name() string { return d.name }

// Read blocks the caller in a nonblocking-fd poll loop; EAGAIN is
// translated into a zero-length, nil-error read so the eventloop's
// select-driven caller treats it as "nothing ready" rather than an
// error, rather than propagating a spurious failure on an otherwise
// healthy device.
func (d *linuxDevice) Read(p []byte) (int, error) {
	n, err := d.file.Read(p)
	if err != nil && isEAGAIN(err) {
		return 0, nil
	}
	return n, err
}

func (d *linuxDevice) Write(p []byte) (int, error) {
	n, err := d.file.Write(p)
	if err != nil && isEAGAIN(err) {
		return 0, nil
	}
	return n, err
}

func isEAGAIN(err error) bool {
	pe, ok := err.(*os.PathError)
	if !ok {
		return false
	}
	errno, ok := pe.Err.(unix.Errno)
	return ok && (errno == unix.EAGAIN || errno == unix.EWOULDBLOCK)
}

func (d *linuxDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}

// SetPersistent toggles TUNSETPERSIST, the ioctl --mktun/--rmtun rely
// on: a persistent device stays configured in the kernel after every fd
// referencing it is closed.
func (d *linuxDevice) SetPersistent(persistent bool) error {
	var flag uintptr
	if persistent {
		flag = 1
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), uintptr(unix.TUNSETPERSIST), flag); errno != 0 {
		return fmt.Errorf("TUNSETPERSIST: %w", errno)
	}
	return nil
}

// SetOwner restricts the persistent device to uid via TUNSETOWNER.
func (d *linuxDevice) SetOwner(uid int) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), uintptr(unix.TUNSETOWNER), uintptr(uid)); errno != 0 {
		return fmt.Errorf("TUNSETOWNER: %w", errno)
	}
	return nil
}

// QueryMTU reads the interface's current MTU via netlink rather than
// the SIOCGIFMTU ioctl, since the link attributes are already available
// through the same library used to bring the interface up.
func (d *linuxDevice) QueryMTU() (int, error) {
	link, err := netlink.LinkByName(d.name)
	if err != nil {
		return 0, fmt.Errorf("netlink link lookup %s: %w", d.name, err)
	}
	return link.Attrs().MTU, nil
}

// SetUpAndMTU brings the device up and sets its MTU via netlink,
// called once at startup after Open.
func SetUpAndMTU(name string, mtu int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("netlink link lookup %s: %w", name, err)
	}
	if mtu > 0 {
		if err := netlink.LinkSetMTU(link, mtu); err != nil {
			return fmt.Errorf("netlink set mtu: %w", err)
		}
	}
	return netlink.LinkSetUp(link)
}
