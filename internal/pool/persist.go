// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pool

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// save atomically rewrites the persistence file: one line per binding,
// "<v6> <v4> <last-use-unix-seconds>". A missing file is an empty
// pool, so an empty snapshot still truncates any existing file.
func (p *Pool) save(bindings []Binding) error {
	tmp := p.persistPath + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp)

	w := bufio.NewWriter(f)
	for _, b := range bindings {
		if _, err := fmt.Fprintf(w, "%s %s %d\n", b.V6, b.V4, b.LastUse.Unix()); err != nil {
			f.Close()
			return fmt.Errorf("write binding: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, p.persistPath); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// load reads the persistence file (if present) and reinstates its
// bindings, materializing each one's peer entries in the address map.
func (p *Pool) load() error {
	f, err := os.Open(p.persistPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			p.logger.Warning("skipping malformed dynamic pool line", "line", line)
			continue
		}
		v6, err := netip.ParseAddr(fields[0])
		if err != nil || !v6.Is6() {
			p.logger.Warning("skipping dynamic pool line with bad v6 address", "line", line)
			continue
		}
		v4, err := netip.ParseAddr(fields[1])
		if err != nil || !v4.Is4() {
			p.logger.Warning("skipping dynamic pool line with bad v4 address", "line", line)
			continue
		}
		if !p.prefix.Contains(v4) {
			p.logger.Warning("skipping dynamic pool line outside configured pool", "v4", v4)
			continue
		}
		unixSecs, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			p.logger.Warning("skipping dynamic pool line with bad timestamp", "line", line)
			continue
		}

		b := &Binding{V6: v6, V4: v4, LastUse: time.Unix(unixSecs, 0), usedSinceLastScan: true}
		if _, taken := p.byV4[v4]; taken {
			p.logger.Warning("skipping dynamic pool line with duplicate v4 address", "v4", v4)
			continue
		}
		p.byV6[v6] = b
		p.byV4[v4] = b
		if p.binder != nil {
			p.binder.AddDynamicHost(v6, v4)
		}
	}
	return scanner.Err()
}
