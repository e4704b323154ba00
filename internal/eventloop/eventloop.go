// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package eventloop drives the single-threaded read/translate/write
// cycle: one goroutine reads datagrams off a TUN device,
// hands them to the translator, and writes back whatever comes out,
// interleaved with periodic pool and cache maintenance and a clean
// shutdown on SIGINT/SIGTERM.
package eventloop

import (
	"context"
	"encoding/binary"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/flywall/internal/clock"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/pool"
	"grimm.is/flywall/internal/translator"
)

// Device is the subset of tun.Device the loop needs; kept narrow so
// tests can supply a fake without importing internal/tun.
type Device interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// maxDatagram is the largest single TUN frame the loop will attempt to
// read, 4-byte family prefix included; an oversized read is logged and
// discarded rather than crashing the process.
const maxDatagram = 65536 + 4

// drainBudget bounds how many queued datagrams a single wakeup will
// process before yielding back to select, so one bursty flow cannot
// starve pool/cache maintenance.
const drainBudget = 256

// Loop ties a Device to a Translator and the maintenance state that
// needs periodic sweeping (the dynamic pool). The address map keeps no
// cache, so the cache tick has nothing to sweep.
type Loop struct {
	dev        Device
	translator *translator.Translator
	pool       *pool.Pool
	clk        clock.Clock
	cfg        *config.Validated
	logger     *logging.Logger

	poolCheckInterval  time.Duration
	cacheCheckInterval time.Duration
}

// New builds a Loop. pool may be nil when the configuration has no
// dynamic pool (dynamic_pool is optional in configuration).
func New(dev Device, tr *translator.Translator, p *pool.Pool, cfg *config.Validated, clk clock.Clock) *Loop {
	return &Loop{
		dev:                dev,
		translator:         tr,
		pool:               p,
		clk:                clk,
		cfg:                cfg,
		logger:             logging.WithComponent("eventloop"),
		poolCheckInterval:  time.Duration(cfg.PoolCheckIntervalSeconds) * time.Second,
		cacheCheckInterval: time.Duration(cfg.CacheCheckIntervalSeconds) * time.Second,
	}
}

// Run drains TUN reads and maintenance ticks until ctx is cancelled or
// a SIGINT/SIGTERM arrives: the signal is registered on a channel
// multiplexed in the same select as the data path rather than an
// async signal handler.
func (l *Loop) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	readCh := make(chan []byte, drainBudget)
	readErrCh := make(chan error, 1)
	go l.readLoop(ctx, readCh, readErrCh)

	var poolTicker, cacheTicker *time.Ticker
	var poolC, cacheC <-chan time.Time
	if l.poolCheckInterval > 0 {
		poolTicker = time.NewTicker(l.poolCheckInterval)
		defer poolTicker.Stop()
		poolC = poolTicker.C
	}
	if l.cacheCheckInterval > 0 {
		cacheTicker = time.NewTicker(l.cacheCheckInterval)
		defer cacheTicker.Stop()
		cacheC = cacheTicker.C
	}

	l.logger.Notice("event loop started",
		"tun_device", l.cfg.TunDevice,
		"offlink_mtu", l.cfg.OfflinkMTU,
		"has_dynamic_pool", l.cfg.HasDynamicPool,
	)

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()

		case sig := <-sigCh:
			l.logger.Notice("signal received, shutting down", "signal", sig.String())
			l.shutdown()
			return nil

		case err := <-readErrCh:
			l.logger.Err("tun read failed, shutting down", "error", err)
			l.shutdown()
			return err

		case frame := <-readCh:
			l.drainAndHandle(frame, readCh)

		case <-poolC:
			if l.pool != nil {
				evicted := l.pool.Scan(l.clk.Now(), false)
				if len(evicted) > 0 {
					l.logger.Debug("pool maintenance evicted idle bindings", "count", len(evicted))
				}
			}

		case <-cacheC:
			// Address-map lookups are O(log n) bart.Table matches with no
			// separate cache to sweep; the tick exists so a future cache
			// layer has a home without reshaping the loop.
		}
	}
}

// drainAndHandle processes frame and up to drainBudget-1 more already
// queued in readCh, bounding a single wakeup's work.
func (l *Loop) drainAndHandle(frame []byte, readCh <-chan []byte) {
	l.handle(frame)
	for i := 0; i < drainBudget-1; i++ {
		select {
		case next := <-readCh:
			l.handle(next)
		default:
			return
		}
	}
}

func (l *Loop) handle(frame []byte) {
	if len(frame) < 4 {
		l.logger.Debug("short tun frame dropped", "length", len(frame))
		return
	}
	family := translator.Family(binary.BigEndian.Uint32(frame[:4]))
	emissions := l.translator.Handle(family, frame[4:])
	for _, e := range emissions {
		out := make([]byte, 4+len(e.Bytes))
		binary.BigEndian.PutUint32(out[:4], uint32(e.Family))
		copy(out[4:], e.Bytes)
		if _, err := l.dev.Write(out); err != nil {
			l.logger.Warning("tun write failed", "error", err)
		}
	}
}

// readLoop owns the blocking Read calls so Run's select never blocks
// on device I/O directly; a nonblocking Device returning
// (0, nil) on EAGAIN just spins this goroutine rather than the whole
// loop.
func (l *Loop) readLoop(ctx context.Context, out chan<- []byte, errc chan<- error) {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := l.dev.Read(buf)
		if err != nil {
			select {
			case errc <- err:
			case <-ctx.Done():
			}
			return
		}
		if n == 0 {
			continue
		}
		if n == len(buf) {
			l.logger.Warning("tun read filled the receive buffer, dropping possibly truncated datagram", "size", n)
			continue
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) shutdown() {
	if l.pool != nil {
		l.pool.Scan(l.clk.Now(), true)
	}
	if err := l.dev.Close(); err != nil {
		l.logger.Warning("error closing tun device", "error", err)
	}
	l.logger.Notice("event loop stopped")
}
