// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command nat64d is the NAT64 translator daemon: it wires
// configuration, the address map and dynamic pool, the translator
// core, and the TUN event loop together.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"grimm.is/flywall/internal/addrmap"
	"grimm.is/flywall/internal/clock"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/eventloop"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/pool"
	"grimm.is/flywall/internal/translator"
	"grimm.is/flywall/internal/tun"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	flags := flag.NewFlagSet("nat64d", flag.ExitOnError)
	configPath := flags.String("config", "/etc/nat64d.conf", "path to the HCL configuration file")
	debug := flags.Bool("debug", false, "enable debug logging")
	mktun := flags.Bool("mktun", false, "create a persistent tun device and exit")
	rmtun := flags.Bool("rmtun", false, "destroy the persistent tun device and exit")
	stdout := flags.Bool("stdout", true, "log to stdout instead of stderr")
	flags.Parse(os.Args[1:])

	if *stdout {
		logging.SetOutput(os.Stdout)
	}
	logging.SetDebug(*debug)
	logger := logging.WithComponent("nat64d")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Crit("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	validated, err := config.Validate(cfg)
	if err != nil {
		logger.Crit("invalid configuration", "error", err)
		os.Exit(1)
	}

	if *mktun || *rmtun {
		// --mktun/--rmtun toggle persistence and exit without entering
		// the event loop.
		dev, err := tun.Open(validated.TunDevice)
		if err != nil {
			logger.Crit("failed to open tun device", "error", err)
			os.Exit(1)
		}
		defer dev.Close()
		if err := dev.SetPersistent(*mktun); err != nil {
			logger.Crit("failed to set tun persistence", "error", err)
			os.Exit(1)
		}
		logger.Notice("tun device persistence updated", "device", dev.Name(), "persistent", *mktun)
		return
	}

	if err := run(validated); err != nil {
		logger.Crit("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

// loadConfig parses path as HCL into a config.Config. The decode step
// itself is a thin call into hashicorp/hcl/v2's own API (hclparse +
// gohcl), not a bespoke schema loader: a full-featured loader with
// migrations/versioning is explicitly out of scope.
func loadConfig(path string) (config.Config, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return config.Config{}, fmt.Errorf("parse %s: %w", path, diags)
	}

	var cfg config.Config
	if diags := gohcl.DecodeBody(f.Body, nil, &cfg); diags.HasErrors() {
		return config.Config{}, fmt.Errorf("decode %s: %w", path, diags)
	}
	return cfg.WithDefaults(), nil
}

func run(cfg *config.Validated) error {
	logger := logging.WithComponent("nat64d")

	addrMap, err := addrmap.New(cfg)
	if err != nil {
		return fmt.Errorf("build address map: %w", err)
	}

	var dynamicPool *pool.Pool
	if cfg.HasDynamicPool {
		dynamicPool, err = pool.New(cfg, clock.System, addrMap)
		if err != nil {
			return fmt.Errorf("build dynamic pool: %w", err)
		}
		addrMap.SetAllocator(dynamicPool)
	}

	dev, err := tun.Open(cfg.TunDevice)
	if err != nil {
		return fmt.Errorf("open tun device: %w", err)
	}
	if err := tun.SetUpAndMTU(dev.Name(), cfg.OfflinkMTU); err != nil {
		logger.Warning("failed to set tun mtu/up via netlink", "error", err)
	}

	tr := translator.New(cfg, addrMap, prometheus.DefaultRegisterer)
	loop := eventloop.New(dev, tr, dynamicPool, cfg, clock.System)

	logger.Notice("nat64d starting",
		"tun_device", dev.Name(),
		"own_v4", cfg.OwnV4,
		"own_v6", cfg.OwnV6,
		"prefix", cfg.Prefix,
		"dynamic_pool", cfg.HasDynamicPool,
		"static_maps", len(cfg.StaticMaps),
	)

	return loop.Run(context.Background())
}
