// ptm215b-bridge receives EnOcean PTM 215B switch advertisements from BLE
// scanner proxies and publishes authenticated button states.
//
// Usage:
//
//	ptm215b-bridge [options]
//
// Options:
//
//	-config     Path to the YAML configuration (default: ptm215b.yaml)
//	-replay     Process a capture file and print per-line outcomes
//	-log-level  Overrides log.level from the configuration
//	-discover   Browse the network for running bridges and exit
//
// Example:
//
//	ptm215b-bridge -config /etc/ptm215b.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/majkrzak/esphome-ptm215b/pkg/config"
	"github.com/majkrzak/esphome-ptm215b/pkg/discovery"
	"github.com/pion/logging"
)

type options struct {
	configPath string
	replayPath string
	logLevel   string
	discover   bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "ptm215b.yaml", "Path to the YAML configuration")
	flag.StringVar(&o.replayPath, "replay", "", "Process a capture file instead of listening")
	flag.StringVar(&o.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, disabled)")
	flag.BoolVar(&o.discover, "discover", false, "Browse for running bridges and exit")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.discover {
		if err := discover(ctx, logging.NewDefaultLoggerFactory()); err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lf, err := newLoggerFactory(cfg, opts.logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	if opts.replayPath != "" {
		if err := replay(cfg, lf, opts.replayPath, os.Stdout); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		return
	}

	if err := run(ctx, cfg, lf); err != nil {
		log.Fatalf("Bridge error: %v", err)
	}
}

func newLoggerFactory(cfg *config.Config, override string) (*logging.DefaultLoggerFactory, error) {
	level := cfg.LogLevel()
	if override != "" {
		l, err := config.ParseLogLevel(override)
		if err != nil {
			return nil, err
		}
		level = l
	}

	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = level
	return lf, nil
}

// discover prints every bridge announcing itself on the local network.
func discover(ctx context.Context, lf logging.LoggerFactory) error {
	resolver, err := discovery.NewResolver(discovery.ResolverConfig{
		BrowseTimeout: 3 * time.Second,
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}

	bridges, err := resolver.Browse(ctx)
	if err != nil {
		return err
	}
	if len(bridges) == 0 {
		fmt.Println("No bridges found")
		return nil
	}
	for _, b := range bridges {
		fmt.Printf("%-32s %-21v devices=%d\n", b.Instance, b.Addr(), b.TXT.Devices)
	}
	return nil
}
