// Command tofcan-recv is the host side of a ToF-over-CAN bus. It configures
// the sensors, polls them, reassembles their batches, fuses them into a
// ring diagram and optionally records everything to SQLite.
//
// With bus.driver set to "loopback" it also runs simulated sensor nodes for
// sensors.ids on an in-memory bus.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/notnil/tofcan/internal/config"
)

func main() {
	configPath := flag.String("config", "", "configuration file (yaml, json or toml)")
	driver := flag.String("driver", "", "bus driver, overrides bus.driver")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *driver != "" {
		cfg.Bus.Driver = *driver
		if err := cfg.Validate(); err != nil {
			log.Fatal(err)
		}
	}
	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := newHost(ctx, cfg, logger)
	if err != nil {
		logger.Error("tofcan-recv setup failed", "err", err)
		os.Exit(1)
	}
	defer h.Close()

	if err := h.run(ctx); err != nil {
		logger.Error("tofcan-recv stopped", "err", err)
		os.Exit(1)
	}
}
