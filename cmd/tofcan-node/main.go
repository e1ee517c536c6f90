// Command tofcan-node runs a simulated ToF sensor node on a CAN bus. It
// applies config messages addressed to its id (or broadcast) and answers
// sample requests with samples or batches.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/notnil/tofcan"
	"github.com/notnil/tofcan/canbus"
	"github.com/notnil/tofcan/internal/config"
	"github.com/notnil/tofcan/processing"
)

func main() {
	configPath := flag.String("config", "", "configuration file (yaml, json or toml)")
	id := flag.Int("id", 0, "sensor id, overrides node.id")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *id != 0 {
		cfg.Node.ID = *id
	}
	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus, err := canbus.Open(ctx, cfg.Bus.BusOptions())
	if err != nil {
		logger.Error("open bus", "driver", cfg.Bus.Driver, "err", err)
		os.Exit(1)
	}
	defer bus.Close()
	if cfg.Bus.LogFrames {
		bus = canbus.NewLoggedBus(bus, logger, slog.LevelDebug, canbus.LogAll)
	}

	node, err := tofcan.NewNode(cfg.Node.ID, bus, processing.NewSimulated(processing.Scene(cfg.Node.Scene)), logger)
	if err != nil {
		logger.Error("create node", "err", err)
		os.Exit(1)
	}
	logger.Info("tofcan node running", "sensor", node.ID(), "driver", cfg.Bus.Driver, "scene", cfg.Node.Scene)

	if err := node.Run(ctx); err != nil && !errors.Is(err, canbus.ErrClosed) {
		logger.Error("node stopped", "err", err)
		os.Exit(1)
	}
	samples, batches := node.Sent()
	logger.Info("tofcan node stopped", "samples", samples, "batches", batches)
}
