package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notnil/tofcan"
	"github.com/notnil/tofcan/canbus"
	"github.com/notnil/tofcan/internal/config"
	"github.com/notnil/tofcan/internal/store"
	"github.com/notnil/tofcan/processing"
	"github.com/notnil/tofcan/ring"
)

const statsInterval = 5 * time.Second

// host wires bus, receiver, queue, ring and store together.
type host struct {
	cfg    config.Config
	tof    tofcan.Config
	log    *slog.Logger
	bus    canbus.Bus
	recv   *tofcan.Receiver
	queue  *tofcan.BatchQueue
	ring   *ring.Ring
	store  *store.Store
	nodes  []*tofcan.Node
	closer []func() error
}

func newHost(ctx context.Context, cfg config.Config, logger *slog.Logger) (*host, error) {
	tc, err := cfg.Sensors.ToF()
	if err != nil {
		return nil, err
	}
	h := &host{
		cfg:   cfg,
		tof:   tc,
		log:   logger,
		queue: tofcan.NewBatchQueue(cfg.Queue.Capacity),
		ring:  ring.New(cfg.Ring.Size, cfg.Ring.Radius, cfg.Ring.MaxAge),
	}

	opts := cfg.Bus.BusOptions()
	if cfg.Bus.Driver == canbus.DriverLoopback {
		lb := canbus.NewLoopbackBus()
		opts.Loopback = lb
		h.closer = append(h.closer, lb.Close)
		for _, id := range cfg.Sensors.IDs {
			n, err := tofcan.NewNode(id, lb.Open(), processing.NewSimulated(processing.Scene(cfg.Node.Scene)), logger)
			if err != nil {
				h.Close()
				return nil, err
			}
			h.nodes = append(h.nodes, n)
		}
	}

	bus, err := canbus.Open(ctx, opts)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("open %s bus: %w", cfg.Bus.Driver, err)
	}
	h.closer = append(h.closer, bus.Close)
	h.bus = bus
	if cfg.Bus.LogFrames {
		h.bus = canbus.NewLoggedBus(bus, logger, slog.LevelDebug, canbus.LogAll)
	}

	if cfg.Store.Enabled {
		st, err := store.Open(ctx, cfg.Store.Path, tc.String())
		if err != nil {
			h.Close()
			return nil, err
		}
		h.store = st
		h.closer = append(h.closer, st.Close)
		logger.Info("recording", "path", cfg.Store.Path, "session", st.Session())
	}

	h.recv = tofcan.NewReceiver(tofcan.Handlers{
		Sample: h.onSample,
		Batch:  h.onBatch,
	})
	return h, nil
}

// Close releases everything newHost opened, in reverse order.
func (h *host) Close() error {
	var errs []error
	for i := len(h.closer) - 1; i >= 0; i-- {
		errs = append(errs, h.closer[i]())
	}
	h.closer = nil
	return errors.Join(errs...)
}

func (h *host) onSample(sensor int, s tofcan.Sample) {
	h.log.Debug("sample", "sensor", sensor, "distance", s.Distance, "below", s.BelowThreshold)
	if h.store != nil {
		if err := h.store.RecordSample(context.Background(), sensor, s, time.Now()); err != nil {
			h.log.Warn("record sample", "err", err)
		}
	}
}

func (h *host) onBatch(sensor int, b tofcan.Batch, valid bool) {
	if !valid {
		h.log.Debug("interrupted batch", "sensor", sensor, "batch", b.BatchID,
			"received", b.PacketsReceived, "expected", b.PacketsExpected)
	}
	if h.queue.Push(tofcan.SensorBatch{Sensor: sensor, Valid: valid, Batch: b}) {
		h.log.Debug("batch queue full, oldest batch dropped")
	}
}

// run serves the bus until ctx is cancelled.
func (h *host) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, n := range h.nodes {
		g.Go(func() error { return n.Run(ctx) })
	}
	g.Go(func() error { return h.receive(ctx) })
	g.Go(func() error { return h.consume(ctx) })
	g.Go(func() error {
		if err := h.configure(ctx); err != nil {
			return err
		}
		return h.poll(ctx)
	})

	err := g.Wait()
	st := h.recv.Stats()
	h.log.Info("tofcan-recv stopped", "frames", st.Frames, "valid", st.Valid, "invalid", st.Invalid,
		"samples", st.Samples, "malformed", st.Malformed, "overwritten", h.queue.Overwritten())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// configure sends the configured settings to every sensor, or once as a
// broadcast when no ids are listed.
func (h *host) configure(ctx context.Context) error {
	targets := h.cfg.Sensors.IDs
	if len(targets) == 0 {
		targets = []int{tofcan.Broadcast}
	}
	for _, id := range targets {
		f, err := tofcan.EncodeConfig(id, h.tof)
		if err != nil {
			return err
		}
		if err := h.bus.Send(ctx, f); err != nil {
			return fmt.Errorf("configure sensor %d: %w", id, err)
		}
	}
	h.log.Info("sensors configured", "sensors", targets, "config", h.tof.String())
	return nil
}

func (h *host) receive(ctx context.Context) error {
	for {
		f, err := h.bus.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, canbus.ErrClosed) {
				return err
			}
			h.log.Warn("receive", "err", err)
			continue
		}
		h.recv.HandleFrame(f)
	}
}

// poll sends sample requests to on-demand sensors.
func (h *host) poll(ctx context.Context) error {
	if h.tof.Timing != tofcan.OnDemand || h.cfg.Sensors.RequestInterval <= 0 || len(h.cfg.Sensors.IDs) == 0 {
		return nil
	}
	t := time.NewTicker(h.cfg.Sensors.RequestInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		for _, id := range h.cfg.Sensors.IDs {
			f, err := tofcan.EncodeSampleRequest(id)
			if err != nil {
				return err
			}
			if err := h.bus.Send(ctx, f); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				h.log.Warn("request", "sensor", id, "err", err)
			}
		}
	}
}

// consume drains the batch queue into the ring and the store.
func (h *host) consume(ctx context.Context) error {
	poll := time.NewTicker(h.cfg.Queue.PollInterval)
	defer poll.Stop()
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()
	for {
		select {
		case <-ctx.Done():
			h.drain(context.Background())
			return ctx.Err()
		case <-poll.C:
			h.drain(ctx)
		case <-stats.C:
			h.logStats()
		}
	}
}

func (h *host) drain(ctx context.Context) {
	for {
		sb, ok := h.queue.Pop()
		if !ok {
			return
		}
		if sb.Valid {
			h.ring.Insert(sb.Batch, ring.SensorAngle(sb.Sensor, h.cfg.Ring.SensorCount))
			h.log.Debug("batch", "sensor", sb.Sensor, "batch", sb.Batch.BatchID, "samples", sb.Batch.Samples())
		}
		if h.store != nil {
			if err := h.store.RecordBatch(ctx, sb, time.Now()); err != nil {
				h.log.Warn("record batch", "err", err)
			}
		}
	}
}

func (h *host) logStats() {
	st := h.recv.Stats()
	attrs := []any{
		"frames", st.Frames, "valid", st.Valid, "invalid", st.Invalid, "samples", st.Samples,
		"overflow", st.Overflow, "duplicates", st.Duplicates, "malformed", st.Malformed,
		"overwritten", h.queue.Overwritten(),
	}
	if cell, p, ok := h.ring.Closest(); ok {
		attrs = append(attrs, "closest_cell", cell, "closest_mm", p.Distance)
	}
	h.log.Info("tofcan-recv stats", attrs...)
}
