package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/tofcan/canbus"
	"github.com/notnil/tofcan/internal/config"
)

func loopbackConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Bus.Driver = canbus.DriverLoopback
	cfg.Sensors.IDs = []int{1, 3}
	cfg.Sensors.Frequency = 60
	cfg.Sensors.Area = "row"
	cfg.Sensors.Index = 4
	cfg.Sensors.Selector = "all"
	cfg.Sensors.RequestInterval = 20 * time.Millisecond
	cfg.Queue.PollInterval = 5 * time.Millisecond
	cfg.Ring = config.Ring{Size: 72, Radius: 60, MaxAge: 1000, SensorCount: 4}
	cfg.Store = config.Store{Enabled: true, Path: filepath.Join(t.TempDir(), "recv.db")}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestHostLoopbackEndToEnd(t *testing.T) {
	cfg := loopbackConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, err := newHost(ctx, cfg, logger)
	require.NoError(t, err)
	defer h.Close()
	require.Len(t, h.nodes, 2)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.run(runCtx) }()

	require.Eventually(t, func() bool {
		return h.recv.Stats().Valid >= 4
	}, 5*time.Second, 10*time.Millisecond)
	stop()
	require.NoError(t, <-done)

	st := h.recv.Stats()
	assert.Zero(t, st.Malformed)
	assert.Zero(t, st.Invalid)

	batches, _, err := h.store.Counts(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, batches, 4)

	recorded, err := h.store.Batches(ctx, 3, 1)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, []int16{1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000}, recorded[0].Batch.Samples())

	_, p, ok := h.ring.Closest()
	require.True(t, ok)
	assert.Greater(t, p.Distance, int16(1000))
}

func TestNewHostRejectsUnknownDriver(t *testing.T) {
	cfg := loopbackConfig(t)
	cfg.Bus.Driver = "pigeon"
	_, err := newHost(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, canbus.ErrUnsupportedDriver)
}
