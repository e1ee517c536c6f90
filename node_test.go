package tofcan

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/tofcan/canbus"
	"github.com/notnil/tofcan/processing"
)

// gradient puts 100*(x+1)+y at every point.
func gradient(x, y, _ int, _ uint64) (int16, uint8) {
	return int16(100*(x+1) + y), processing.StatusValid
}

type host struct {
	t       *testing.T
	ep      canbus.Bus
	samples chan Sample
	batches chan SensorBatch
}

// startHost drains ep into a Receiver until ctx is done.
func startHost(ctx context.Context, t *testing.T, ep canbus.Bus) *host {
	h := &host{t: t, ep: ep, samples: make(chan Sample, 64), batches: make(chan SensorBatch, 64)}
	r := NewReceiver(Handlers{
		Sample: func(_ int, s Sample) {
			select {
			case h.samples <- s:
			default:
			}
		},
		Batch: func(sensor int, b Batch, valid bool) {
			select {
			case h.batches <- SensorBatch{Sensor: sensor, Valid: valid, Batch: b}:
			default:
			}
		},
	})
	go func() {
		for {
			f, err := ep.Receive(ctx)
			if err != nil {
				return
			}
			r.HandleFrame(f)
		}
	}()
	return h
}

func (h *host) send(ctx context.Context) func(f canbus.Frame, err error) {
	return func(f canbus.Frame, err error) {
		h.t.Helper()
		require.NoError(h.t, err)
		require.NoError(h.t, h.ep.Send(ctx, f))
	}
}

func startNode(ctx context.Context, t *testing.T, id int, ep canbus.Bus) (*Node, *processing.Simulated, <-chan error) {
	t.Helper()
	sensor := processing.NewSimulated(gradient)
	n, err := NewNode(id, ep, sensor, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	return n, sensor, done
}

func fastConfig(mode ProcessingMode) Config {
	c := DefaultConfig()
	c.RangingFrequency = 60
	c.ThresholdDelay = 0
	c.Mode = mode
	return c
}

func TestNode_AnswersRequestWithSample(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	bus := canbus.NewLoopbackBus()
	defer bus.Close()
	h := startHost(ctx, t, bus.Open())
	_, _, done := startNode(ctx, t, 3, bus.Open())

	h.send(ctx)(EncodeConfig(3, fastConfig(processing.MatrixMode(processing.SelectMin))))
	h.send(ctx)(EncodeSampleRequest(3))

	select {
	case s := <-h.samples:
		assert.Equal(t, Sample{Distance: 100, BelowThreshold: true}, s)
	case <-ctx.Done():
		t.Fatal("no sample")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestNode_AnswersRequestWithBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	bus := canbus.NewLoopbackBus()
	defer bus.Close()
	h := startHost(ctx, t, bus.Open())
	n, _, _ := startNode(ctx, t, 7, bus.Open())

	h.send(ctx)(EncodeConfig(7, fastConfig(processing.ColumnMode(2, processing.SelectAll))))
	h.send(ctx)(EncodeSampleRequest(7))

	select {
	case b := <-h.batches:
		assert.True(t, b.Valid)
		assert.Equal(t, 7, b.Sensor)
		assert.Equal(t, []int16{300, 301, 302, 303, 304, 305, 306, 307}, b.Batch.Samples())
		assert.Equal(t, 3, b.Batch.PacketsExpected)
	case <-ctx.Done():
		t.Fatal("no batch")
	}
	require.Eventually(t, func() bool {
		_, batches := n.Sent()
		return batches == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNode_IgnoresOtherSensors(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	bus := canbus.NewLoopbackBus()
	defer bus.Close()
	h := startHost(ctx, t, bus.Open())
	n, _, _ := startNode(ctx, t, 2, bus.Open())

	other := fastConfig(processing.PointMode(1, 1))
	h.send(ctx)(EncodeConfig(9, other))
	h.send(ctx)(EncodeSampleRequest(9))

	require.Eventually(t, func() bool { return n.Stats().Requests == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, DefaultConfig(), n.Config())
	select {
	case s := <-h.samples:
		t.Fatalf("unexpected sample %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNode_BroadcastConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	bus := canbus.NewLoopbackBus()
	defer bus.Close()
	h := startHost(ctx, t, bus.Open())

	nodes := make([]*Node, 0, 3)
	for _, id := range []int{1, 15, 31} {
		n, _, _ := startNode(ctx, t, id, bus.Open())
		nodes = append(nodes, n)
	}

	cfg := fastConfig(processing.RowMode(3, processing.SelectMax))
	cfg.Resolution = 16
	h.send(ctx)(EncodeConfig(Broadcast, cfg))

	for _, n := range nodes {
		require.Eventually(t, func() bool { return n.Config() == cfg }, time.Second, 5*time.Millisecond, "node %d", n.ID())
	}
}

func TestNode_Continuous(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	bus := canbus.NewLoopbackBus()
	defer bus.Close()
	h := startHost(ctx, t, bus.Open())
	_, sensor, _ := startNode(ctx, t, 4, bus.Open())

	cfg := fastConfig(processing.PointMode(0, 2))
	cfg.Timing = Continuous
	h.send(ctx)(EncodeConfig(4, cfg))

	for i := 0; i < 3; i++ {
		select {
		case s := <-h.samples:
			assert.Equal(t, int16(102), s.Distance)
		case <-ctx.Done():
			t.Fatalf("got %d samples", i)
		}
	}
	assert.True(t, sensor.Ranging())
}

func TestNode_ConditionFiltersReadings(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	bus := canbus.NewLoopbackBus()
	defer bus.Close()
	h := startHost(ctx, t, bus.Open())
	n, _, _ := startNode(ctx, t, 6, bus.Open())

	// the scene never crosses the threshold after the first reading, so
	// only one below-threshold event is ever sent
	cfg := fastConfig(processing.MatrixMode(processing.SelectMin))
	cfg.Timing = Continuous
	cfg.Condition = BelowThreshold
	h.send(ctx)(EncodeConfig(6, cfg))

	select {
	case s := <-h.samples:
		assert.True(t, s.BelowThreshold)
	case <-ctx.Done():
		t.Fatal("no sample")
	}
	select {
	case s := <-h.samples:
		t.Fatalf("unexpected second sample %+v", s)
	case <-time.After(150 * time.Millisecond):
	}
	samples, _ := n.Sent()
	assert.Equal(t, uint64(1), samples)
}

func TestNewNode_RejectsIDs(t *testing.T) {
	bus := canbus.NewLoopbackBus()
	defer bus.Close()
	for _, id := range []int{Broadcast, -1, MaxSensors} {
		_, err := NewNode(id, bus.Open(), processing.NewSimulated(nil), nil)
		assert.ErrorIs(t, err, ErrInvalidSensor, "id %d", id)
	}
}
