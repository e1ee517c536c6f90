package tofcan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notnil/tofcan/canbus"
	"github.com/notnil/tofcan/processing"
)

// notRangingBackoff is how long the node waits before reading again from a
// sensor that is paused for configuration.
const notRangingBackoff = 10 * time.Millisecond

// Node is the sensor side of the protocol. It applies config messages
// addressed to it (or broadcast) to its Sensor and answers sample requests
// with a sample or a packetized batch, depending on the processing mode.
type Node struct {
	id     int
	bus    canbus.Bus
	sensor processing.Sensor
	log    *slog.Logger
	recv   *Receiver

	requests chan struct{}

	mu        sync.Mutex
	cfg       Config
	threshold *processing.Threshold
	batchID   int

	samplesSent, batchesSent atomic.Uint64
}

// NewNode returns a node with sensor id (1..31) using bus and sensor. The
// node starts with DefaultConfig; the sensor is configured when Run starts.
func NewNode(id int, bus canbus.Bus, sensor processing.Sensor, logger *slog.Logger) (*Node, error) {
	if id == Broadcast {
		return nil, fmt.Errorf("%w: node id cannot be the broadcast id", ErrInvalidSensor)
	}
	if err := ValidateSensor(id); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultConfig()
	n := &Node{
		id:        id,
		bus:       bus,
		sensor:    sensor,
		log:       logger.With("sensor", id),
		requests:  make(chan struct{}, 1),
		cfg:       cfg,
		threshold: processing.NewThreshold(int(cfg.Threshold), int(cfg.ThresholdDelay)),
	}
	n.recv = NewReceiver(Handlers{
		Config: func(sensor int, c Config) {
			if !Addressed(sensor, n.id) {
				return
			}
			if err := n.Configure(c); err != nil {
				n.log.Warn("tofcan node rejected config", "config", c.String(), "err", err)
			}
		},
		Request: func(sensor int) {
			if Addressed(sensor, n.id) {
				n.request()
			}
		},
	})
	return n, nil
}

// ID returns the node's sensor id.
func (n *Node) ID() int { return n.id }

// Config returns the active configuration.
func (n *Node) Config() Config {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg
}

// Sent returns the number of samples and batches transmitted.
func (n *Node) Sent() (samples, batches uint64) {
	return n.samplesSent.Load(), n.batchesSent.Load()
}

// Stats returns the counters of the node's receiver.
func (n *Node) Stats() Stats { return n.recv.Stats() }

func (n *Node) request() {
	select {
	case n.requests <- struct{}{}:
	default:
	}
}

// Configure applies c. Ranging is paused while the sensor is reconfigured.
func (n *Node) Configure(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := n.sensor.StopRanging(); err != nil {
		return fmt.Errorf("tofcan: stop ranging: %w", err)
	}
	var errs []error
	if err := n.sensor.SetResolution(int(c.Resolution)); err != nil {
		errs = append(errs, err)
	}
	if err := n.sensor.SetFrequency(int(c.RangingFrequency)); err != nil {
		errs = append(errs, err)
	}
	if err := n.sensor.SetSharpener(int(c.Sharpener)); err != nil {
		errs = append(errs, err)
	}

	n.mu.Lock()
	n.cfg = c
	n.threshold.Reconfigure(int(c.Threshold), int(c.ThresholdDelay))
	n.mu.Unlock()

	if err := n.sensor.StartRanging(); err != nil {
		errs = append(errs, fmt.Errorf("tofcan: start ranging: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	n.log.Info("tofcan node configured", "config", c.String())
	if c.Timing == Continuous {
		n.request()
	}
	return nil
}

// Run configures the sensor with the active config and serves the bus until
// ctx is cancelled or the bus fails.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Configure(n.Config()); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.receive(ctx) })
	g.Go(func() error { return n.transmit(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *Node) receive(ctx context.Context) error {
	for {
		f, err := n.bus.Receive(ctx)
		if err != nil {
			return fmt.Errorf("tofcan: node receive: %w", err)
		}
		n.recv.HandleFrame(f)
	}
}

func (n *Node) transmit(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.requests:
		}
		for {
			if err := n.serve(ctx); err != nil {
				return err
			}
			if n.Config().Timing != Continuous {
				break
			}
		}
	}
}

// serve reads the sensor until a reading satisfies the transmit condition,
// then sends it.
func (n *Node) serve(ctx context.Context) error {
	for {
		values, below, ok, err := n.measure(ctx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		return n.send(ctx, values, below)
	}
}

// measure takes one reading. ok is false when the reading is unusable or
// filtered out by the transmit condition.
func (n *Node) measure(ctx context.Context) (values []int16, below, ok bool, err error) {
	matrix, status, err := n.sensor.ReadDistanceMatrix(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, false, ctx.Err()
		}
		if errors.Is(err, processing.ErrNotRanging) {
			return nil, false, false, pause(ctx, notRangingBackoff)
		}
		return nil, false, false, fmt.Errorf("tofcan: read sensor: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	values, err = processing.Reduce(matrix, status, processing.Width(int(n.cfg.Resolution)), n.cfg.Mode)
	if err != nil {
		n.log.Debug("tofcan node sampling failed, retrying", "err", err)
		return nil, false, false, nil
	}
	if n.cfg.Mode.Selector() == processing.SelectAll {
		return values, n.threshold.Below(), true, nil
	}
	below, event := n.threshold.Update(int(values[0]))
	return values, below, n.cfg.Condition.Allows(below, event), nil
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (n *Node) send(ctx context.Context, values []int16, below bool) error {
	if len(values) == 1 {
		f, err := EncodeSample(n.id, Sample{Distance: values[0], BelowThreshold: below})
		if err != nil {
			return err
		}
		if err := n.bus.Send(ctx, f); err != nil {
			return fmt.Errorf("tofcan: send sample: %w", err)
		}
		n.samplesSent.Add(1)
		return nil
	}

	n.mu.Lock()
	id := n.batchID
	n.batchID = (n.batchID + 1) % MaxBatchIDs
	n.mu.Unlock()

	packets, err := Packetize(id, values)
	if err != nil {
		return err
	}
	for _, p := range packets {
		f, err := EncodeDataPacket(n.id, p)
		if err != nil {
			return err
		}
		if err := n.bus.Send(ctx, f); err != nil {
			return fmt.Errorf("tofcan: send batch %d: %w", id, err)
		}
	}
	n.batchesSent.Add(1)
	return nil
}
