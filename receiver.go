package tofcan

import (
	"sync/atomic"

	"github.com/notnil/tofcan/canbus"
)

// Handlers are the subscribers of a Receiver. A nil handler discards its
// messages.
type Handlers struct {
	Config  func(sensor int, c Config)
	Request func(sensor int)
	Sample  func(sensor int, s Sample)
	Batch   BatchFunc
}

// Stats counts what a Receiver has seen.
type Stats struct {
	Frames    uint64
	Configs   uint64
	Requests  uint64
	Samples   uint64
	Ignored   uint64 // extended ids, foreign ids, RTR in the data-packet range
	Malformed uint64
	ReassemblyStats
}

// Receiver routes CAN frames to Handlers by identifier range and
// reassembles data packets into batches. HandleFrame must be called from a
// single goroutine.
type Receiver struct {
	h   Handlers
	asm *Reassembler

	frames, configs, requests, samples, ignored, malformed atomic.Uint64
}

// NewReceiver returns a receiver that dispatches to h.
func NewReceiver(h Handlers) *Receiver {
	return &Receiver{h: h, asm: NewReassembler(h.Batch)}
}

// HandleFrame dispatches one frame. Frames that are not ToF messages are
// ignored; malformed payloads are dropped.
func (r *Receiver) HandleFrame(f canbus.Frame) {
	r.frames.Add(1)
	if f.Extended {
		r.ignored.Add(1)
		return
	}

	typ, sensor := Classify(f.ID)
	switch typ {
	case TypeConfig:
		if f.RTR {
			r.ignored.Add(1)
			return
		}
		c, err := DecodeConfig(f.Payload())
		if err != nil {
			r.malformed.Add(1)
			return
		}
		r.configs.Add(1)
		if r.h.Config != nil {
			r.h.Config(sensor, c)
		}

	case TypeSample:
		if f.RTR {
			r.requests.Add(1)
			if r.h.Request != nil {
				r.h.Request(sensor)
			}
			return
		}
		s, err := DecodeSample(f.Payload())
		if err != nil {
			r.malformed.Add(1)
			return
		}
		r.samples.Add(1)
		if r.h.Sample != nil {
			r.h.Sample(sensor, s)
		}

	case TypeDataPacket:
		if f.RTR {
			r.ignored.Add(1)
			return
		}
		p, err := DecodeDataPacket(f.Payload())
		if err != nil {
			r.malformed.Add(1)
			return
		}
		r.asm.Insert(sensor, p)

	default:
		r.ignored.Add(1)
	}
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (r *Receiver) Stats() Stats {
	return Stats{
		Frames:          r.frames.Load(),
		Configs:         r.configs.Load(),
		Requests:        r.requests.Load(),
		Samples:         r.samples.Load(),
		Ignored:         r.ignored.Load(),
		Malformed:       r.malformed.Load(),
		ReassemblyStats: r.asm.Stats(),
	}
}
