package tofcan

import (
	"sync"

	"github.com/notnil/tofcan/canbus"
)

// DataPacketFilter matches standard data frames in the data-packet range.
func DataPacketFilter() canbus.FrameFilter {
	return canbus.All(canbus.ByBlock(DataPacketBaseID, MaxSensors), canbus.DataOnly())
}

// SubscribeBatches subscribes to data packets via mux and delivers
// reassembled batches, valid and interrupted, on the returned channel. The
// returned cancel must be called when done. The channel is closed on cancel
// or when the mux stops.
func SubscribeBatches(mux *canbus.Mux, buffer int) (<-chan SensorBatch, func()) {
	frames, cancel := mux.Subscribe(DataPacketFilter(), buffer)

	out := make(chan SensorBatch, buffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		asm := NewReassembler(func(sensor int, b Batch, valid bool) {
			select {
			case out <- SensorBatch{Sensor: sensor, Valid: valid, Batch: b}:
			case <-done:
			}
		})
		for f := range frames {
			var d DataPacketFrame
			if err := d.UnmarshalCANFrame(f); err != nil {
				continue
			}
			asm.Insert(d.Sensor, d.Packet)
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() { close(done) })
		cancel()
	}
}
