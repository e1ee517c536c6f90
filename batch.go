package tofcan

// BatchCapacity is the maximum number of samples in a batch.
const BatchCapacity = 64

// Batch is a reassembled sequence of samples from one sensor.
type Batch struct {
	Data            [BatchCapacity]int16
	DataLength      int // samples received so far
	Extent          int // one past the highest sample offset written
	BatchID         int
	PacketsReceived int
	PacketsExpected int // 0 until the last-of-batch packet arrives
}

// Samples returns the received samples.
func (b *Batch) Samples() []int16 {
	n := b.DataLength
	if n > BatchCapacity {
		n = BatchCapacity
	}
	return b.Data[:n]
}

// Received returns Data up to the highest offset written. For an
// interrupted batch with gaps it covers every sample that arrived, with
// zeros where packets are missing.
func (b *Batch) Received() []int16 {
	n := max(b.Extent, b.DataLength)
	if n > BatchCapacity {
		n = BatchCapacity
	}
	return b.Data[:n]
}

// Complete reports whether every expected packet has been received.
func (b *Batch) Complete() bool {
	return b.PacketsExpected != 0 && b.PacketsReceived == b.PacketsExpected
}

// SensorBatch is a batch tagged with its source sensor and validity.
type SensorBatch struct {
	Sensor int
	Valid  bool
	Batch  Batch
}
