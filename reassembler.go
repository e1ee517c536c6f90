package tofcan

import "sync/atomic"

// BatchFunc receives reassembled batches. valid is false for a batch that
// was interrupted by a newer batch id before all packets arrived. The batch
// is passed by value.
type BatchFunc func(sensor int, b Batch, valid bool)

type slotState uint8

const (
	slotIdle slotState = iota
	slotAccumulating
	slotAwaitingRemainder // last-of-batch seen, packets missing
	slotComplete
)

type slot struct {
	batch Batch
	state slotState
	seen  uint32 // sequence numbers received for the current batch
	lens  [maxPackets]uint8
}

// maxPackets is the number of packets a full batch spans.
const maxPackets = (BatchCapacity + SamplesPerPacket - 1) / SamplesPerPacket

// ReassemblyStats counts reassembler outcomes.
type ReassemblyStats struct {
	Packets    uint64 // packets accepted into a batch
	Valid      uint64 // complete batches emitted
	Invalid    uint64 // interrupted batches emitted
	Overflow   uint64 // packets dropped because they would overflow the batch
	Duplicates uint64 // repeated sequence numbers, or packets for a completed batch
	Stale      uint64 // sequence numbers beyond the announced end
}

// Reassembler rebuilds batches from data packets, one slot per sensor id.
// Packets may arrive in any order; a packet with a new batch id interrupts
// the current one. Insert must be called from a single goroutine; Stats may
// be called concurrently.
type Reassembler struct {
	slots [MaxSensors]slot
	emit  BatchFunc

	packets, valid, invalid, overflow, duplicates, stale atomic.Uint64
}

// NewReassembler returns a reassembler delivering batches to emit. A nil
// emit discards them.
func NewReassembler(emit BatchFunc) *Reassembler {
	if emit == nil {
		emit = func(int, Batch, bool) {}
	}
	return &Reassembler{emit: emit}
}

// Insert adds a packet from sensor. Out-of-range sensor ids are ignored.
func (r *Reassembler) Insert(sensor int, p DataPacket) {
	if sensor < 0 || sensor >= MaxSensors {
		return
	}
	s := &r.slots[sensor]

	if s.state == slotIdle || s.batch.BatchID != int(p.BatchID) {
		interrupted := s.state == slotAccumulating || s.state == slotAwaitingRemainder
		if interrupted && s.batch.PacketsReceived != s.batch.PacketsExpected {
			r.invalid.Add(1)
			r.emit(sensor, s.batch, false)
		}
		s.batch = Batch{BatchID: int(p.BatchID)}
		s.state = slotAccumulating
		s.seen = 0
		s.lens = [maxPackets]uint8{}
	}

	if s.state == slotComplete {
		r.duplicates.Add(1)
		return
	}

	offset := int(p.Seq) * SamplesPerPacket
	if offset+int(p.Len) > BatchCapacity {
		r.overflow.Add(1)
		return
	}
	if s.batch.PacketsExpected != 0 && int(p.Seq) >= s.batch.PacketsExpected {
		r.stale.Add(1)
		return
	}
	bit := uint32(1) << p.Seq
	if s.seen&bit != 0 {
		r.duplicates.Add(1)
		return
	}
	s.seen |= bit
	s.lens[p.Seq] = p.Len

	r.packets.Add(1)
	s.batch.PacketsReceived++
	s.batch.DataLength += int(p.Len)
	copy(s.batch.Data[offset:], p.Samples())
	if end := offset + int(p.Len); end > s.batch.Extent {
		s.batch.Extent = end
	}
	if p.Last {
		s.batch.PacketsExpected = int(p.Seq) + 1
		s.state = slotAwaitingRemainder
		r.dropBeyond(s, int(p.Seq)+1)
	}

	if s.batch.Complete() {
		s.state = slotComplete
		r.valid.Add(1)
		r.emit(sensor, s.batch, true)
	}
}

// dropBeyond removes packets with a sequence number at or past end that
// were accepted before the last-of-batch packet announced the end.
func (r *Reassembler) dropBeyond(s *slot, end int) {
	for seq := end; seq < maxPackets; seq++ {
		bit := uint32(1) << seq
		if s.seen&bit == 0 {
			continue
		}
		s.seen &^= bit
		n := int(s.lens[seq])
		offset := seq * SamplesPerPacket
		clear(s.batch.Data[offset : offset+n])
		s.lens[seq] = 0
		s.batch.PacketsReceived--
		s.batch.DataLength -= n
		r.packets.Add(^uint64(0))
		r.stale.Add(1)
	}
	s.batch.Extent = 0
	for seq := range end {
		if s.seen&(1<<seq) != 0 {
			s.batch.Extent = max(s.batch.Extent, seq*SamplesPerPacket+int(s.lens[seq]))
		}
	}
}

// Pending returns the in-progress batch of sensor, if any.
func (r *Reassembler) Pending(sensor int) (Batch, bool) {
	if sensor < 0 || sensor >= MaxSensors {
		return Batch{}, false
	}
	s := &r.slots[sensor]
	if s.state != slotAccumulating && s.state != slotAwaitingRemainder {
		return Batch{}, false
	}
	return s.batch, true
}

// Stats returns a snapshot of the counters.
func (r *Reassembler) Stats() ReassemblyStats {
	return ReassemblyStats{
		Packets:    r.packets.Load(),
		Valid:      r.valid.Load(),
		Invalid:    r.invalid.Load(),
		Overflow:   r.overflow.Load(),
		Duplicates: r.duplicates.Load(),
		Stale:      r.stale.Load(),
	}
}
