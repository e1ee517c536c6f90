package tofcan

import (
	"encoding/binary"
	"fmt"
)

const (
	// DataPacketSize is the payload length of a data packet.
	DataPacketSize = 8
	// SamplesPerPacket is the number of sample slots in a data packet.
	SamplesPerPacket = 3
	// MaxBatchIDs is the batch id space; ids wrap modulo this value.
	MaxBatchIDs = 32
)

// DataPacket is one fragment of a batch.
//
//	byte 0     sequence number
//	byte 1     bits 0-1 data length, bits 2-6 batch id, bit 7 last of batch
//	bytes 2-7  three little-endian int16 samples
type DataPacket struct {
	Seq     uint8
	Len     uint8 // used samples, 1..3
	BatchID uint8 // 0..31
	Last    bool
	Data    [SamplesPerPacket]int16
}

// Samples returns the used part of Data.
func (p DataPacket) Samples() []int16 {
	n := int(p.Len)
	if n > SamplesPerPacket {
		n = SamplesPerPacket
	}
	return p.Data[:n]
}

// MarshalBinary encodes the 8-byte packet payload.
func (p DataPacket) MarshalBinary() ([]byte, error) {
	if p.Len == 0 || p.Len > SamplesPerPacket {
		return nil, fmt.Errorf("%w: data length %d (want 1..%d)", ErrMalformed, p.Len, SamplesPerPacket)
	}
	if p.BatchID >= MaxBatchIDs {
		return nil, fmt.Errorf("%w: batch id %d does not fit 5 bits", ErrMalformed, p.BatchID)
	}
	b := make([]byte, DataPacketSize)
	b[0] = p.Seq
	b[1] = p.Len | p.BatchID<<2
	if p.Last {
		b[1] |= 0x80
	}
	for i, v := range p.Data {
		binary.LittleEndian.PutUint16(b[2+2*i:], uint16(v))
	}
	return b, nil
}

// UnmarshalBinary decodes an 8-byte packet payload.
func (p *DataPacket) UnmarshalBinary(data []byte) error {
	if len(data) != DataPacketSize {
		return fmt.Errorf("%w: data packet payload is %d bytes, want %d", ErrMalformed, len(data), DataPacketSize)
	}
	if data[1]&0x03 == 0 {
		return fmt.Errorf("%w: data packet carries no samples", ErrMalformed)
	}
	p.Seq = data[0]
	p.Len = data[1] & 0x03
	p.BatchID = data[1]>>2&0x1F
	p.Last = data[1]&0x80 != 0
	for i := range p.Data {
		p.Data[i] = int16(binary.LittleEndian.Uint16(data[2+2*i:]))
	}
	return nil
}

// DecodeDataPacket decodes a data packet payload.
func DecodeDataPacket(payload []byte) (DataPacket, error) {
	var p DataPacket
	err := p.UnmarshalBinary(payload)
	return p, err
}

// Packetize splits samples into the data packets of one batch. Unused slots
// of the final packet are zero. Batch ids wrap modulo 32.
func Packetize(batchID int, samples []int16) ([]DataPacket, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	if len(samples) > BatchCapacity {
		return nil, fmt.Errorf("%w: %d samples, max %d", ErrBatchTooLong, len(samples), BatchCapacity)
	}
	id := uint8(((batchID % MaxBatchIDs) + MaxBatchIDs) % MaxBatchIDs)
	packets := make([]DataPacket, 0, (len(samples)+SamplesPerPacket-1)/SamplesPerPacket)
	for seq := 0; seq*SamplesPerPacket < len(samples); seq++ {
		chunk := samples[seq*SamplesPerPacket:]
		if len(chunk) > SamplesPerPacket {
			chunk = chunk[:SamplesPerPacket]
		}
		p := DataPacket{Seq: uint8(seq), Len: uint8(len(chunk)), BatchID: id}
		copy(p.Data[:], chunk)
		packets = append(packets, p)
	}
	packets[len(packets)-1].Last = true
	return packets, nil
}
