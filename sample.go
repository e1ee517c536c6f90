package tofcan

import (
	"encoding/binary"
	"fmt"
)

// SampleSize is the payload length of a single-sample message.
const SampleSize = 4

// InvalidDistance marks a sample without a valid target.
const InvalidDistance int16 = -1

// Sample is a single processed reading, sent in answer to a request.
type Sample struct {
	Distance       int16 // mm
	BelowThreshold bool
}

// MarshalBinary encodes the 4-byte sample payload.
func (s Sample) MarshalBinary() ([]byte, error) {
	b := make([]byte, SampleSize)
	binary.LittleEndian.PutUint16(b[0:2], uint16(s.Distance))
	if s.BelowThreshold {
		b[2] = 1
	}
	return b, nil
}

// UnmarshalBinary decodes a 4-byte sample payload. Any non-zero byte 2
// means below threshold.
func (s *Sample) UnmarshalBinary(data []byte) error {
	if len(data) != SampleSize {
		return fmt.Errorf("%w: sample payload is %d bytes, want %d", ErrMalformed, len(data), SampleSize)
	}
	s.Distance = int16(binary.LittleEndian.Uint16(data[0:2]))
	s.BelowThreshold = data[2] != 0
	return nil
}

// DecodeSample decodes a sample payload.
func DecodeSample(payload []byte) (Sample, error) {
	var s Sample
	err := s.UnmarshalBinary(payload)
	return s, err
}
