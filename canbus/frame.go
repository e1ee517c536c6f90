package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frame represents a classical CAN (2.0A/2.0B) frame.
//
// Supported features:
//   - Standard (11-bit) and Extended (29-bit) identifiers
//   - Data frames and Remote Transmission Request (RTR)
//   - Data length 0-8 bytes (classical CAN)
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool   // true for 29-bit identifier
	RTR      bool   // remote transmission request
	Len      uint8  // 0..8
	Data     [8]byte
}

// Identifier limits and the flag bits used by the Linux can_frame layout.
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF

	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000
)

var (
	ErrInvalidID  = errors.New("canbus: invalid identifier")
	ErrInvalidLen = errors.New("canbus: invalid data length")
)

// Validate returns an error if the frame is not valid.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	limit := uint32(MaxStdID)
	if f.Extended {
		limit = MaxExtID
	}
	if f.ID > limit {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the used part of Data.
func (f Frame) Payload() []byte {
	n := f.Len
	if n > 8 {
		n = 8
	}
	return f.Data[:n]
}

// NewFrame builds a data frame, choosing an extended identifier when id does
// not fit in 11 bits.
func NewFrame(id uint32, data []byte) (Frame, error) {
	if len(data) > 8 {
		return Frame{}, ErrInvalidLen
	}
	f := Frame{ID: id, Extended: id > MaxStdID, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return f, f.Validate()
}

// MustFrame is NewFrame that panics on error. Convenience for tests and examples.
func MustFrame(id uint32, data []byte) Frame {
	f, err := NewFrame(id, data)
	if err != nil {
		panic(err)
	}
	return f
}

// RemoteFrame builds a zero-length RTR frame for the given standard id.
func RemoteFrame(id uint32) Frame {
	return Frame{ID: id, Extended: id > MaxStdID, RTR: true}
}

// String formats the frame like candump: "123 [2] DE AD", "6E5 [0] RTR".
func (f Frame) String() string {
	var b strings.Builder
	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID)
	}
	fmt.Fprintf(&b, " [%d]", f.Len)
	if f.RTR {
		b.WriteString(" RTR")
		return b.String()
	}
	for _, v := range f.Payload() {
		fmt.Fprintf(&b, " %02X", v)
	}
	return b.String()
}

// RawID returns the identifier with the Linux EFF/RTR flag bits applied.
func (f Frame) RawID() uint32 {
	id := f.ID
	if f.Extended {
		id |= effFlag
	}
	if f.RTR {
		id |= rtrFlag
	}
	return id
}

// FromRawID splits a Linux can_id into identifier and flags.
func FromRawID(raw uint32) (id uint32, extended, rtr bool) {
	extended = raw&effFlag != 0
	rtr = raw&rtrFlag != 0
	if extended {
		return raw & MaxExtID, extended, rtr
	}
	return raw & MaxStdID, extended, rtr
}

// MarshalBinary encodes the frame to the Linux SocketCAN "struct can_frame"
// layout (16 bytes, little-endian):
//
//	0..3  can_id (with EFF/RTR flags)
//	4     can_dlc
//	5..7  padding
//	8..15 data
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], f.RawID())
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes a frame from the Linux SocketCAN can_frame layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("canbus: need 16 bytes, got %d", len(data))
	}
	f.ID, f.Extended, f.RTR = FromRawID(binary.LittleEndian.Uint32(data[0:4]))
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}

// isErrorFrame reports whether a raw can_id carries the kernel error flag.
func isErrorFrame(raw uint32) bool { return raw&errFlag != 0 }
