package tofcan

import (
	"encoding"
	"fmt"

	"github.com/notnil/tofcan/canbus"
)

// FrameMarshaler encodes a typed ToF message into a CAN frame.
type FrameMarshaler interface {
	MarshalCANFrame() (canbus.Frame, error)
}

// FrameUnmarshaler decodes a typed ToF message from a CAN frame.
type FrameUnmarshaler interface {
	UnmarshalCANFrame(canbus.Frame) error
}

// FrameCodec combines marshaling and unmarshaling of CAN frames.
type FrameCodec interface {
	FrameMarshaler
	FrameUnmarshaler
}

func buildFrame(t MessageType, sensor int, payload encoding.BinaryMarshaler) (canbus.Frame, error) {
	id, err := MessageID(t, sensor)
	if err != nil {
		return canbus.Frame{}, err
	}
	data, err := payload.MarshalBinary()
	if err != nil {
		return canbus.Frame{}, err
	}
	return canbus.NewFrame(id, data)
}

// parseFrame checks that f is a standard data frame of type t and returns
// its sensor id.
func parseFrame(t MessageType, f canbus.Frame) (int, error) {
	typ, sensor := Classify(f.ID)
	if f.Extended || f.RTR || typ != t {
		return 0, fmt.Errorf("%w: %s is not a %s frame", ErrMalformed, f, t)
	}
	return sensor, nil
}

// EncodeConfig builds the config frame for sensor (0 addresses every
// sensor).
func EncodeConfig(sensor int, c Config) (canbus.Frame, error) {
	return buildFrame(TypeConfig, sensor, c)
}

// EncodeSampleRequest builds the zero-length RTR frame that asks sensor for
// a sample or batch.
func EncodeSampleRequest(sensor int) (canbus.Frame, error) {
	id, err := MessageID(TypeSample, sensor)
	if err != nil {
		return canbus.Frame{}, err
	}
	return canbus.RemoteFrame(id), nil
}

// EncodeSample builds a single-sample frame from sensor.
func EncodeSample(sensor int, s Sample) (canbus.Frame, error) {
	return buildFrame(TypeSample, sensor, s)
}

// EncodeDataPacket builds a data-packet frame from sensor.
func EncodeDataPacket(sensor int, p DataPacket) (canbus.Frame, error) {
	return buildFrame(TypeDataPacket, sensor, p)
}

// ConfigFrame is a config message together with its target sensor.
type ConfigFrame struct {
	Sensor int
	Config Config
}

func (c ConfigFrame) MarshalCANFrame() (canbus.Frame, error) {
	return EncodeConfig(c.Sensor, c.Config)
}

func (c *ConfigFrame) UnmarshalCANFrame(f canbus.Frame) error {
	sensor, err := parseFrame(TypeConfig, f)
	if err != nil {
		return err
	}
	cfg, err := DecodeConfig(f.Payload())
	if err != nil {
		return err
	}
	c.Sensor, c.Config = sensor, cfg
	return nil
}

// RequestFrame is a sample request addressed to a sensor.
type RequestFrame struct {
	Sensor int
}

func (r RequestFrame) MarshalCANFrame() (canbus.Frame, error) {
	return EncodeSampleRequest(r.Sensor)
}

func (r *RequestFrame) UnmarshalCANFrame(f canbus.Frame) error {
	typ, sensor := Classify(f.ID)
	if f.Extended || !f.RTR || typ != TypeSample {
		return fmt.Errorf("%w: %s is not a sample request", ErrMalformed, f)
	}
	r.Sensor = sensor
	return nil
}

// SampleFrame is a sample together with its source sensor.
type SampleFrame struct {
	Sensor int
	Sample Sample
}

func (s SampleFrame) MarshalCANFrame() (canbus.Frame, error) {
	return EncodeSample(s.Sensor, s.Sample)
}

func (s *SampleFrame) UnmarshalCANFrame(f canbus.Frame) error {
	sensor, err := parseFrame(TypeSample, f)
	if err != nil {
		return err
	}
	smp, err := DecodeSample(f.Payload())
	if err != nil {
		return err
	}
	s.Sensor, s.Sample = sensor, smp
	return nil
}

// DataPacketFrame is a data packet together with its source sensor.
type DataPacketFrame struct {
	Sensor int
	Packet DataPacket
}

func (d DataPacketFrame) MarshalCANFrame() (canbus.Frame, error) {
	return EncodeDataPacket(d.Sensor, d.Packet)
}

func (d *DataPacketFrame) UnmarshalCANFrame(f canbus.Frame) error {
	sensor, err := parseFrame(TypeDataPacket, f)
	if err != nil {
		return err
	}
	p, err := DecodeDataPacket(f.Payload())
	if err != nil {
		return err
	}
	d.Sensor, d.Packet = sensor, p
	return nil
}

var (
	_ FrameCodec = (*ConfigFrame)(nil)
	_ FrameCodec = (*RequestFrame)(nil)
	_ FrameCodec = (*SampleFrame)(nil)
	_ FrameCodec = (*DataPacketFrame)(nil)
)
