package tofcan

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/notnil/tofcan/processing"
)

// ConfigSize is the payload length of a config message.
const ConfigSize = 8

// ProcessingMode is the processing_mode byte; see processing.Mode for the
// bit layout and constructors.
type ProcessingMode = processing.Mode

// TransmitTiming selects when a sensor transmits.
type TransmitTiming uint8

const (
	OnDemand   TransmitTiming = 0 // one transmission per RTR request
	Continuous TransmitTiming = 1 // transmit after every ranging cycle
)

func (t TransmitTiming) String() string {
	switch t {
	case OnDemand:
		return "on-demand"
	case Continuous:
		return "continuous"
	default:
		return fmt.Sprintf("timing(%d)", uint8(t))
	}
}

// TransmitCondition filters which readings are transmitted.
type TransmitCondition uint8

const (
	Always         TransmitCondition = 0
	BelowThreshold TransmitCondition = 1 // status became below threshold
	AboveThreshold TransmitCondition = 2 // status became above threshold
	ThresholdEvent TransmitCondition = 3 // status changed either way
)

func (c TransmitCondition) String() string {
	switch c {
	case Always:
		return "always"
	case BelowThreshold:
		return "below-threshold event"
	case AboveThreshold:
		return "above-threshold event"
	case ThresholdEvent:
		return "threshold event"
	default:
		return fmt.Sprintf("condition(%d)", uint8(c))
	}
}

// Allows reports whether a reading with the given debounced status, which
// changed on this reading if event is true, should be transmitted.
func (c TransmitCondition) Allows(below, event bool) bool {
	switch c {
	case Always:
		return true
	case BelowThreshold:
		return event && below
	case AboveThreshold:
		return event && !below
	case ThresholdEvent:
		return event
	default:
		return false
	}
}

// Config is the host -> sensor configuration message.
type Config struct {
	Resolution       uint8 // 16 (4x4) or 64 (8x8)
	RangingFrequency uint8 // Hz, 1..60
	Sharpener        uint8 // percent, 0..99
	Mode             ProcessingMode
	Threshold        uint16 // mm, 0..4000
	ThresholdDelay   uint8  // readings before the threshold status flips
	Timing           TransmitTiming
	Condition        TransmitCondition
}

// DefaultConfig matches the sensor power-on settings.
func DefaultConfig() Config {
	return Config{
		Resolution:       64,
		RangingFrequency: 15,
		Sharpener:        5,
		Mode:             processing.MatrixMode(processing.SelectMin),
		Threshold:        1000,
		ThresholdDelay:   3,
		Timing:           OnDemand,
		Condition:        Always,
	}
}

// Validate checks every field against its documented range.
func (c Config) Validate() error {
	var errs []error
	if c.Resolution != 16 && c.Resolution != 64 {
		errs = append(errs, fmt.Errorf("resolution %d (want 16 or 64)", c.Resolution))
	}
	if c.RangingFrequency < 1 || c.RangingFrequency > 60 {
		errs = append(errs, fmt.Errorf("ranging frequency %d Hz (want 1..60)", c.RangingFrequency))
	}
	if c.Sharpener > 99 {
		errs = append(errs, fmt.Errorf("sharpener %d%% (want 0..99)", c.Sharpener))
	}
	if c.Threshold > 4000 {
		errs = append(errs, fmt.Errorf("threshold %d mm (want 0..4000)", c.Threshold))
	}
	if c.Timing > Continuous {
		errs = append(errs, fmt.Errorf("transmit timing %d", c.Timing))
	}
	if c.Condition > ThresholdEvent {
		errs = append(errs, fmt.Errorf("transmit condition %d", c.Condition))
	}
	if c.Resolution == 16 || c.Resolution == 64 {
		if _, _, _, _, err := processing.Bounds(c.Mode, processing.Width(int(c.Resolution))); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// MarshalBinary encodes the 8-byte config payload. It fails only when
// timing or condition do not fit their bit fields.
func (c Config) MarshalBinary() ([]byte, error) {
	if c.Timing > 1 {
		return nil, fmt.Errorf("%w: transmit timing %d does not fit 1 bit", ErrInvalidConfig, c.Timing)
	}
	if c.Condition > 3 {
		return nil, fmt.Errorf("%w: transmit condition %d does not fit 2 bits", ErrInvalidConfig, c.Condition)
	}
	b := make([]byte, ConfigSize)
	b[0] = c.Resolution
	b[1] = c.RangingFrequency
	b[2] = c.Sharpener
	b[3] = byte(c.Mode)
	binary.LittleEndian.PutUint16(b[4:6], c.Threshold)
	b[6] = c.ThresholdDelay
	b[7] = byte(c.Timing) | byte(c.Condition)<<1
	return b, nil
}

// UnmarshalBinary decodes an 8-byte config payload. Bits 3-7 of the last
// byte are ignored.
func (c *Config) UnmarshalBinary(data []byte) error {
	if len(data) != ConfigSize {
		return fmt.Errorf("%w: config payload is %d bytes, want %d", ErrMalformed, len(data), ConfigSize)
	}
	*c = Config{
		Resolution:       data[0],
		RangingFrequency: data[1],
		Sharpener:        data[2],
		Mode:             ProcessingMode(data[3]),
		Threshold:        binary.LittleEndian.Uint16(data[4:6]),
		ThresholdDelay:   data[6],
		Timing:           TransmitTiming(data[7] & 1),
		Condition:        TransmitCondition(data[7]>>1&3),
	}
	return nil
}

// DecodeConfig decodes a config payload.
func DecodeConfig(payload []byte) (Config, error) {
	var c Config
	err := c.UnmarshalBinary(payload)
	return c, err
}

// String describes the configuration for humans.
func (c Config) String() string {
	side := processing.Width(int(c.Resolution))
	return fmt.Sprintf(
		"resolution %dx%d, ranging %d Hz, sharpener %d%%, processing %s, threshold %d mm (delay %d), transmit %s when %s",
		side, side, c.RangingFrequency, c.Sharpener, c.Mode, c.Threshold, c.ThresholdDelay, c.Timing, c.Condition,
	)
}
