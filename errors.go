package tofcan

import "errors"

var (
	// ErrMalformed reports a payload whose length does not match its message type.
	ErrMalformed = errors.New("tofcan: malformed message")
	// ErrInvalidSensor reports a sensor id outside 0..31.
	ErrInvalidSensor = errors.New("tofcan: invalid sensor id")
	// ErrInvalidConfig reports a configuration field that cannot be encoded
	// or is outside its documented range.
	ErrInvalidConfig = errors.New("tofcan: invalid config")
	// ErrBatchTooLong reports more samples than a batch can hold.
	ErrBatchTooLong = errors.New("tofcan: batch too long")
)
