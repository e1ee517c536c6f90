package canbus

import (
	"context"
	"errors"
)

// Bus is a connection to a CAN segment. Drivers in this package are safe for
// concurrent Send and Receive from different goroutines.
type Bus interface {
	// Send queues one frame for transmission, honouring ctx while it waits
	// for room in the driver.
	Send(ctx context.Context, frame Frame) error

	// Receive blocks until the next frame arrives or ctx is done.
	Receive(ctx context.Context) (Frame, error)

	// Close releases the connection. Later calls return ErrClosed.
	Close() error
}

// Driver-independent errors.
var (
	ErrClosed            = errors.New("canbus: closed")
	ErrUnsupportedDriver = errors.New("canbus: unsupported driver")
)
