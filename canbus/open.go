package canbus

import (
	"context"
	"fmt"
)

// Driver names accepted by Open.
const (
	DriverSocketCAN = "socketcan" // CAN_RAW socket via golang.org/x/sys
	DriverBrutella  = "brutella"  // github.com/brutella/can
	DriverEinride   = "einride"   // go.einride.tech/can
	DriverSLCAN     = "slcan"     // serial-line adapter via go.bug.st/serial
	DriverLoopback  = "loopback"  // in-memory, requires Options.Loopback
)

// KernelFilter is a CAN_RAW_FILTER entry for the x/sys SocketCAN driver:
// a frame passes when (can_id & Mask) == (ID & Mask).
type KernelFilter struct {
	ID   uint32
	Mask uint32
}

// Options selects and configures a driver.
type Options struct {
	Driver    string
	Interface string // network interface for the SocketCAN drivers
	Device    string // serial device for slcan
	BaudRate  int    // serial speed for slcan
	Bitrate   int    // CAN bit rate for slcan
	Filters   []KernelFilter
	Loopback  *LoopbackBus
}

// Open connects to a bus using the driver named in opts.
func Open(ctx context.Context, opts Options) (Bus, error) {
	switch opts.Driver {
	case DriverSLCAN:
		return DialSLCAN(opts.Device, SerialOptions{BaudRate: opts.BaudRate, Bitrate: opts.Bitrate})
	case DriverLoopback:
		if opts.Loopback == nil {
			return nil, fmt.Errorf("%w: loopback driver needs a LoopbackBus", ErrUnsupportedDriver)
		}
		return opts.Loopback.Open(), nil
	case DriverSocketCAN, DriverBrutella, DriverEinride:
		return openNative(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}
}
