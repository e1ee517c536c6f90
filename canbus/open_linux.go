//go:build linux

package canbus

import "context"

func openNative(ctx context.Context, opts Options) (Bus, error) {
	switch opts.Driver {
	case DriverBrutella:
		return DialBrutella(opts.Interface)
	case DriverEinride:
		return DialEinride(ctx, opts.Interface)
	default:
		return DialSocketCAN(opts.Interface, opts.Filters...)
	}
}
