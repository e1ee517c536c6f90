//go:build !linux

package canbus

import (
	"context"
	"fmt"
)

func openNative(_ context.Context, opts Options) (Bus, error) {
	return nil, fmt.Errorf("%w: %s requires linux", ErrUnsupportedDriver, opts.Driver)
}
