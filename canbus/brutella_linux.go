//go:build linux

package canbus

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/brutella/can"
)

// brutellaBus adapts github.com/brutella/can, whose Bus pushes frames to
// subscribed handlers from ConnectAndPublish, to the pull-style Bus.
type brutellaBus struct {
	bus       *can.Bus
	frames    chan Frame
	closed    chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// DialBrutella opens iface through brutella/can.
func DialBrutella(iface string) (Bus, error) {
	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("canbus: interface %q: %w", iface, err)
	}
	conn, err := can.NewReadWriteCloserForInterface(netIf)
	if err != nil {
		return nil, fmt.Errorf("canbus: open %q: %w", iface, err)
	}
	b := &brutellaBus{
		bus:    can.NewBus(conn),
		frames: make(chan Frame, loopbackQueue),
		closed: make(chan struct{}),
	}
	b.bus.SubscribeFunc(b.handle)
	go func() {
		err := b.bus.ConnectAndPublish()
		b.errMu.Lock()
		b.err = err
		b.errMu.Unlock()
		b.shutdown()
	}()
	return b, nil
}

func (b *brutellaBus) handle(cf can.Frame) {
	id, ext, rtr := FromRawID(cf.ID)
	if isErrorFrame(cf.ID) || cf.Length > 8 {
		return
	}
	f := Frame{ID: id, Extended: ext, RTR: rtr, Len: cf.Length}
	copy(f.Data[:], cf.Data[:cf.Length])
	select {
	case b.frames <- f:
	case <-b.closed:
	}
}

func (b *brutellaBus) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	cf := can.Frame{ID: frame.RawID(), Length: frame.Len}
	copy(cf.Data[:], frame.Data[:])
	return b.bus.Publish(cf)
}

func (b *brutellaBus) Receive(ctx context.Context) (Frame, error) {
	select {
	case f := <-b.frames:
		return f, nil
	case <-b.closed:
		b.errMu.Lock()
		defer b.errMu.Unlock()
		if b.err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrClosed, b.err)
		}
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (b *brutellaBus) shutdown() {
	b.closeOnce.Do(func() { close(b.closed) })
}

func (b *brutellaBus) Close() error {
	b.shutdown()
	return b.bus.Disconnect()
}
