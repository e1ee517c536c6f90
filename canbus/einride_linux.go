//go:build linux

package canbus

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// einrideBus adapts go.einride.tech/can/pkg/socketcan. Its Receiver is a
// blocking iterator, so a pump goroutine feeds a channel that Receive can
// select on together with ctx.
type einrideBus struct {
	conn      net.Conn
	tx        *socketcan.Transmitter
	frames    chan Frame
	closed    chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// DialEinride opens iface through go.einride.tech/can.
func DialEinride(ctx context.Context, iface string) (Bus, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("canbus: dial %q: %w", iface, err)
	}
	b := &einrideBus{
		conn:   conn,
		tx:     socketcan.NewTransmitter(conn),
		frames: make(chan Frame, loopbackQueue),
		closed: make(chan struct{}),
	}
	go b.pump(socketcan.NewReceiver(conn))
	return b, nil
}

func (b *einrideBus) pump(rx *socketcan.Receiver) {
	defer b.shutdown()
	for rx.Receive() {
		if rx.HasErrorFrame() {
			continue
		}
		cf := rx.Frame()
		f := Frame{ID: cf.ID, Extended: cf.IsExtended, RTR: cf.IsRemote, Len: cf.Length}
		copy(f.Data[:], cf.Data[:])
		select {
		case b.frames <- f:
		case <-b.closed:
			return
		}
	}
	b.errMu.Lock()
	b.err = rx.Err()
	b.errMu.Unlock()
}

func (b *einrideBus) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	cf := can.Frame{
		ID:         frame.ID,
		Length:     frame.Len,
		IsRemote:   frame.RTR,
		IsExtended: frame.Extended,
	}
	copy(cf.Data[:], frame.Data[:])
	return b.tx.TransmitFrame(ctx, cf)
}

func (b *einrideBus) Receive(ctx context.Context) (Frame, error) {
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

func (b *einrideBus) shutdown() {
	b.closeOnce.Do(func() { close(b.closed) })
}

func (b *einrideBus) Close() error {
	b.shutdown()
	return b.conn.Close()
}
