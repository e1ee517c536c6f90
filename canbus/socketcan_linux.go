//go:build linux

package canbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// socketCAN implements Bus over a Linux CAN_RAW socket.
type socketCAN struct {
	fd        int
	closeOnce sync.Once
	closed    chan struct{}
	writeMu   sync.Mutex
}

// pollInterval bounds how long a blocked Send/Receive goes without checking
// ctx and close state.
const pollInterval = 50 * time.Millisecond

// DialSocketCAN opens a raw CAN socket bound to iface (e.g. "can0"). When
// filters are given they are installed in the kernel so unrelated traffic
// never reaches user space.
func DialSocketCAN(iface string, filters ...KernelFilter) (Bus, error) {
	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("canbus: interface %q: %w", iface, err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %w", err)
	}
	if len(filters) > 0 {
		kf := make([]unix.CanFilter, len(filters))
		for i, f := range filters {
			kf[i] = unix.CanFilter{Id: f.ID, Mask: f.Mask}
		}
		if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, kf); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("canbus: set filter: %w", err)
		}
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: netIf.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("canbus: bind %q: %w", iface, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &socketCAN{fd: fd, closed: make(chan struct{})}, nil
}

func (s *socketCAN) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = unix.Close(s.fd)
	})
	return err
}

func (s *socketCAN) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Send writes one frame in the can_frame layout.
func (s *socketCAN) Send(ctx context.Context, frame Frame) error {
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for {
		if s.isClosed() {
			return ErrClosed
		}
		n, werr := unix.Write(s.fd, buf)
		switch {
		case werr == nil && n != len(buf):
			return errors.New("canbus: short write")
		case werr == nil:
			return nil
		case errors.Is(werr, unix.EAGAIN) || errors.Is(werr, unix.ENOBUFS):
			if err := s.wait(ctx, unix.POLLOUT); err != nil {
				return err
			}
		default:
			return werr
		}
	}
}

// Receive reads one frame. Kernel error frames are skipped.
func (s *socketCAN) Receive(ctx context.Context) (Frame, error) {
	buf := make([]byte, 16)
	for {
		if s.isClosed() {
			return Frame{}, ErrClosed
		}
		n, rerr := unix.Read(s.fd, buf)
		switch {
		case rerr == nil && n != len(buf):
			return Frame{}, errors.New("canbus: short read")
		case rerr == nil:
			if isErrorFrame(binary.LittleEndian.Uint32(buf[0:4])) {
				continue
			}
			var f Frame
			if err := f.UnmarshalBinary(buf); err != nil {
				return Frame{}, err
			}
			return f, nil
		case errors.Is(rerr, unix.EAGAIN):
			if err := s.wait(ctx, unix.POLLIN); err != nil {
				return Frame{}, err
			}
		default:
			if s.isClosed() {
				return Frame{}, ErrClosed
			}
			return Frame{}, rerr
		}
	}
}

// wait polls the socket for events, waking up every pollInterval to honour
// ctx and Close.
func (s *socketCAN) wait(ctx context.Context, events int16) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.isClosed() {
			return ErrClosed
		}
		timeout := pollInterval
		if deadline, ok := ctx.Deadline(); ok {
			if d := time.Until(deadline); d < timeout {
				timeout = d
			}
		}
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
		fds := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
}
