package canbus

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// SLCAN (Lawicel) serial-line CAN. Frames travel as ASCII lines:
//
//	t<iii><l><dd..>\r   standard data frame
//	T<iiiiiiii><l><dd..>\r extended data frame
//	r<iii><l>\r          standard remote frame
//	R<iiiiiiii><l>\r     extended remote frame
//
// Command acknowledgements ("\r", "z\r", "Z\r") and the error bell are
// ignored by the reader.

var ErrSLCANSyntax = errors.New("canbus: malformed slcan line")

// slcanBitrates maps bit rates to the "S<n>" setup command.
var slcanBitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// EncodeSLCAN renders a frame as an SLCAN line including the trailing '\r'.
func EncodeSLCAN(f Frame) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	switch {
	case f.RTR && f.Extended:
		b.WriteByte('R')
	case f.RTR:
		b.WriteByte('r')
	case f.Extended:
		b.WriteByte('T')
	default:
		b.WriteByte('t')
	}
	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID)
	}
	b.WriteByte('0' + f.Len)
	if !f.RTR {
		for _, v := range f.Payload() {
			fmt.Fprintf(&b, "%02X", v)
		}
	}
	b.WriteByte('\r')
	return b.String(), nil
}

// DecodeSLCAN parses one SLCAN frame line, with or without the trailing '\r'.
func DecodeSLCAN(line string) (Frame, error) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return Frame{}, ErrSLCANSyntax
	}
	var f Frame
	idLen := 3
	switch line[0] {
	case 't':
	case 'r':
		f.RTR = true
	case 'T':
		f.Extended, idLen = true, 8
	case 'R':
		f.Extended, f.RTR, idLen = true, true, 8
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrSLCANSyntax, line)
	}
	if len(line) < 1+idLen+1 {
		return Frame{}, fmt.Errorf("%w: %q", ErrSLCANSyntax, line)
	}
	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %q", ErrSLCANSyntax, line)
	}
	f.ID = uint32(id)
	dlc := line[1+idLen]
	if dlc < '0' || dlc > '8' {
		return Frame{}, fmt.Errorf("%w: %q", ErrSLCANSyntax, line)
	}
	f.Len = dlc - '0'
	data := line[2+idLen:]
	if !f.RTR {
		if len(data) != int(f.Len)*2 {
			return Frame{}, fmt.Errorf("%w: %q", ErrSLCANSyntax, line)
		}
		for i := 0; i < int(f.Len); i++ {
			v, err := strconv.ParseUint(data[2*i:2*i+2], 16, 8)
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %q", ErrSLCANSyntax, line)
			}
			f.Data[i] = byte(v)
		}
	}
	return f, f.Validate()
}

// SerialOptions configures the serial port under an SLCAN adapter.
type SerialOptions struct {
	BaudRate int // serial line speed; 115200 when zero
	Bitrate  int // CAN bit rate; 500000 when zero
}

// DialSLCAN opens an SLCAN adapter on a serial device (e.g. /dev/ttyACM0).
func DialSLCAN(path string, opts SerialOptions) (Bus, error) {
	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("canbus: open %s: %w", path, err)
	}
	b, err := NewSLCAN(port, opts.Bitrate)
	if err != nil {
		port.Close()
		return nil, err
	}
	return b, nil
}

type slcanBus struct {
	port      io.ReadWriteCloser
	writeMu   sync.Mutex
	frames    chan Frame
	closed    chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// NewSLCAN runs the SLCAN protocol over an already open byte stream: it
// sets the bit rate, opens the channel and starts reading frames.
func NewSLCAN(port io.ReadWriteCloser, bitrate int) (Bus, error) {
	if bitrate <= 0 {
		bitrate = 500000
	}
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("canbus: unsupported slcan bitrate %d", bitrate)
	}
	for _, cmd := range []string{"C\r", "S" + string(code) + "\r", "O\r"} {
		if _, err := io.WriteString(port, cmd); err != nil {
			return nil, fmt.Errorf("canbus: slcan setup %q: %w", strings.TrimSpace(cmd), err)
		}
	}
	b := &slcanBus{
		port:   port,
		frames: make(chan Frame, loopbackQueue),
		closed: make(chan struct{}),
	}
	go b.read()
	return b, nil
}

// splitSLCAN tokenises on '\r' and the error bell.
func splitSLCAN(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexAny(data, "\r\a"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (b *slcanBus) read() {
	defer b.shutdown()
	sc := bufio.NewScanner(b.port)
	sc.Split(splitSLCAN)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line == "z" || line == "Z" {
			continue
		}
		f, err := DecodeSLCAN(line)
		if err != nil {
			continue
		}
		select {
		case b.frames <- f:
		case <-b.closed:
			return
		}
	}
	b.errMu.Lock()
	b.err = sc.Err()
	b.errMu.Unlock()
}

func (b *slcanBus) Send(ctx context.Context, frame Frame) error {
	line, err := EncodeSLCAN(frame)
	if err != nil {
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
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_, err = io.WriteString(b.port, line)
	return err
}

func (b *slcanBus) Receive(ctx context.Context) (Frame, error) {
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

func (b *slcanBus) shutdown() {
	b.closeOnce.Do(func() { close(b.closed) })
}

func (b *slcanBus) Close() error {
	b.shutdown()
	b.writeMu.Lock()
	_, _ = io.WriteString(b.port, "C\r")
	b.writeMu.Unlock()
	return b.port.Close()
}
