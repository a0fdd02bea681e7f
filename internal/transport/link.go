package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.bug.st/serial"
)

var (
	ErrReadTimeout = errors.New("link: read timed out")
	ErrLinkClosed  = errors.New("link: closed")
)

// Link carries frames to and from a stimulator.
type Link interface {
	Name() string
	Write(f *Frame) error
	// Read returns the next complete frame or ErrReadTimeout.
	Read(timeout time.Duration) (*Frame, error)
	Close() error
}

// Opener opens a link on the named endpoint.
type Opener func(name string, baudRate int) (Link, error)

// SerialLink is a Link over a serial port.
type SerialLink struct {
	name   string
	port   serial.Port
	mu     sync.Mutex
	buf    []byte
	closed bool
}

// OpenSerial opens name as 8N1 at baudRate.
func OpenSerial(name string, baudRate int) (Link, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer on %s: %w", name, err)
	}

	return &SerialLink{name: name, port: port}, nil
}

func (l *SerialLink) Name() string {
	return l.name
}

func (l *SerialLink) Write(f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLinkClosed
	}

	if _, err := l.port.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

func (l *SerialLink) Read(timeout time.Duration) (*Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLinkClosed
	}

	if err := l.port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	chunk := make([]byte, 64)
	for {
		if frame, ok := l.nextBuffered(); ok {
			return frame, nil
		}

		n, err := l.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("read failed: %w", err)
		}
		if n == 0 {
			return nil, ErrReadTimeout
		}
		l.buf = append(l.buf, chunk[:n]...)
	}
}

// nextBuffered decodes the first frame in the receive buffer, skipping
// garbage and corrupt frames.
func (l *SerialLink) nextBuffered() (*Frame, bool) {
	for len(l.buf) > 0 {
		frame, n, err := DecodeFrame(l.buf)
		switch {
		case err == nil:
			l.buf = l.buf[n:]
			return frame, true
		case errors.Is(err, ErrShortFrame):
			return nil, false
		case errors.Is(err, ErrBadChecksum):
			l.buf = l.buf[n:]
		default:
			l.buf = l.buf[1:]
		}
	}
	return nil, false
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.buf = nil
	return l.port.Close()
}

// DetectPorts lists the serial ports present on this machine.
func DetectPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}
