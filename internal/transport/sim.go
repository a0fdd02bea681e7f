package transport

import (
	"sync"
	"time"
)

// SimName is the endpoint name reported by simulated links.
const SimName = "sim"

// SimLink stands in for a stimulator in test mode. It acknowledges every
// frame it receives and keeps a copy of each one.
type SimLink struct {
	mu      sync.Mutex
	basic   bool
	sent    []Frame
	pending []*Frame
	nack    map[Command]bool
	closed  bool
}

func NewSimLink(basic bool) *SimLink {
	return &SimLink{
		basic: basic,
		nack:  make(map[Command]bool),
	}
}

func (s *SimLink) Name() string {
	return SimName
}

func (s *SimLink) Write(f *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrLinkClosed
	}

	copied := *f
	copied.Payload = append([]byte(nil), f.Payload...)
	s.sent = append(s.sent, copied)

	switch {
	case f.Command == CmdHello && s.basic:
		s.pending = append(s.pending, ackFrame(f, capBasic))
	case f.Command == CmdHello:
		s.pending = append(s.pending, ackFrame(f, 0))
	case s.nack[f.Command]:
		nack := ackFrame(f)
		nack.Command = CmdNack
		s.pending = append(s.pending, nack)
	default:
		s.pending = append(s.pending, ackFrame(f))
	}

	return nil
}

func (s *SimLink) Read(timeout time.Duration) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrLinkClosed
	}
	if len(s.pending) == 0 {
		return nil, ErrReadTimeout
	}

	f := s.pending[0]
	s.pending = s.pending[1:]
	return f, nil
}

func (s *SimLink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	return nil
}

// Sent returns a copy of every frame written so far.
func (s *SimLink) Sent() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.sent...)
}

// SetNack makes the link reject cmd from now on.
func (s *SimLink) SetNack(cmd Command, nack bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nack[cmd] = nack
}

// Closed reports whether Close was called.
func (s *SimLink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
