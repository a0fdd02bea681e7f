package params

import (
	"context"

	"github.com/KevinKickass/OpenStimCore/internal/transport"
)

type analogCall struct {
	ch, pw, amp, ipi int
}

// fakeLower records calls and returns the configured errors.
type fakeLower struct {
	initCalls  int
	initErr    error
	analogErr  error
	analog     []analogCall
	shutdowns  int
	ready      bool
	started    bool
	basicOK    bool
	configCtrl *transport.ConfigController
}

func (f *fakeLower) Initialize(ctx context.Context) error {
	f.initCalls++
	if f.initErr != nil {
		return f.initErr
	}
	f.ready = true
	return nil
}

func (f *fakeLower) Shutdown() error {
	f.shutdowns++
	f.ready = false
	f.started = false
	return nil
}

func (f *fakeLower) Close() error { return f.Shutdown() }
func (f *fakeLower) Tick() error  { return nil }

func (f *fakeLower) StartStim(transport.Target) error {
	f.started = true
	return nil
}

func (f *fakeLower) StopStim(transport.Target) error {
	f.started = false
	return nil
}

func (f *fakeLower) StimulateAnalog(ch, pw, amp, ipi int) error {
	if f.analogErr != nil {
		return f.analogErr
	}
	f.analog = append(f.analog, analogCall{ch, pw, amp, ipi})
	return nil
}

func (f *fakeLower) Ready() bool   { return f.ready }
func (f *fakeLower) Started() bool { return f.started }

func (f *fakeLower) TryGetBasic() (transport.Basic, bool) { return nil, f.basicOK }

func (f *fakeLower) ConfigController() *transport.ConfigController { return f.configCtrl }
func (f *fakeLower) LoadConfigFile() error                         { return nil }
