package stimulation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/KevinKickass/OpenStimCore/internal/model"
	"github.com/KevinKickass/OpenStimCore/internal/params"
	"github.com/KevinKickass/OpenStimCore/internal/transport"
)

type analogCall struct {
	ch, pw, amp, ipi int
}

// fakeStack implements Stack with in-memory state. Func fields override
// the default behaviour.
type fakeStack struct {
	mu sync.Mutex

	channels map[int]bool
	values   map[string]float64
	analog   []analogCall
	normal   []float64
	normalCh []int
	basic    *fakeBasic

	ready   bool
	started bool

	initCalls     int
	shutdownCalls int
	closeCalls    int
	ticks         atomic.Int64

	InitializeFunc func(ctx context.Context) error
	ShutdownFunc   func() error
	CloseFunc      func() error
	TickFunc       func() error
}

func newFakeStack(channels ...int) *fakeStack {
	f := &fakeStack{
		channels: make(map[int]bool),
		values:   make(map[string]float64),
	}
	for _, ch := range channels {
		f.channels[ch] = true
	}
	return f
}

func (f *fakeStack) Initialize(ctx context.Context) error {
	f.mu.Lock()
	f.initCalls++
	fn := f.InitializeFunc
	f.mu.Unlock()
	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.ready = true
	f.mu.Unlock()
	return nil
}

func (f *fakeStack) Shutdown() error {
	f.mu.Lock()
	f.shutdownCalls++
	f.ready = false
	f.started = false
	fn := f.ShutdownFunc
	f.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (f *fakeStack) Close() error {
	f.mu.Lock()
	f.closeCalls++
	fn := f.CloseFunc
	f.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (f *fakeStack) Tick() error {
	f.ticks.Add(1)
	if f.TickFunc != nil {
		return f.TickFunc()
	}
	return nil
}

func (f *fakeStack) StartStim(transport.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return transport.ErrNotReady
	}
	f.started = true
	return nil
}

func (f *fakeStack) StopStim(transport.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return transport.ErrNotReady
	}
	f.started = false
	return nil
}

func (f *fakeStack) StimulateAnalog(ch, pw, amp, ipi int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analog = append(f.analog, analogCall{ch, pw, amp, ipi})
	return nil
}

func (f *fakeStack) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeStack) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeStack) TryGetBasic() (transport.Basic, bool) {
	if f.basic == nil {
		return nil, false
	}
	return f.basic, true
}

func (f *fakeStack) ConfigController() *transport.ConfigController { return nil }
func (f *fakeStack) LoadConfigFile() error                         { return nil }

func (f *fakeStack) GetAllStimParams() map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

func (f *fakeStack) GetStimParam(key string) (float64, error) {
	v, ok := f.TryGetStimParam(key)
	if !ok {
		return 0, params.ErrParamNotFound
	}
	return v, nil
}

func (f *fakeStack) TryGetStimParam(key string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeStack) AddOrUpdateStimParam(key string, v float64) error {
	return f.AddOrUpdateStimParams(map[string]float64{key: v})
}

func (f *fakeStack) AddOrUpdateStimParams(values map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range values {
		f.values[k] = v
	}
	return nil
}

func (f *fakeStack) SaveParamsJson() error          { return nil }
func (f *fakeStack) LoadParamsJson(string) error    { return nil }
func (f *fakeStack) GetStimIntensity(ch int) int    { return 0 }
func (f *fakeStack) IsModeValid() bool              { return true }
func (f *fakeStack) IsChannelInRange(ch int) bool   { return f.channels[ch] }
func (f *fakeStack) ModelConfigController() *model.ConfigController { return nil }

func (f *fakeStack) StimulateNormalized(ch int, m float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.normalCh = append(f.normalCh, ch)
	f.normal = append(f.normal, m)
	return nil
}

func (f *fakeStack) StimWithMode(ch int, m float64) error {
	if !f.channels[ch] {
		return model.ErrChannelOutOfRange
	}
	return f.StimulateNormalized(ch, m)
}

func (f *fakeStack) setChannel(ch int, name string, v float64) error {
	if !f.channels[ch] {
		return model.ErrChannelOutOfRange
	}
	return f.AddOrUpdateStimParam(params.Key(ch, name), v)
}

func (f *fakeStack) getChannel(ch int, name string) (float64, error) {
	if !f.channels[ch] {
		return 0, model.ErrChannelOutOfRange
	}
	return f.GetStimParam(params.Key(ch, name))
}

func (f *fakeStack) SetChannelAmp(ch int, mA float64) error { return f.setChannel(ch, params.Amp, mA) }
func (f *fakeStack) SetChannelPWMin(ch, us int) error {
	return f.setChannel(ch, params.MinPW, float64(us))
}
func (f *fakeStack) SetChannelPWMax(ch, us int) error {
	return f.setChannel(ch, params.MaxPW, float64(us))
}
func (f *fakeStack) SetChannelIPI(ch, ms int) error { return f.setChannel(ch, params.IPI, float64(ms)) }

func (f *fakeStack) GetChannelAmp(ch int) (float64, error) { return f.getChannel(ch, params.Amp) }

func (f *fakeStack) GetChannelPWMin(ch int) (int, error) {
	v, err := f.getChannel(ch, params.MinPW)
	return int(v), err
}

func (f *fakeStack) GetChannelPWMax(ch int) (int, error) {
	v, err := f.getChannel(ch, params.MaxPW)
	return int(v), err
}

func (f *fakeStack) GetChannelIPI(ch int) (int, error) {
	v, err := f.getChannel(ch, params.IPI)
	return int(v), err
}

type basicCall struct {
	op     string
	target transport.Target
	args   []int
}

// fakeBasic records basic API calls.
type fakeBasic struct {
	mu    sync.Mutex
	calls []basicCall
	err   error
}

func (b *fakeBasic) record(op string, target transport.Target, args ...int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, basicCall{op, target, args})
	return b.err
}

func (b *fakeBasic) Save(t transport.Target) error { return b.record("Save", t) }
func (b *fakeBasic) Load(t transport.Target) error { return b.record("Load", t) }

func (b *fakeBasic) RequestConfigs(command, id int, t transport.Target) error {
	return b.record("RequestConfigs", t, command, id)
}

func (b *fakeBasic) UpdateWaveform(w transport.Waveform, eventID int, t transport.Target) error {
	return b.record("UpdateWaveform", t, int(w.Cathodic[0]), eventID)
}

func (b *fakeBasic) UpdateEventShape(cathodic, anodic, eventID int, t transport.Target) error {
	return b.record("UpdateEventShape", t, cathodic, anodic, eventID)
}

func (b *fakeBasic) LoadWaveform(fileName string, eventID int) error {
	if fileName == "" {
		return errors.New("no file")
	}
	return b.record("LoadWaveform", transport.Broadcast, eventID)
}

func (b *fakeBasic) WaveformSetup(w transport.Waveform, eventID int, t transport.Target) error {
	return b.record("WaveformSetup", t, eventID)
}

func (b *fakeBasic) UpdateIPD(ipd, eventID int, t transport.Target) error {
	return b.record("UpdateIPD", t, ipd, eventID)
}

func (b *fakeBasic) Calls() []basicCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]basicCall(nil), b.calls...)
}
