// Package stimulation owns the stimulation stack and its tick scheduler and
// exposes the lifecycle and command API used by the servers.
package stimulation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/KevinKickass/OpenStimCore/internal/channel"
	"github.com/KevinKickass/OpenStimCore/internal/model"
	"github.com/KevinKickass/OpenStimCore/internal/params"
	"github.com/KevinKickass/OpenStimCore/internal/scheduler"
	"github.com/KevinKickass/OpenStimCore/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults of StimulateAnalog.
const (
	DefaultAmplitude          = 3
	DefaultInterPulseInterval = 10
)

// stackHandle is swapped atomically so the tick loop always sees either a
// complete stack or none.
type stackHandle struct {
	stack   Stack
	basic   transport.Basic
	session uuid.UUID
}

type Controller struct {
	opts      Options
	logger    *zap.Logger
	factory   StackFactory
	observers []Observer

	// gate serializes Initialize, Shutdown and ResetRadio.
	gate    sync.Mutex
	current atomic.Pointer[stackHandle]
	sched   *scheduler.Scheduler
}

func New(opts Options, options ...Option) (*Controller, error) {
	if err := opts.Validate(); err != nil {
		return nil, newError(KindValidation, "New", err)
	}

	c := &Controller{
		opts:    opts,
		logger:  zap.NewNop(),
		factory: NewStack,
	}
	for _, o := range options {
		o(c)
	}

	c.sched = scheduler.New(opts.TickInterval, c.tick, c.logger.Named("scheduler"))
	return c, nil
}

func (c *Controller) Options() Options {
	return c.opts
}

func (c *Controller) tick() error {
	h := c.current.Load()
	if h == nil {
		return nil
	}
	if err := h.stack.Tick(); err != nil {
		return newError(KindTick, "Tick", err)
	}
	return nil
}

// report applies the failure policy of err's kind.
func (c *Controller) report(err *Error) error {
	if PolicyFor(err.Kind) == PolicyReturn {
		return err
	}
	c.logger.Error("Stimulation call failed",
		zap.String("op", err.Op),
		zap.Stringer("kind", err.Kind),
		zap.Error(err.Err))
	return nil
}

func (c *Controller) acquire(op string) (*stackHandle, error) {
	h := c.current.Load()
	if h == nil {
		return nil, c.report(newError(KindLifecycle, op, ErrLifecycle))
	}
	return h, nil
}

// Initialize builds the stack, connects and starts ticking. It does nothing
// when the controller is already initialized.
func (c *Controller) Initialize(ctx context.Context) error {
	c.gate.Lock()
	defer c.gate.Unlock()

	if c.current.Load() != nil {
		return nil
	}

	if err := c.opts.Validate(); err != nil {
		return c.report(newError(KindValidation, "Initialize", err))
	}

	dir, err := c.opts.EnsureConfigDir()
	if err != nil {
		return c.report(newError(KindSetup, "Initialize", err))
	}

	stack, err := c.factory(c.opts, dir, c.logger)
	if err != nil {
		return c.report(newError(KindSetup, "Initialize", err))
	}

	basic, _ := stack.TryGetBasic()

	if err := stack.Initialize(ctx); err != nil {
		if cerr := safely(stack.Close); cerr != nil {
			c.report(newError(KindTeardown, "Initialize", cerr))
		}
		return c.report(newError(KindSetup, "Initialize", err))
	}

	h := &stackHandle{stack: stack, basic: basic, session: uuid.New()}
	c.current.Store(h)
	c.sched.EnsureRunning()

	c.logger.Info("Stimulation controller initialized",
		zap.String("session", h.session.String()),
		zap.Bool("basic_supported", basic != nil),
		zap.Bool("test_mode", c.opts.TestMode),
		zap.String("config_dir", dir))
	c.emit(EventInitialized, h.session, map[string]interface{}{"basic_supported": basic != nil})
	return nil
}

// Shutdown stops the scheduler, tears the stack down and always leaves the
// controller uninitialized. Teardown failures are logged.
func (c *Controller) Shutdown() error {
	c.gate.Lock()
	defer c.gate.Unlock()

	c.sched.Stop()

	h := c.current.Load()
	if h == nil {
		return nil
	}

	if err := safely(h.stack.Shutdown); err != nil {
		c.report(newError(KindTeardown, "Shutdown", err))
	}
	if err := safely(h.stack.Close); err != nil {
		c.report(newError(KindTeardown, "Dispose", err))
	}

	c.current.Store(nil)

	c.logger.Info("Stimulation controller shut down", zap.String("session", h.session.String()))
	c.emit(EventShutdown, h.session, nil)
	return nil
}

// ReleaseRadio is Shutdown.
func (c *Controller) ReleaseRadio() error {
	return c.Shutdown()
}

// ResetRadio reconnects the existing stack without rebuilding it, so stored
// parameters survive. The scheduler restarts only when reconnecting works.
func (c *Controller) ResetRadio(ctx context.Context) error {
	c.gate.Lock()
	defer c.gate.Unlock()

	h := c.current.Load()
	if h == nil {
		return c.report(newError(KindLifecycle, "ResetRadio", ErrLifecycle))
	}

	c.sched.Stop()

	if err := safely(h.stack.Shutdown); err != nil {
		c.report(newError(KindTeardown, "ResetRadio", err))
	}
	if err := h.stack.Initialize(ctx); err != nil {
		c.emit(EventResetFailed, h.session, map[string]interface{}{"error": err.Error()})
		return c.report(newError(KindSetup, "ResetRadio", err))
	}

	basic, _ := h.stack.TryGetBasic()
	next := &stackHandle{stack: h.stack, basic: basic, session: h.session}
	c.current.Store(next)
	c.sched.EnsureRunning()

	c.logger.Info("Stimulation radio reset",
		zap.String("session", h.session.String()),
		zap.Bool("basic_supported", basic != nil))
	c.emit(EventReset, h.session, map[string]interface{}{"basic_supported": basic != nil})
	return nil
}

func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Ready reports whether the stack is connected. False when uninitialized.
func (c *Controller) Ready() bool {
	h := c.current.Load()
	return h != nil && h.stack.Ready()
}

// Started reports whether stimulation is running. False when uninitialized.
func (c *Controller) Started() bool {
	h := c.current.Load()
	return h != nil && h.stack.Started()
}

// BasicSupported reports the capability probed at Initialize.
func (c *Controller) BasicSupported() bool {
	h := c.current.Load()
	return h != nil && h.basic != nil
}

// Initialized reports whether a stack exists.
func (c *Controller) Initialized() bool {
	return c.current.Load() != nil
}

// SessionID identifies the current Initialize..Shutdown span, uuid.Nil
// when uninitialized.
func (c *Controller) SessionID() uuid.UUID {
	if h := c.current.Load(); h != nil {
		return h.session
	}
	return uuid.Nil
}

// SchedulerRunning reports whether the tick loop is alive.
func (c *Controller) SchedulerRunning() bool {
	return c.sched.Running()
}

// Status is a point-in-time view of the controller.
type Status struct {
	Initialized      bool      `json:"initialized"`
	Ready            bool      `json:"ready"`
	Started          bool      `json:"started"`
	BasicSupported   bool      `json:"basic_supported"`
	ModeValid        bool      `json:"mode_valid"`
	TestMode         bool      `json:"test_mode"`
	SchedulerRunning bool      `json:"scheduler_running"`
	SessionID        uuid.UUID `json:"session_id"`
}

func (c *Controller) Status() Status {
	s := Status{
		TestMode:         c.opts.TestMode,
		SchedulerRunning: c.sched.Running(),
	}
	h := c.current.Load()
	if h == nil {
		return s
	}
	s.Initialized = true
	s.Ready = h.stack.Ready()
	s.Started = h.stack.Started()
	s.BasicSupported = h.basic != nil
	s.ModeValid = h.stack.IsModeValid()
	s.SessionID = h.session
	return s
}

func (c *Controller) StartStimulation() error {
	h, err := c.acquire("StartStimulation")
	if err != nil {
		return err
	}
	if err := h.stack.StartStim(transport.Broadcast); err != nil {
		return c.check("StartStimulation", err)
	}
	c.emit(EventStarted, h.session, nil)
	return nil
}

func (c *Controller) StopStimulation() error {
	h, err := c.acquire("StopStimulation")
	if err != nil {
		return err
	}
	if err := h.stack.StopStim(transport.Broadcast); err != nil {
		return c.check("StopStimulation", err)
	}
	c.emit(EventStopped, h.session, nil)
	return nil
}

// StimulateAnalog sends pulseWidth to the aliased channel with the default
// amplitude and inter-pulse interval.
func (c *Controller) StimulateAnalog(alias string, pulseWidth int) error {
	return c.StimulateAnalogWith(alias, pulseWidth, DefaultAmplitude, DefaultInterPulseInterval)
}

// StimulateAnalogWith goes straight to the transport. The channel is not
// checked against the configuration.
func (c *Controller) StimulateAnalogWith(alias string, pulseWidth, amplitude, interPulseInterval int) error {
	h, err := c.acquire("StimulateAnalog")
	if err != nil {
		return err
	}
	ch := channel.Resolve(alias)
	return c.check("StimulateAnalog", h.stack.StimulateAnalog(ch, pulseWidth, amplitude, interPulseInterval))
}

func (c *Controller) StimWithMode(alias string, magnitude float64) error {
	h, err := c.acquire("StimWithMode")
	if err != nil {
		return err
	}
	return c.check("StimWithMode", h.stack.StimWithMode(channel.Resolve(alias), magnitude))
}

func (c *Controller) StimulateNormalized(alias string, magnitude float64) error {
	h, err := c.acquire("StimulateNormalized")
	if err != nil {
		return err
	}
	return c.check("StimulateNormalized", h.stack.StimulateNormalized(channel.Resolve(alias), magnitude))
}

// GetStimIntensity returns the last pulse width sent to the aliased channel.
func (c *Controller) GetStimIntensity(alias string) (int, error) {
	h, err := c.acquire("GetStimIntensity")
	if err != nil {
		return 0, err
	}
	return h.stack.GetStimIntensity(channel.Resolve(alias)), nil
}

func (c *Controller) IsFingerValid(alias string) (bool, error) {
	h, err := c.acquire("IsFingerValid")
	if err != nil {
		return false, err
	}
	return h.stack.IsChannelInRange(channel.Resolve(alias)), nil
}

func (c *Controller) IsModeValid() (bool, error) {
	h, err := c.acquire("IsModeValid")
	if err != nil {
		return false, err
	}
	return h.stack.IsModeValid(), nil
}

func (c *Controller) check(op string, err error) error {
	if err == nil {
		return nil
	}
	return c.report(classify(op, err))
}

func (c *Controller) GetAllStimParams() (map[string]float64, error) {
	h, err := c.acquire("GetAllStimParams")
	if err != nil {
		return nil, err
	}
	return h.stack.GetAllStimParams(), nil
}

func (c *Controller) GetStimParam(key string) (float64, error) {
	h, err := c.acquire("GetStimParam")
	if err != nil {
		return 0, err
	}
	v, err := h.stack.GetStimParam(key)
	return v, c.check("GetStimParam", err)
}

// TryGetStimParam reports a missing key as ok=false rather than an error.
func (c *Controller) TryGetStimParam(key string) (float64, bool, error) {
	h, err := c.acquire("TryGetStimParam")
	if err != nil {
		return 0, false, err
	}
	v, ok := h.stack.TryGetStimParam(key)
	return v, ok, nil
}

func (c *Controller) AddOrUpdateStimParam(key string, v float64) error {
	h, err := c.acquire("AddOrUpdateStimParam")
	if err != nil {
		return err
	}
	if err := h.stack.AddOrUpdateStimParam(key, v); err != nil {
		return c.check("AddOrUpdateStimParam", err)
	}
	c.emit(EventParamsChanged, h.session, map[string]interface{}{"keys": []string{key}})
	return nil
}

func (c *Controller) SaveParamsJson() error {
	h, err := c.acquire("SaveParamsJson")
	if err != nil {
		return err
	}
	return c.check("SaveParamsJson", h.stack.SaveParamsJson())
}

// LoadParamsJson replaces the parameters from pathOrDir, or from the
// default file when pathOrDir is empty.
func (c *Controller) LoadParamsJson(pathOrDir string) error {
	h, err := c.acquire("LoadParamsJson")
	if err != nil {
		return err
	}
	if err := h.stack.LoadParamsJson(pathOrDir); err != nil {
		return c.check("LoadParamsJson", err)
	}
	c.emit(EventParamsChanged, h.session, map[string]interface{}{"source": pathOrDir})
	return nil
}

// UpdateChannelParams sets maxPW, minPW and amp of the aliased channel
// together. Nothing changes when the channel is not configured.
func (c *Controller) UpdateChannelParams(alias string, maxPW, minPW, amp int) error {
	h, err := c.acquire("UpdateChannelParams")
	if err != nil {
		return err
	}

	ch := channel.Resolve(alias)
	if !h.stack.IsChannelInRange(ch) {
		return c.report(newError(KindValidation, "UpdateChannelParams",
			fmt.Errorf("%w: channel %d is not valid for current config", model.ErrChannelOutOfRange, ch)))
	}

	values := map[string]float64{
		params.Key(ch, params.MaxPW): float64(maxPW),
		params.Key(ch, params.MinPW): float64(minPW),
		params.Key(ch, params.Amp):   float64(amp),
	}
	if err := h.stack.AddOrUpdateStimParams(values); err != nil {
		return c.check("UpdateChannelParams", err)
	}

	c.emit(EventParamsChanged, h.session, map[string]interface{}{"channel": ch})
	return nil
}

func (c *Controller) channelOp(op, alias string, fn func(s Stack, ch int) error) error {
	h, err := c.acquire(op)
	if err != nil {
		return err
	}
	return c.check(op, fn(h.stack, channel.Resolve(alias)))
}

func (c *Controller) SetChannelAmp(alias string, mA float64) error {
	return c.channelOp("SetChannelAmp", alias, func(s Stack, ch int) error { return s.SetChannelAmp(ch, mA) })
}

func (c *Controller) SetChannelPWMin(alias string, us int) error {
	return c.channelOp("SetChannelPWMin", alias, func(s Stack, ch int) error { return s.SetChannelPWMin(ch, us) })
}

func (c *Controller) SetChannelPWMax(alias string, us int) error {
	return c.channelOp("SetChannelPWMax", alias, func(s Stack, ch int) error { return s.SetChannelPWMax(ch, us) })
}

func (c *Controller) SetChannelIPI(alias string, ms int) error {
	return c.channelOp("SetChannelIPI", alias, func(s Stack, ch int) error { return s.SetChannelIPI(ch, ms) })
}

func (c *Controller) GetChannelAmp(alias string) (float64, error) {
	var v float64
	err := c.channelOp("GetChannelAmp", alias, func(s Stack, ch int) (err error) {
		v, err = s.GetChannelAmp(ch)
		return err
	})
	return v, err
}

func (c *Controller) GetChannelPWMin(alias string) (int, error) {
	var v int
	err := c.channelOp("GetChannelPWMin", alias, func(s Stack, ch int) (err error) {
		v, err = s.GetChannelPWMin(ch)
		return err
	})
	return v, err
}

func (c *Controller) GetChannelPWMax(alias string) (int, error) {
	var v int
	err := c.channelOp("GetChannelPWMax", alias, func(s Stack, ch int) (err error) {
		v, err = s.GetChannelPWMax(ch)
		return err
	})
	return v, err
}

func (c *Controller) GetChannelIPI(alias string) (int, error) {
	var v int
	err := c.channelOp("GetChannelIPI", alias, func(s Stack, ch int) (err error) {
		v, err = s.GetChannelIPI(ch)
		return err
	})
	return v, err
}

func (c *Controller) CoreConfigController() (*transport.ConfigController, error) {
	h, err := c.acquire("CoreConfigController")
	if err != nil {
		return nil, err
	}
	return h.stack.ConfigController(), nil
}

func (c *Controller) ModelConfigController() (*model.ConfigController, error) {
	h, err := c.acquire("ModelConfigController")
	if err != nil {
		return nil, err
	}
	return h.stack.ModelConfigController(), nil
}

// LoadCoreConfigFile reloads the core and model configuration files.
func (c *Controller) LoadCoreConfigFile() error {
	h, err := c.acquire("LoadCoreConfigFile")
	if err != nil {
		return err
	}
	return c.check("LoadCoreConfigFile", h.stack.LoadConfigFile())
}
