// Package transport drives the stimulator link: connection setup, the
// command queue flushed on every tick, and the optional basic API.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/schema"
	"go.uber.org/zap"
)

var (
	ErrSetupFailed     = errors.New("transport: connection setup failed")
	ErrNotReady        = errors.New("transport: not ready")
	ErrClosed          = errors.New("transport: core disposed")
	ErrNack            = errors.New("transport: command rejected")
	ErrInvalidArgument = errors.New("transport: invalid argument")
)

// Stimulator is the raw command surface of the stimulation stack.
type Stimulator interface {
	Initialize(ctx context.Context) error
	Shutdown() error
	Close() error
	Tick() error
	StartStim(target Target) error
	StopStim(target Target) error
	StimulateAnalog(channel, pulseWidth, amplitude, interPulseInterval int) error
	Ready() bool
	Started() bool
}

// Basic is the extended API offered by stimulators that support it.
type Basic interface {
	Save(target Target) error
	Load(target Target) error
	RequestConfigs(command, id int, target Target) error
	UpdateWaveform(w Waveform, eventID int, target Target) error
	UpdateEventShape(cathodic, anodic, eventID int, target Target) error
	LoadWaveform(fileName string, eventID int) error
	WaveformSetup(w Waveform, eventID int, target Target) error
	UpdateIPD(ipd, eventID int, target Target) error
}

// Options configures a Core.
type Options struct {
	// Port is the serial endpoint. Empty means auto-detect.
	Port          string
	ConfigDir     string
	TestMode      bool
	MaxSetupTries int
	RetryDelay    time.Duration
	AckTimeout    time.Duration
}

type CoreOption func(*Core)

// WithOpener replaces the function used to open links.
func WithOpener(open Opener) CoreOption {
	return func(c *Core) { c.open = open }
}

// WithValidator shares an already compiled schema validator.
func WithValidator(v *schema.Validator) CoreOption {
	return func(c *Core) { c.validator = v }
}

// WithPortLister replaces serial port auto-detection.
func WithPortLister(list func() ([]string, error)) CoreOption {
	return func(c *Core) { c.listPorts = list }
}

// Core is the lowest layer of the stimulation stack.
type Core struct {
	opts      Options
	logger    *zap.Logger
	config    *ConfigController
	validator *schema.Validator
	open      Opener
	listPorts func() ([]string, error)

	mu        sync.Mutex
	link      Link
	seq       uint16
	queue     []*Frame
	inflight  map[uint16]Command
	linkBasic bool
	ready     bool
	started   bool
	closed    bool
}

const (
	defaultRetryDelay = 500 * time.Millisecond
	defaultAckTimeout = 250 * time.Millisecond
	maxDrainPerTick   = 64
)

func NewCore(opts Options, logger *zap.Logger, options ...CoreOption) (*Core, error) {
	if opts.MaxSetupTries <= 0 {
		return nil, fmt.Errorf("%w: max setup tries must be positive", ErrInvalidArgument)
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaultAckTimeout
	}

	c := &Core{
		opts:      opts,
		logger:    logger,
		listPorts: DetectPorts,
		open:      OpenSerial,
		inflight:  make(map[uint16]Command),
	}
	if opts.TestMode {
		c.open = func(string, int) (Link, error) {
			return NewSimLink(c.config.Config().BasicAPI), nil
		}
	}

	for _, o := range options {
		o(c)
	}

	if c.validator == nil {
		validator, err := schema.NewValidator()
		if err != nil {
			return nil, fmt.Errorf("failed to create validator: %w", err)
		}
		c.validator = validator
	}

	config, err := NewConfigController(opts.ConfigDir, c.validator)
	if err != nil {
		return nil, err
	}
	c.config = config

	return c, nil
}

// ConfigController exposes the core configuration for reloads.
func (c *Core) ConfigController() *ConfigController {
	return c.config
}

// LoadConfigFile re-reads the core configuration file.
func (c *Core) LoadConfigFile() error {
	return c.config.Reload()
}

// LinkBasic reports whether the connected device advertised the basic API
// in its hello ack.
func (c *Core) LinkBasic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linkBasic
}

// TryGetBasic reports the basic API when the configuration enables it. The
// device's own advertisement is only logged when it disagrees.
func (c *Core) TryGetBasic() (Basic, bool) {
	if !c.config.Config().BasicAPI {
		return nil, false
	}
	return c, true
}

// Initialize connects and handshakes, trying at most MaxSetupTries times.
func (c *Core) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.ready {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxSetupTries; attempt++ {
		link, basic, err := c.connect()
		if err == nil {
			c.mu.Lock()
			c.link = link
			c.linkBasic = basic
			c.ready = true
			c.started = false
			c.queue = nil
			c.inflight = make(map[uint16]Command)
			c.mu.Unlock()

			c.logger.Info("Stimulator connected",
				zap.String("link", link.Name()),
				zap.Int("attempt", attempt),
				zap.Bool("basic_api", basic))
			if configured := c.config.Config().BasicAPI; configured != basic {
				c.logger.Warn("Basic API setting differs from device capability",
					zap.Bool("configured", configured),
					zap.Bool("advertised", basic))
			}
			return nil
		}

		lastErr = err
		c.logger.Warn("Stimulator setup attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.opts.MaxSetupTries),
			zap.Error(err))

		if attempt == c.opts.MaxSetupTries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrSetupFailed, ctx.Err())
		case <-time.After(c.opts.RetryDelay):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrSetupFailed, c.opts.MaxSetupTries, lastErr)
}

func (c *Core) candidates() ([]string, error) {
	if c.opts.TestMode {
		return []string{SimName}, nil
	}
	if c.opts.Port != "" {
		return []string{c.opts.Port}, nil
	}

	ports, err := c.listPorts()
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, errors.New("no serial ports found")
	}
	return ports, nil
}

func (c *Core) connect() (Link, bool, error) {
	names, err := c.candidates()
	if err != nil {
		return nil, false, err
	}

	baud := c.config.Config().baudRate()
	var lastErr error
	for _, name := range names {
		link, err := c.open(name, baud)
		if err != nil {
			lastErr = err
			continue
		}

		basic, err := c.handshake(link)
		if err != nil {
			link.Close()
			lastErr = fmt.Errorf("handshake on %s: %w", name, err)
			continue
		}
		return link, basic, nil
	}
	return nil, false, lastErr
}

func (c *Core) handshake(link Link) (bool, error) {
	hello := &Frame{Sequence: c.nextSeq(), Target: Broadcast, Command: CmdHello}
	if err := link.Write(hello); err != nil {
		return false, err
	}

	deadline := time.Now().Add(c.opts.AckTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, ErrReadTimeout
		}

		reply, err := link.Read(remaining)
		if err != nil {
			return false, err
		}

		seq, ok := reply.AckedSequence()
		if !ok || seq != hello.Sequence {
			continue
		}
		if reply.Command == CmdNack {
			return false, ErrNack
		}
		basic := len(reply.Payload) > 2 && reply.Payload[2]&capBasic != 0
		return basic, nil
	}
}

func (c *Core) nextSeq() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// enqueue queues a command for the next tick. Caller holds c.mu.
func (c *Core) enqueue(target Target, cmd Command, payload []byte) error {
	if c.closed {
		return ErrClosed
	}
	if !c.ready {
		return ErrNotReady
	}
	c.seq++
	c.queue = append(c.queue, &Frame{
		Sequence: c.seq,
		Target:   target,
		Command:  cmd,
		Payload:  payload,
	})
	return nil
}

func (c *Core) send(target Target, cmd Command, payload ...byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueue(target, cmd, payload)
}

// Tick flushes queued commands and drains acknowledgements.
func (c *Core) Tick() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.ready || c.link == nil {
		return ErrNotReady
	}

	for len(c.queue) > 0 {
		f := c.queue[0]
		if err := c.link.Write(f); err != nil {
			return fmt.Errorf("send %s: %w", f.Command, err)
		}
		c.queue = c.queue[1:]
		c.inflight[f.Sequence] = f.Command
	}

	var rejected []error
	for i := 0; i < maxDrainPerTick; i++ {
		reply, err := c.link.Read(time.Millisecond)
		if errors.Is(err, ErrReadTimeout) {
			break
		}
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}

		seq, ok := reply.AckedSequence()
		if !ok {
			continue
		}
		cmd, known := c.inflight[seq]
		delete(c.inflight, seq)
		if reply.Command == CmdNack && known {
			rejected = append(rejected, fmt.Errorf("%w: %s (seq %d)", ErrNack, cmd, seq))
		}
	}

	return errors.Join(rejected...)
}

func (c *Core) StartStim(target Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enqueue(target, CmdStartStim, nil); err != nil {
		return err
	}
	c.started = true
	return nil
}

func (c *Core) StopStim(target Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enqueue(target, CmdStopStim, nil); err != nil {
		return err
	}
	c.started = false
	return nil
}

// StimulateAnalog sends one pulse train request. Values are only checked
// against their wire widths.
func (c *Core) StimulateAnalog(channel, pulseWidth, amplitude, interPulseInterval int) error {
	ch, err := toByte("channel", channel)
	if err != nil {
		return err
	}
	if pulseWidth < 0 || pulseWidth > 0xFFFF {
		return fmt.Errorf("%w: pulse width %d outside 0..65535", ErrInvalidArgument, pulseWidth)
	}
	amp, err := toByte("amplitude", amplitude)
	if err != nil {
		return err
	}
	ipi, err := toByte("inter-pulse interval", interPulseInterval)
	if err != nil {
		return err
	}

	return c.send(Broadcast, CmdAnalog, ch, byte(pulseWidth>>8), byte(pulseWidth), amp, ipi)
}

func (c *Core) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Core) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Shutdown stops stimulation best-effort and closes the link.
func (c *Core) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link == nil {
		c.ready = false
		c.started = false
		return nil
	}

	var errs []error
	if c.started {
		c.seq++
		stop := &Frame{Sequence: c.seq, Target: Broadcast, Command: CmdStopStim}
		if err := c.link.Write(stop); err != nil {
			errs = append(errs, fmt.Errorf("stop stimulation: %w", err))
		}
	}

	if err := c.link.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close link: %w", err))
	}

	c.logger.Info("Stimulator disconnected", zap.String("link", c.link.Name()))

	c.link = nil
	c.queue = nil
	c.inflight = make(map[uint16]Command)
	c.ready = false
	c.started = false

	return errors.Join(errs...)
}

// Close shuts down and disposes the core. It cannot be initialized again.
func (c *Core) Close() error {
	err := c.Shutdown()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	return err
}

// Pending returns the number of commands waiting for the next tick.
func (c *Core) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
