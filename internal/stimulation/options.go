package stimulation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/transport"
	"go.uber.org/zap"
)

const (
	DefaultMaxSetupTries = 5
	DefaultTickInterval  = 10 * time.Millisecond
	DefaultConfigDir     = "Config"
)

// Options configures a Controller. They are fixed once the controller is
// built.
type Options struct {
	// SerialPort selects the stimulator endpoint. Empty means auto-detect.
	SerialPort    string
	TestMode      bool
	MaxSetupTries int
	ConfigPath    string
	TickInterval  time.Duration
}

// DefaultOptions uses ./Config below the working directory.
func DefaultOptions() Options {
	dir := DefaultConfigDir
	if wd, err := os.Getwd(); err == nil {
		dir = filepath.Join(wd, DefaultConfigDir)
	}
	return Options{
		MaxSetupTries: DefaultMaxSetupTries,
		ConfigPath:    dir,
		TickInterval:  DefaultTickInterval,
	}
}

// Validate rejects options the controller cannot run with. Nothing is
// corrected silently.
func (o Options) Validate() error {
	var errs []error
	if o.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", o.TickInterval))
	}
	if o.MaxSetupTries <= 0 {
		errs = append(errs, fmt.Errorf("max setup tries must be positive, got %d", o.MaxSetupTries))
	}
	if o.ConfigPath == "" {
		errs = append(errs, errors.New("config path is required"))
	}
	return errors.Join(errs...)
}

// EnsureConfigDir resolves ConfigPath to an absolute path and creates it.
func (o Options) EnsureConfigDir() (string, error) {
	dir, err := filepath.Abs(o.ConfigPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", o.ConfigPath, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}
	return dir, nil
}

func (o Options) transportOptions(configDir string) transport.Options {
	return transport.Options{
		Port:          o.SerialPort,
		ConfigDir:     configDir,
		TestMode:      o.TestMode,
		MaxSetupTries: o.MaxSetupTries,
	}
}

// Option customizes a Controller.
type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStackFactory replaces the function that builds the layered stack.
func WithStackFactory(f StackFactory) Option {
	return func(c *Controller) {
		if f != nil {
			c.factory = f
		}
	}
}

// WithObserver registers fn for lifecycle and stimulation events.
func WithObserver(fn Observer) Option {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}
