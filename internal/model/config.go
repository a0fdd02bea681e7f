package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenStimCore/internal/schema"
)

// ConfigFile is the model configuration file name inside the config dir.
const ConfigFile = "modelConfig.json"

// Mode selects which pulse parameter a normalized magnitude drives.
type Mode string

const (
	ModePulseWidth Mode = "pulse_width"
	ModeAmplitude  Mode = "amplitude"
)

func (m Mode) Valid() bool {
	return m == ModePulseWidth || m == ModeAmplitude
}

type Config struct {
	Mode           Mode    `json:"mode"`
	MaxAmplitudeMA float64 `json:"max_amplitude_ma,omitempty"`
	PWLimitUS      int     `json:"pw_limit_us,omitempty"`
}

const (
	defaultMaxAmplitudeMA = 10
	defaultPWLimitUS      = 1000
)

func DefaultConfig() Config {
	return Config{
		Mode:           ModePulseWidth,
		MaxAmplitudeMA: defaultMaxAmplitudeMA,
		PWLimitUS:      defaultPWLimitUS,
	}
}

func (c Config) maxAmplitude() float64 {
	if c.MaxAmplitudeMA <= 0 {
		return defaultMaxAmplitudeMA
	}
	return c.MaxAmplitudeMA
}

func (c Config) pwLimit() float64 {
	if c.PWLimitUS <= 0 {
		return defaultPWLimitUS
	}
	return float64(c.PWLimitUS)
}

// ConfigController owns the model configuration file.
type ConfigController struct {
	path      string
	validator *schema.Validator

	mu     sync.RWMutex
	config Config
}

func NewConfigController(dir string, validator *schema.Validator) (*ConfigController, error) {
	c := &ConfigController{
		path:      filepath.Join(dir, ConfigFile),
		validator: validator,
	}

	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		if err := schema.WriteFile(c.path, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to write default model config: %w", err)
		}
	}

	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the file; the current config survives a failed reload.
func (c *ConfigController) Reload() error {
	var cfg Config
	if err := c.validator.LoadFile(c.path, schema.ModelConfigV1, &cfg); err != nil {
		return fmt.Errorf("failed to load model config: %w", err)
	}

	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()
	return nil
}

func (c *ConfigController) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *ConfigController) Path() string {
	return c.path
}
