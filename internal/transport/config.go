package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/KevinKickass/OpenStimCore/internal/schema"
)

// CoreConfigFile is the core configuration file name inside the config dir.
const CoreConfigFile = "coreConfig.json"

const defaultBaudRate = 115200

// CoreConfig describes the connected stimulators and their channels.
type CoreConfig struct {
	Version  int            `json:"version"`
	BaudRate int            `json:"baud_rate,omitempty"`
	BasicAPI bool           `json:"basic_api"`
	Devices  []DeviceConfig `json:"devices"`
}

type DeviceConfig struct {
	Target   int   `json:"target"`
	Channels []int `json:"channels"`
}

func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		Version:  1,
		BaudRate: defaultBaudRate,
		BasicAPI: true,
		Devices: []DeviceConfig{
			{Target: 1, Channels: []int{1, 2, 3, 4, 5}},
		},
	}
}

// Channels returns every configured channel, sorted and de-duplicated.
func (c CoreConfig) Channels() []int {
	seen := make(map[int]bool)
	channels := make([]int, 0)
	for _, d := range c.Devices {
		for _, ch := range d.Channels {
			if !seen[ch] {
				seen[ch] = true
				channels = append(channels, ch)
			}
		}
	}
	sort.Ints(channels)
	return channels
}

func (c CoreConfig) HasChannel(ch int) bool {
	for _, d := range c.Devices {
		for _, configured := range d.Channels {
			if configured == ch {
				return true
			}
		}
	}
	return false
}

func (c CoreConfig) baudRate() int {
	if c.BaudRate <= 0 {
		return defaultBaudRate
	}
	return c.BaudRate
}

// ConfigController owns the core configuration file.
type ConfigController struct {
	path      string
	validator *schema.Validator

	mu     sync.RWMutex
	config CoreConfig
}

// NewConfigController loads dir/coreConfig.json, writing the defaults first
// when the file does not exist.
func NewConfigController(dir string, validator *schema.Validator) (*ConfigController, error) {
	c := &ConfigController{
		path:      filepath.Join(dir, CoreConfigFile),
		validator: validator,
	}

	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		if err := schema.WriteFile(c.path, DefaultCoreConfig()); err != nil {
			return nil, fmt.Errorf("failed to write default core config: %w", err)
		}
	}

	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the file. The current config is kept if the file is
// missing or invalid.
func (c *ConfigController) Reload() error {
	var cfg CoreConfig
	if err := c.validator.LoadFile(c.path, schema.CoreConfigV1, &cfg); err != nil {
		return fmt.Errorf("failed to load core config: %w", err)
	}

	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()
	return nil
}

func (c *ConfigController) Config() CoreConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *ConfigController) Path() string {
	return c.path
}
