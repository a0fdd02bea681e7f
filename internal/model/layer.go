// Package model applies the channel topology and stimulation mode on top of
// the parameter store. Its Layer is the facade the controller drives.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/KevinKickass/OpenStimCore/internal/params"
	"github.com/KevinKickass/OpenStimCore/internal/schema"
	"go.uber.org/zap"
)

var (
	ErrChannelOutOfRange = errors.New("model: channel out of range")
	ErrInvalidValue      = errors.New("model: invalid value")
	ErrInvalidMode       = errors.New("model: invalid mode")
)

// Defaults seeded for every configured channel without stored parameters.
const (
	DefaultAmp   = 3
	DefaultMinPW = 0
	DefaultMaxPW = 100
)

// Params is the layer the model wraps.
type Params interface {
	params.Lower
	GetAllStimParams() map[string]float64
	GetStimParam(key string) (float64, error)
	TryGetStimParam(key string) (float64, bool)
	AddOrUpdateStimParam(key string, v float64) error
	AddOrUpdateStimParams(values map[string]float64) error
	SaveParamsJson() error
	LoadParamsJson(pathOrDir string) error
	StimulateNormalized(ch int, magnitude float64) error
	GetStimIntensity(ch int) int
}

type Layer struct {
	Params

	modelConfig *ConfigController
	logger      *zap.Logger
}

func NewLayer(p Params, configDir string, validator *schema.Validator, logger *zap.Logger) (*Layer, error) {
	mc, err := NewConfigController(configDir, validator)
	if err != nil {
		return nil, err
	}
	return &Layer{Params: p, modelConfig: mc, logger: logger}, nil
}

// Initialize brings up the lower layers, then fills in defaults for
// configured channels that have no stored parameters.
func (l *Layer) Initialize(ctx context.Context) error {
	if err := l.Params.Initialize(ctx); err != nil {
		return err
	}

	seeded := 0
	for _, ch := range l.Channels() {
		defaults := map[string]float64{
			params.Key(ch, params.Amp):   DefaultAmp,
			params.Key(ch, params.MinPW): DefaultMinPW,
			params.Key(ch, params.MaxPW): DefaultMaxPW,
			params.Key(ch, params.IPI):   params.DefaultIPI,
		}
		for key := range defaults {
			if _, ok := l.TryGetStimParam(key); ok {
				delete(defaults, key)
			}
		}
		if len(defaults) == 0 {
			continue
		}
		if err := l.AddOrUpdateStimParams(defaults); err != nil {
			return err
		}
		seeded += len(defaults)
	}

	if seeded > 0 {
		l.logger.Info("Seeded default channel params", zap.Int("count", seeded))
	}
	return nil
}

// Channels returns the channels of the loaded core config.
func (l *Layer) Channels() []int {
	return l.ConfigController().Config().Channels()
}

func (l *Layer) IsChannelInRange(ch int) bool {
	return ch > 0 && l.ConfigController().Config().HasChannel(ch)
}

func (l *Layer) ModelConfigController() *ConfigController {
	return l.modelConfig
}

// LoadConfigFile reloads both the core and the model configuration.
func (l *Layer) LoadConfigFile() error {
	if err := l.Params.LoadConfigFile(); err != nil {
		return err
	}
	return l.modelConfig.Reload()
}

// IsModeValid reports whether the mode is known and every configured
// channel has a coherent parameter set.
func (l *Layer) IsModeValid() bool {
	cfg := l.modelConfig.Config()
	if !cfg.Mode.Valid() {
		return false
	}

	for _, ch := range l.Channels() {
		amp, okA := l.TryGetStimParam(params.Key(ch, params.Amp))
		minPW, okMin := l.TryGetStimParam(params.Key(ch, params.MinPW))
		maxPW, okMax := l.TryGetStimParam(params.Key(ch, params.MaxPW))
		if !okA || !okMin || !okMax {
			return false
		}
		if minPW < 0 || minPW > maxPW || maxPW > cfg.pwLimit() {
			return false
		}
		if amp < 0 || amp > cfg.maxAmplitude() {
			return false
		}
	}
	return true
}

func (l *Layer) checkChannel(ch int) error {
	if !l.IsChannelInRange(ch) {
		return fmt.Errorf("%w: %d", ErrChannelOutOfRange, ch)
	}
	return nil
}

func (l *Layer) setChannel(ch int, name string, v float64) error {
	if err := l.checkChannel(ch); err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("%w: channel %d %s=%v", ErrInvalidValue, ch, name, v)
	}
	return l.AddOrUpdateStimParam(params.Key(ch, name), v)
}

func (l *Layer) getChannel(ch int, name string) (float64, error) {
	if err := l.checkChannel(ch); err != nil {
		return 0, err
	}
	return l.GetStimParam(params.Key(ch, name))
}

func (l *Layer) SetChannelAmp(ch int, mA float64) error {
	if mA > l.modelConfig.Config().maxAmplitude() {
		return fmt.Errorf("%w: amplitude %v above limit", ErrInvalidValue, mA)
	}
	return l.setChannel(ch, params.Amp, mA)
}

func (l *Layer) SetChannelPWMin(ch, us int) error {
	return l.setChannel(ch, params.MinPW, float64(us))
}

func (l *Layer) SetChannelPWMax(ch, us int) error {
	return l.setChannel(ch, params.MaxPW, float64(us))
}

func (l *Layer) SetChannelIPI(ch, ms int) error {
	return l.setChannel(ch, params.IPI, float64(ms))
}

func (l *Layer) GetChannelAmp(ch int) (float64, error) {
	return l.getChannel(ch, params.Amp)
}

func (l *Layer) GetChannelPWMin(ch int) (int, error) {
	v, err := l.getChannel(ch, params.MinPW)
	return int(math.Round(v)), err
}

func (l *Layer) GetChannelPWMax(ch int) (int, error) {
	v, err := l.getChannel(ch, params.MaxPW)
	return int(math.Round(v)), err
}

func (l *Layer) GetChannelIPI(ch int) (int, error) {
	if err := l.checkChannel(ch); err != nil {
		return 0, err
	}
	v, ok := l.TryGetStimParam(params.Key(ch, params.IPI))
	if !ok {
		return params.DefaultIPI, nil
	}
	return int(math.Round(v)), nil
}

// StimulateNormalized is the params path restricted to configured channels.
func (l *Layer) StimulateNormalized(ch int, magnitude float64) error {
	if err := l.checkChannel(ch); err != nil {
		return err
	}
	return l.Params.StimulateNormalized(ch, magnitude)
}

// StimWithMode drives the pulse width (pulse_width mode) or the amplitude at
// maximum pulse width (amplitude mode) from magnitude.
func (l *Layer) StimWithMode(ch int, magnitude float64) error {
	if err := l.checkChannel(ch); err != nil {
		return err
	}

	mode := l.modelConfig.Config().Mode
	switch mode {
	case ModePulseWidth:
		return l.Params.StimulateNormalized(ch, magnitude)
	case ModeAmplitude:
		amp, err := l.GetStimParam(params.Key(ch, params.Amp))
		if err != nil {
			return err
		}
		maxPW, err := l.GetStimParam(params.Key(ch, params.MaxPW))
		if err != nil {
			return err
		}
		ipi, err := l.GetChannelIPI(ch)
		if err != nil {
			return err
		}
		scaled := math.Round(clamp01(magnitude) * amp)
		return l.StimulateAnalog(ch, int(math.Round(maxPW)), int(scaled), ipi)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func clamp01(m float64) float64 {
	if math.IsNaN(m) || m < 0 {
		return 0
	}
	if m > 1 {
		return 1
	}
	return m
}
