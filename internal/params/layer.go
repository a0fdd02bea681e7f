package params

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenStimCore/internal/transport"
	"go.uber.org/zap"
)

// Per-channel parameter names.
const (
	Amp   = "amp"
	MinPW = "minPW"
	MaxPW = "maxPW"
	IPI   = "IPI"
)

// DefaultIPI is used when a channel has no IPI parameter.
const DefaultIPI = 10

var ErrInvalidRange = errors.New("params: minPW above maxPW")

// Key returns the store key of a per-channel parameter.
func Key(ch int, name string) string {
	return fmt.Sprintf("stim.ch.%d.%s", ch, name)
}

// Lower is the layer the params layer wraps.
type Lower interface {
	transport.Stimulator
	TryGetBasic() (transport.Basic, bool)
	ConfigController() *transport.ConfigController
	LoadConfigFile() error
}

// Layer adds the parameter store on top of a transport.
type Layer struct {
	Lower

	store  *Store
	path   string
	logger *zap.Logger

	mu        sync.Mutex
	loaded    bool
	intensity map[int]int
}

func NewLayer(lower Lower, configDir string, logger *zap.Logger) *Layer {
	return &Layer{
		Lower:     lower,
		store:     NewStore(),
		path:      filepath.Join(configDir, ParamsFile),
		logger:    logger,
		intensity: make(map[int]int),
	}
}

// Initialize reads the parameter file on first use, then initializes the
// transport. Later calls keep the in-memory parameters.
func (l *Layer) Initialize(ctx context.Context) error {
	l.mu.Lock()
	first := !l.loaded
	l.loaded = true
	l.mu.Unlock()

	if first {
		err := l.store.Load(l.path)
		switch {
		case err == nil:
			l.logger.Info("Stimulation params loaded",
				zap.String("path", l.path),
				zap.Int("count", len(l.store.All())))
		case errors.Is(err, fs.ErrNotExist):
			l.logger.Info("No stimulation params file, starting empty", zap.String("path", l.path))
		default:
			l.mu.Lock()
			l.loaded = false
			l.mu.Unlock()
			return err
		}
	}

	return l.Lower.Initialize(ctx)
}

func (l *Layer) Store() *Store {
	return l.store
}

func (l *Layer) ParamsPath() string {
	return l.path
}

func (l *Layer) GetAllStimParams() map[string]float64 {
	return l.store.All()
}

func (l *Layer) GetStimParam(key string) (float64, error) {
	return l.store.Get(key)
}

func (l *Layer) TryGetStimParam(key string) (float64, bool) {
	return l.store.TryGet(key)
}

func (l *Layer) AddOrUpdateStimParam(key string, v float64) error {
	return l.store.Set(key, v)
}

// AddOrUpdateStimParams sets several parameters at once.
func (l *Layer) AddOrUpdateStimParams(values map[string]float64) error {
	return l.store.SetMany(values)
}

func (l *Layer) SaveParamsJson() error {
	if err := l.store.Save(l.path); err != nil {
		return err
	}
	l.logger.Info("Stimulation params saved", zap.String("path", l.path))
	return nil
}

// LoadParamsJson replaces the parameters from pathOrDir, or from the default
// file when pathOrDir is empty.
func (l *Layer) LoadParamsJson(pathOrDir string) error {
	path := pathOrDir
	if path == "" {
		path = l.path
	}
	if err := l.store.Load(path); err != nil {
		return err
	}
	l.logger.Info("Stimulation params loaded", zap.String("path", path))
	return nil
}

// PulseWidth maps magnitude m onto [minPW, maxPW] linearly. m is clamped to
// [0, 1].
func PulseWidth(minPW, maxPW, m float64) int {
	if math.IsNaN(m) || m < 0 {
		m = 0
	}
	if m > 1 {
		m = 1
	}
	pw := math.Max(minPW, math.Min(minPW+m*(maxPW-minPW), maxPW))
	return int(math.Round(pw))
}

// ChannelParams holds the stored parameters of one channel.
type ChannelParams struct {
	Amp   float64
	MinPW float64
	MaxPW float64
	IPI   float64
}

// Channel reads the parameters of ch. Amp, MinPW and MaxPW must be present.
func (l *Layer) Channel(ch int) (ChannelParams, error) {
	var p ChannelParams
	var err error

	if p.Amp, err = l.store.Get(Key(ch, Amp)); err != nil {
		return p, err
	}
	if p.MinPW, err = l.store.Get(Key(ch, MinPW)); err != nil {
		return p, err
	}
	if p.MaxPW, err = l.store.Get(Key(ch, MaxPW)); err != nil {
		return p, err
	}
	if p.MinPW > p.MaxPW {
		return p, fmt.Errorf("%w: channel %d (%v > %v)", ErrInvalidRange, ch, p.MinPW, p.MaxPW)
	}

	p.IPI = DefaultIPI
	if v, ok := l.store.TryGet(Key(ch, IPI)); ok {
		p.IPI = v
	}
	return p, nil
}

// StimulateNormalized stimulates ch with a pulse width interpolated from the
// channel's stored range.
func (l *Layer) StimulateNormalized(ch int, magnitude float64) error {
	p, err := l.Channel(ch)
	if err != nil {
		return err
	}

	pw := PulseWidth(p.MinPW, p.MaxPW, magnitude)
	if err := l.Lower.StimulateAnalog(ch, pw, int(math.Round(p.Amp)), int(math.Round(p.IPI))); err != nil {
		return err
	}

	l.setIntensity(ch, pw)
	return nil
}

// StimulateAnalog passes through to the transport and records pulseWidth as
// the channel's current intensity.
func (l *Layer) StimulateAnalog(ch, pulseWidth, amplitude, interPulseInterval int) error {
	if err := l.Lower.StimulateAnalog(ch, pulseWidth, amplitude, interPulseInterval); err != nil {
		return err
	}
	l.setIntensity(ch, pulseWidth)
	return nil
}

// GetStimIntensity returns the last pulse width sent to ch, or 0.
func (l *Layer) GetStimIntensity(ch int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intensity[ch]
}

func (l *Layer) setIntensity(ch, pw int) {
	l.mu.Lock()
	l.intensity[ch] = pw
	l.mu.Unlock()
}

// Shutdown resets the recorded intensities and shuts the transport down.
func (l *Layer) Shutdown() error {
	l.mu.Lock()
	l.intensity = make(map[int]int)
	l.mu.Unlock()
	return l.Lower.Shutdown()
}
