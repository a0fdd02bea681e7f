package stimulation

import (
	"fmt"

	"github.com/KevinKickass/OpenStimCore/internal/model"
	"github.com/KevinKickass/OpenStimCore/internal/params"
	"github.com/KevinKickass/OpenStimCore/internal/schema"
	"github.com/KevinKickass/OpenStimCore/internal/transport"
	"go.uber.org/zap"
)

// Stack is the facade of the layered stimulation stack.
type Stack interface {
	model.Params

	IsChannelInRange(ch int) bool
	IsModeValid() bool
	StimWithMode(ch int, magnitude float64) error
	ModelConfigController() *model.ConfigController

	SetChannelAmp(ch int, mA float64) error
	SetChannelPWMin(ch, us int) error
	SetChannelPWMax(ch, us int) error
	SetChannelIPI(ch, ms int) error
	GetChannelAmp(ch int) (float64, error)
	GetChannelPWMin(ch int) (int, error)
	GetChannelPWMax(ch int) (int, error)
	GetChannelIPI(ch int) (int, error)
}

// StackFactory builds a new stack for configDir.
type StackFactory func(opts Options, configDir string, logger *zap.Logger) (Stack, error)

// NewStack builds transport, params and model layers in that order.
func NewStack(opts Options, configDir string, logger *zap.Logger) (Stack, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	core, err := transport.NewCore(opts.transportOptions(configDir), logger.Named("transport"), transport.WithValidator(validator))
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	p := params.NewLayer(core, configDir, logger.Named("params"))

	m, err := model.NewLayer(p, configDir, validator, logger.Named("model"))
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("failed to create model layer: %w", err)
	}
	return m, nil
}
