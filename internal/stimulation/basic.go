package stimulation

import (
	"github.com/KevinKickass/OpenStimCore/internal/transport"
)

// basicOp runs fn against the basic API probed at Initialize. Without it
// the call is logged and returns nil.
func (c *Controller) basicOp(op string, fn func(b transport.Basic) error) error {
	h, err := c.acquire(op)
	if err != nil {
		return err
	}
	if h.basic == nil {
		return c.report(newError(KindCapability, op, ErrCapabilityUnsupported))
	}
	return c.check(op, fn(h.basic))
}

// Save stores the stimulator settings on the device. target follows
// transport.TargetFromInt.
func (c *Controller) Save(target int) error {
	return c.basicOp("Save", func(b transport.Basic) error {
		return b.Save(transport.TargetFromInt(target))
	})
}

func (c *Controller) Load(target int) error {
	return c.basicOp("Load", func(b transport.Basic) error {
		return b.Load(transport.TargetFromInt(target))
	})
}

func (c *Controller) RequestConfigs(target, command, id int) error {
	return c.basicOp("RequestConfigs", func(b transport.Basic) error {
		return b.RequestConfigs(command, id, transport.TargetFromInt(target))
	})
}

// UpdateWaveform uploads w to every stimulator.
func (c *Controller) UpdateWaveform(w transport.Waveform, eventID int) error {
	return c.basicOp("UpdateWaveform", func(b transport.Basic) error {
		return b.UpdateWaveform(w, eventID, transport.Broadcast)
	})
}

func (c *Controller) UpdateWaveformFor(target int, w transport.Waveform, eventID int) error {
	return c.basicOp("UpdateWaveform", func(b transport.Basic) error {
		return b.UpdateWaveform(w, eventID, transport.TargetFromInt(target))
	})
}

// UpdateWaveformSamples uploads 16 cathodic then 16 anodic samples to every
// stimulator.
func (c *Controller) UpdateWaveformSamples(samples []int, eventID int) error {
	return c.UpdateWaveformSamplesFor(int(transport.Broadcast), samples, eventID)
}

func (c *Controller) UpdateWaveformSamplesFor(target int, samples []int, eventID int) error {
	return c.basicOp("UpdateWaveform", func(b transport.Basic) error {
		w, err := transport.WaveformFromSamples(samples)
		if err != nil {
			return err
		}
		return b.UpdateWaveform(w, eventID, transport.TargetFromInt(target))
	})
}

// UpdateEventShape selects the cathodic and anodic shapes of eventID on
// every stimulator.
func (c *Controller) UpdateEventShape(cathodic, anodic, eventID int) error {
	return c.basicOp("UpdateEventShape", func(b transport.Basic) error {
		return b.UpdateEventShape(cathodic, anodic, eventID, transport.Broadcast)
	})
}

func (c *Controller) UpdateEventShapeFor(target, cathodic, anodic, eventID int) error {
	return c.basicOp("UpdateEventShape", func(b transport.Basic) error {
		return b.UpdateEventShape(cathodic, anodic, eventID, transport.TargetFromInt(target))
	})
}

func (c *Controller) LoadWaveform(fileName string, eventID int) error {
	return c.basicOp("LoadWaveform", func(b transport.Basic) error {
		return b.LoadWaveform(fileName, eventID)
	})
}

func (c *Controller) WaveformSetup(w transport.Waveform, eventID, target int) error {
	return c.basicOp("WaveformSetup", func(b transport.Basic) error {
		return b.WaveformSetup(w, eventID, transport.TargetFromInt(target))
	})
}

func (c *Controller) UpdateIPD(ipd, eventID, target int) error {
	return c.basicOp("UpdateIPD", func(b transport.Basic) error {
		return b.UpdateIPD(ipd, eventID, transport.TargetFromInt(target))
	})
}
