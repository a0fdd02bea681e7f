package transport

import (
	"fmt"
	"path/filepath"
)

func (c *Core) Save(target Target) error {
	return c.send(target, CmdSave)
}

func (c *Core) Load(target Target) error {
	return c.send(target, CmdLoad)
}

// RequestConfigs asks the stimulator to report configuration block id.
func (c *Core) RequestConfigs(command, id int, target Target) error {
	cmd, err := toByte("config command", command)
	if err != nil {
		return err
	}
	bid, err := toByte("config id", id)
	if err != nil {
		return err
	}
	return c.send(target, CmdRequestConfigs, cmd, bid)
}

// UpdateWaveform uploads w into waveform slot eventID.
func (c *Core) UpdateWaveform(w Waveform, eventID int, target Target) error {
	slot, err := toByte("event id", eventID)
	if err != nil {
		return err
	}
	payload := append([]byte{slot}, w.bytes()...)
	return c.send(target, CmdWaveform, payload...)
}

// UpdateEventShape selects the stored waveform slots used by event eventID.
func (c *Core) UpdateEventShape(cathodic, anodic, eventID int, target Target) error {
	ev, err := toByte("event id", eventID)
	if err != nil {
		return err
	}
	cs, err := toByte("cathodic shape", cathodic)
	if err != nil {
		return err
	}
	as, err := toByte("anodic shape", anodic)
	if err != nil {
		return err
	}
	return c.send(target, CmdEventShape, ev, cs, as)
}

// LoadWaveform reads a waveform file and uploads it to every stimulator.
// Relative names resolve against the config directory.
func (c *Core) LoadWaveform(fileName string, eventID int) error {
	path := fileName
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.opts.ConfigDir, fileName)
	}

	w, err := LoadWaveformFile(path)
	if err != nil {
		return err
	}
	return c.WaveformSetup(w, eventID, Broadcast)
}

// WaveformSetup uploads w and points both phases of event eventID at it.
func (c *Core) WaveformSetup(w Waveform, eventID int, target Target) error {
	if err := c.UpdateWaveform(w, eventID, target); err != nil {
		return fmt.Errorf("upload waveform: %w", err)
	}
	if err := c.UpdateEventShape(eventID, eventID, eventID, target); err != nil {
		return fmt.Errorf("set event shape: %w", err)
	}
	return nil
}

// UpdateIPD sets the inter-phase delay of event eventID.
func (c *Core) UpdateIPD(ipd, eventID int, target Target) error {
	ev, err := toByte("event id", eventID)
	if err != nil {
		return err
	}
	d, err := toByte("inter-phase delay", ipd)
	if err != nil {
		return err
	}
	return c.send(target, CmdIPD, ev, d)
}
