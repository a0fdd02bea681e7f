package transport

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WaveformPoints is the number of samples in each phase of a waveform.
const WaveformPoints = 16

// Waveform is a custom pulse shape, one byte per sample.
type Waveform struct {
	Cathodic [WaveformPoints]uint8 `json:"cathodic" yaml:"cathodic"`
	Anodic   [WaveformPoints]uint8 `json:"anodic" yaml:"anodic"`
}

type waveformFile struct {
	Cathodic []int `yaml:"cathodic"`
	Anodic   []int `yaml:"anodic"`
}

// WaveformFromSamples builds a waveform from 2*WaveformPoints samples,
// cathodic phase first.
func WaveformFromSamples(samples []int) (Waveform, error) {
	if len(samples) != 2*WaveformPoints {
		return Waveform{}, fmt.Errorf("%w: waveform needs %d samples, got %d",
			ErrInvalidArgument, 2*WaveformPoints, len(samples))
	}
	return WaveformFromPhases(samples[:WaveformPoints], samples[WaveformPoints:])
}

func WaveformFromPhases(cathodic, anodic []int) (Waveform, error) {
	var w Waveform
	if len(cathodic) != WaveformPoints || len(anodic) != WaveformPoints {
		return w, fmt.Errorf("%w: each phase needs %d samples", ErrInvalidArgument, WaveformPoints)
	}
	for i := 0; i < WaveformPoints; i++ {
		c, err := toByte("cathodic sample", cathodic[i])
		if err != nil {
			return Waveform{}, err
		}
		a, err := toByte("anodic sample", anodic[i])
		if err != nil {
			return Waveform{}, err
		}
		w.Cathodic[i] = c
		w.Anodic[i] = a
	}
	return w, nil
}

// LoadWaveformFile reads a waveform stored as YAML (or JSON) with
// "cathodic" and "anodic" sample lists.
func LoadWaveformFile(path string) (Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("failed to read waveform: %w", err)
	}

	var file waveformFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Waveform{}, fmt.Errorf("failed to parse waveform %s: %w", path, err)
	}

	w, err := WaveformFromPhases(file.Cathodic, file.Anodic)
	if err != nil {
		return Waveform{}, fmt.Errorf("invalid waveform %s: %w", path, err)
	}
	return w, nil
}

func (w Waveform) bytes() []byte {
	out := make([]byte, 0, 2*WaveformPoints)
	out = append(out, w.Cathodic[:]...)
	out = append(out, w.Anodic[:]...)
	return out
}

func toByte(name string, v int) (byte, error) {
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("%w: %s %d outside 0..255", ErrInvalidArgument, name, v)
	}
	return byte(v), nil
}
