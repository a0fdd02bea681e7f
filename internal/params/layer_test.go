package params

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestLayer(t *testing.T) (*Layer, *fakeLower) {
	t.Helper()
	lower := &fakeLower{}
	return NewLayer(lower, t.TempDir(), zap.NewNop()), lower
}

func seedChannel(t *testing.T, l *Layer, ch int, amp, minPW, maxPW float64) {
	t.Helper()
	err := l.AddOrUpdateStimParams(map[string]float64{
		Key(ch, Amp):   amp,
		Key(ch, MinPW): minPW,
		Key(ch, MaxPW): maxPW,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestKey(t *testing.T) {
	if got := Key(3, MaxPW); got != "stim.ch.3.maxPW" {
		t.Fatalf("Key=%s", got)
	}
}

func TestPulseWidth(t *testing.T) {
	tests := []struct {
		name        string
		min, max, m float64
		want        int
	}{
		{"zero", 20, 120, 0, 20},
		{"half", 20, 120, 0.5, 70},
		{"full", 20, 120, 1, 120},
		{"below", 20, 120, -3, 20},
		{"above", 20, 120, 7, 120},
		{"nan", 20, 120, math.NaN(), 20},
		{"rounded", 0, 3, 0.5, 2},
		{"flat", 50, 50, 0.3, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PulseWidth(tt.min, tt.max, tt.m); got != tt.want {
				t.Fatalf("PulseWidth(%v,%v,%v)=%d want %d", tt.min, tt.max, tt.m, got, tt.want)
			}
		})
	}
}

func TestPulseWidthMonotonic(t *testing.T) {
	prev := PulseWidth(10, 250, 0)
	for i := 1; i <= 100; i++ {
		pw := PulseWidth(10, 250, float64(i)/100)
		if pw < prev {
			t.Fatalf("pw decreased at m=%v: %d < %d", float64(i)/100, pw, prev)
		}
		if pw < 10 || pw > 250 {
			t.Fatalf("pw %d outside range", pw)
		}
		prev = pw
	}
}

func TestStimulateNormalized(t *testing.T) {
	l, lower := newTestLayer(t)
	seedChannel(t, l, 2, 4, 0, 100)
	l.AddOrUpdateStimParam(Key(2, IPI), 15)

	if err := l.StimulateNormalized(2, 0.5); err != nil {
		t.Fatalf("StimulateNormalized: %v", err)
	}
	if len(lower.analog) != 1 {
		t.Fatalf("analog calls=%v", lower.analog)
	}
	if got, want := lower.analog[0], (analogCall{2, 50, 4, 15}); got != want {
		t.Fatalf("analog=%+v want %+v", got, want)
	}
	if got := l.GetStimIntensity(2); got != 50 {
		t.Fatalf("intensity=%d want 50", got)
	}
}

func TestStimulateNormalizedDefaultIPI(t *testing.T) {
	l, lower := newTestLayer(t)
	seedChannel(t, l, 1, 3, 10, 20)

	if err := l.StimulateNormalized(1, 1); err != nil {
		t.Fatal(err)
	}
	if lower.analog[0].ipi != DefaultIPI {
		t.Fatalf("ipi=%d want %d", lower.analog[0].ipi, DefaultIPI)
	}
}

func TestStimulateNormalizedMissingParams(t *testing.T) {
	l, lower := newTestLayer(t)
	l.AddOrUpdateStimParam(Key(1, Amp), 3)

	if err := l.StimulateNormalized(1, 0.5); !errors.Is(err, ErrParamNotFound) {
		t.Fatalf("err=%v want ErrParamNotFound", err)
	}
	if len(lower.analog) != 0 {
		t.Fatal("stimulated without a pulse width range")
	}
}

func TestStimulateNormalizedInvertedRange(t *testing.T) {
	l, _ := newTestLayer(t)
	seedChannel(t, l, 1, 3, 90, 10)

	if err := l.StimulateNormalized(1, 0.5); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err=%v want ErrInvalidRange", err)
	}
}

func TestIntensityNotRecordedOnFailure(t *testing.T) {
	l, lower := newTestLayer(t)
	seedChannel(t, l, 1, 3, 0, 100)
	lower.analogErr = errors.New("not ready")

	if err := l.StimulateNormalized(1, 1); err == nil {
		t.Fatal("expected transport error")
	}
	if got := l.GetStimIntensity(1); got != 0 {
		t.Fatalf("intensity=%d after failed stimulation", got)
	}
}

func TestInitializeLoadsParamsOnce(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ParamsFile), []byte(`{"stim.ch.1.amp": 2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	lower := &fakeLower{}
	l := NewLayer(lower, dir, zap.NewNop())
	ctx := context.Background()

	if err := l.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if v, _ := l.TryGetStimParam("stim.ch.1.amp"); v != 2 {
		t.Fatalf("amp=%v want 2", v)
	}

	l.AddOrUpdateStimParam("stim.ch.1.amp", 5)
	if err := l.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := l.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := l.TryGetStimParam("stim.ch.1.amp"); v != 5 {
		t.Fatalf("re-Initialize reloaded params from disk: amp=%v", v)
	}
	if lower.initCalls != 2 {
		t.Fatalf("lower initialized %d times", lower.initCalls)
	}
}

func TestInitializeWithoutParamsFile(t *testing.T) {
	l, lower := newTestLayer(t)
	if err := l.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if len(l.GetAllStimParams()) != 0 || !lower.ready {
		t.Fatal("unexpected state after Initialize")
	}
}

func TestInitializeRejectsMalformedParams(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ParamsFile), []byte(`{`), 0o644); err != nil {
		t.Fatal(err)
	}
	lower := &fakeLower{}
	l := NewLayer(lower, dir, zap.NewNop())

	if err := l.Initialize(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if lower.initCalls != 0 {
		t.Fatal("transport initialized despite bad params")
	}
}

func TestSaveAndLoadParamsJson(t *testing.T) {
	l, _ := newTestLayer(t)
	seedChannel(t, l, 4, 2, 5, 55)

	if err := l.SaveParamsJson(); err != nil {
		t.Fatalf("SaveParamsJson: %v", err)
	}
	before := l.GetAllStimParams()

	l.AddOrUpdateStimParam(Key(4, Amp), 9)
	if err := l.LoadParamsJson(""); err != nil {
		t.Fatalf("LoadParamsJson: %v", err)
	}
	after := l.GetAllStimParams()
	if len(after) != len(before) || after[Key(4, Amp)] != 2 {
		t.Fatalf("after reload %v want %v", after, before)
	}
}
