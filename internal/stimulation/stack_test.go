package stimulation

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/KevinKickass/OpenStimCore/internal/params"
	"github.com/KevinKickass/OpenStimCore/internal/schema"
	"github.com/KevinKickass/OpenStimCore/internal/transport"
	"go.uber.org/zap"
)

// newSimController runs the real stack against the simulated link.
func newSimController(t *testing.T) *Controller {
	t.Helper()
	c, err := New(testOptions(t), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Shutdown() })
	return c
}

func TestSimulatedStackInitialize(t *testing.T) {
	c := newSimController(t)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !c.Ready() {
		t.Fatal("not ready in test mode")
	}
	if !c.BasicSupported() {
		t.Fatal("default core config advertises the basic api")
	}
	if valid, err := c.IsModeValid(); err != nil || !valid {
		t.Fatalf("IsModeValid=%v,%v", valid, err)
	}
	if c.SessionID().String() == "" {
		t.Fatal("no session id")
	}

	dir := c.Options().ConfigPath
	for _, name := range []string{transport.CoreConfigFile, "modelConfig.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s not created: %v", name, err)
		}
	}
}

func TestSimulatedStackWithoutBasic(t *testing.T) {
	opts := testOptions(t)
	cfg := transport.DefaultCoreConfig()
	cfg.BasicAPI = false
	if err := schema.WriteFile(filepath.Join(opts.ConfigPath, transport.CoreConfigFile), cfg); err != nil {
		t.Fatal(err)
	}

	c, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown()

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.BasicSupported() {
		t.Fatal("basic reported with basic_api=false")
	}
	if err := c.Save(0); err != nil {
		t.Fatalf("Save without capability returned %v", err)
	}
}

func TestSimulatedNormalizedStimulation(t *testing.T) {
	c := newSimController(t)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.StimulateNormalized("index", 0.5); err != nil {
		t.Fatalf("StimulateNormalized: %v", err)
	}
	if got, _ := c.GetStimIntensity("index"); got != 50 {
		t.Fatalf("intensity=%d want 50", got)
	}

	if err := c.UpdateChannelParams("index", 200, 100, 4); err != nil {
		t.Fatal(err)
	}
	if err := c.StimWithMode("ch2", 1); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.GetStimIntensity("index"); got != 200 {
		t.Fatalf("intensity=%d want 200", got)
	}
}

func TestSimulatedParamsRoundTrip(t *testing.T) {
	c := newSimController(t)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.AddOrUpdateStimParam("custom.gain", 0.1+0.2)
	want, _ := c.GetAllStimParams()
	if err := c.SaveParamsJson(); err != nil {
		t.Fatalf("SaveParamsJson: %v", err)
	}

	c.AddOrUpdateStimParam("custom.gain", 9)
	c.AddOrUpdateStimParam("custom.extra", 1)
	if err := c.LoadParamsJson(""); err != nil {
		t.Fatalf("LoadParamsJson: %v", err)
	}

	got, _ := c.GetAllStimParams()
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for k, v := range want {
		if math.Abs(got[k]-v) > 1e-9 {
			t.Fatalf("%s=%v want %v", k, got[k], v)
		}
	}
}

func TestSimulatedLoadMissingParamsFile(t *testing.T) {
	c := newSimController(t)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.AddOrUpdateStimParam("custom.gain", 2)
	before, _ := c.GetAllStimParams()

	err := c.LoadParamsJson(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err=%v want fs.ErrNotExist", err)
	}

	after, _ := c.GetAllStimParams()
	if !reflect.DeepEqual(before, after) {
		t.Fatal("failed load changed the store")
	}
}

func TestSimulatedParamsSurviveReset(t *testing.T) {
	c := newSimController(t)
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.SetChannelPWMax("thumb", 180); err != nil {
		t.Fatal(err)
	}
	if err := c.StartStimulation(); err != nil {
		t.Fatal(err)
	}

	if err := c.ResetRadio(ctx); err != nil {
		t.Fatalf("ResetRadio: %v", err)
	}
	if c.Started() {
		t.Fatal("stimulation running after reset")
	}
	if v, _ := c.GetChannelPWMax("thumb"); v != 180 {
		t.Fatalf("maxPW=%d after reset", v)
	}
	if v, _ := c.GetStimParam(params.Key(1, params.Amp)); v != 3 {
		t.Fatalf("amp=%v after reset", v)
	}
}

func TestSimulatedLoadCoreConfigFile(t *testing.T) {
	c := newSimController(t)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if valid, _ := c.IsFingerValid("ch7"); valid {
		t.Fatal("ch7 valid before reload")
	}

	cc, err := c.CoreConfigController()
	if err != nil {
		t.Fatal(err)
	}
	cfg := cc.Config()
	cfg.Devices = append(cfg.Devices, transport.DeviceConfig{Target: 2, Channels: []int{7}})
	if err := schema.WriteFile(cc.Path(), cfg); err != nil {
		t.Fatal(err)
	}

	if err := c.LoadCoreConfigFile(); err != nil {
		t.Fatalf("LoadCoreConfigFile: %v", err)
	}
	if valid, _ := c.IsFingerValid("ch7"); !valid {
		t.Fatal("ch7 invalid after reload")
	}
}
