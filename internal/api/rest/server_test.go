package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/api/websocket"
	"github.com/KevinKickass/OpenStimCore/internal/auth"
	"github.com/KevinKickass/OpenStimCore/internal/config"
	"github.com/KevinKickass/OpenStimCore/internal/interfaces"
	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"github.com/KevinKickass/OpenStimCore/internal/storage"
	"github.com/KevinKickass/OpenStimCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fakeLifecycle wraps a real controller on the simulated link.
type fakeLifecycle struct {
	cfg       *config.Config
	ctrl      *stimulation.Controller
	journal   interfaces.EventJournal
	shutdowns chan struct{}
}

func (f *fakeLifecycle) Config() *config.Config              { return f.cfg }
func (f *fakeLifecycle) Controller() *stimulation.Controller { return f.ctrl }
func (f *fakeLifecycle) Journal() interfaces.EventJournal    { return f.journal }

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "running", Controller: f.ctrl.Status()}
}

func (f *fakeLifecycle) Shutdown(ctx context.Context) error {
	f.shutdowns <- struct{}{}
	return f.ctrl.Shutdown()
}

type fakeJournal []storage.EventRecord

func (j fakeJournal) Recent(_ context.Context, limit int) ([]storage.EventRecord, error) {
	if limit < len(j) {
		return j[:limit], nil
	}
	return j, nil
}

func newTestServer(t *testing.T, authCfg config.AuthConfig) (*Server, *fakeLifecycle) {
	t.Helper()
	ctrl, err := stimulation.New(stimulation.Options{
		TestMode:      true,
		MaxSetupTries: 1,
		ConfigPath:    filepath.Join(t.TempDir(), "Config"),
		TickInterval:  time.Millisecond,
	}, stimulation.WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ctrl.Shutdown() })

	svc, err := auth.NewAuthService(authCfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	lm := &fakeLifecycle{cfg: &config.Config{}, ctrl: ctrl, shutdowns: make(chan struct{}, 1)}
	return NewServer(0, lm, zap.NewNop(), websocket.NewHub(zap.NewNop(), svc), svc), lm
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad json %q", method, path, w.Body)
		}
	}
	return w, out
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func initialize(t *testing.T, s *Server) {
	t.Helper()
	if w, body := do(t, s, http.MethodPost, "/api/v1/stimulator/initialize", nil); w.Code != http.StatusOK {
		t.Fatalf("initialize: %d %v", w.Code, body)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})
	w, body := do(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" || body["ready"] != false {
		t.Fatalf("%d %v", w.Code, body)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})

	w, body := do(t, s, http.MethodPost, "/api/v1/stimulator/start", nil)
	if w.Code != http.StatusConflict || errorCode(body) != types.CodeStimConflict {
		t.Fatalf("start before init: %d %v", w.Code, body)
	}

	w, body = do(t, s, http.MethodPost, "/api/v1/stimulator/initialize", nil)
	if w.Code != http.StatusOK || body["ready"] != true || body["basic_supported"] != true {
		t.Fatalf("initialize: %d %v", w.Code, body)
	}

	if w, _ := do(t, s, http.MethodPost, "/api/v1/stimulator/start", nil); w.Code != http.StatusAccepted {
		t.Fatalf("start: %d", w.Code)
	}
	if _, body := do(t, s, http.MethodGet, "/api/v1/stimulator/status", nil); body["started"] != true {
		t.Fatalf("status after start: %v", body)
	}

	w, body = do(t, s, http.MethodPost, "/api/v1/stimulator/reset", nil)
	if w.Code != http.StatusOK || body["started"] != false || body["ready"] != true {
		t.Fatalf("reset: %d %v", w.Code, body)
	}

	w, body = do(t, s, http.MethodPost, "/api/v1/stimulator/shutdown", nil)
	if w.Code != http.StatusOK || body["initialized"] != false {
		t.Fatalf("shutdown: %d %v", w.Code, body)
	}
}

func TestStimulateEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})
	initialize(t, s)

	w, body := do(t, s, http.MethodPost, "/api/v1/stimulator/stimulate/normalized",
		map[string]any{"channel": "index", "magnitude": 0.5})
	if w.Code != http.StatusAccepted || body["intensity"] != float64(50) {
		t.Fatalf("normalized: %d %v", w.Code, body)
	}

	w, body = do(t, s, http.MethodPost, "/api/v1/stimulator/stimulate/mode",
		map[string]any{"channel": "ch9", "magnitude": 1})
	if w.Code != http.StatusBadRequest || errorCode(body) != types.CodeStimBadRequest {
		t.Fatalf("out of range channel: %d %v", w.Code, body)
	}

	w, _ = do(t, s, http.MethodPost, "/api/v1/stimulator/stimulate/normalized", map[string]any{"channel": "index"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing magnitude: %d", w.Code)
	}

	w, body = do(t, s, http.MethodPost, "/api/v1/stimulator/stimulate/analog",
		map[string]any{"channel": "ch1", "pulse_width": 120})
	if w.Code != http.StatusAccepted || body["amplitude"] != float64(3) || body["ipi"] != float64(10) {
		t.Fatalf("analog defaults: %d %v", w.Code, body)
	}

	w, body = do(t, s, http.MethodPost, "/api/v1/stimulator/stimulate/analog",
		map[string]any{"channel": "ch1", "pulse_width": 70000})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("analog out of range: %d %v", w.Code, body)
	}
}

func TestParamsEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})
	initialize(t, s)

	w, body := do(t, s, http.MethodGet, "/api/v1/params/custom.gain", nil)
	if w.Code != http.StatusNotFound || errorCode(body) != types.CodeStimNotFound {
		t.Fatalf("missing param: %d %v", w.Code, body)
	}

	if w, _ := do(t, s, http.MethodPut, "/api/v1/params/custom.gain", map[string]any{"value": 1.5}); w.Code != http.StatusOK {
		t.Fatalf("set: %d", w.Code)
	}
	if _, body := do(t, s, http.MethodGet, "/api/v1/params/custom.gain", nil); body["value"] != 1.5 {
		t.Fatalf("get: %v", body)
	}

	if w, _ := do(t, s, http.MethodPost, "/api/v1/params/save", nil); w.Code != http.StatusOK {
		t.Fatalf("save: %d", w.Code)
	}
	do(t, s, http.MethodPut, "/api/v1/params/custom.gain", map[string]any{"value": 9})
	if w, _ := do(t, s, http.MethodPost, "/api/v1/params/load", nil); w.Code != http.StatusOK {
		t.Fatalf("load: %d", w.Code)
	}
	if _, body := do(t, s, http.MethodGet, "/api/v1/params/custom.gain", nil); body["value"] != 1.5 {
		t.Fatalf("after load: %v", body)
	}

	w, body = do(t, s, http.MethodPost, "/api/v1/params/load", map[string]any{"path": filepath.Join(t.TempDir(), "none.json")})
	if w.Code != http.StatusNotFound {
		t.Fatalf("load missing file: %d %v", w.Code, body)
	}

	_, body = do(t, s, http.MethodGet, "/api/v1/params", nil)
	if body["count"].(float64) < 21 {
		t.Fatalf("params list too short: %v", body)
	}
}

func TestChannelEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})
	initialize(t, s)

	w, body := do(t, s, http.MethodGet, "/api/v1/channels/thumb", nil)
	if w.Code != http.StatusOK || body["valid"] != true || body["pw_max"] != float64(100) || body["ipi"] != float64(10) {
		t.Fatalf("get: %d %v", w.Code, body)
	}

	w, body = do(t, s, http.MethodPatch, "/api/v1/channels/thumb", map[string]any{"pw_max": 250, "amp": 4})
	if w.Code != http.StatusOK || body["pw_max"] != float64(250) || body["amp"] != float64(4) {
		t.Fatalf("patch: %d %v", w.Code, body)
	}

	w, body = do(t, s, http.MethodPatch, "/api/v1/channels/thumb", map[string]any{"amp": -1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative amp: %d %v", w.Code, body)
	}

	w, body = do(t, s, http.MethodPut, "/api/v1/channels/ring", map[string]any{"pw_max": 300, "pw_min": 20, "amp": 2})
	if w.Code != http.StatusOK || body["pw_min"] != float64(20) {
		t.Fatalf("put: %d %v", w.Code, body)
	}

	_, body = do(t, s, http.MethodGet, "/api/v1/channels/ch8", nil)
	if body["valid"] != false {
		t.Fatalf("ch8: %v", body)
	}
}

func TestBasicEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})

	w, body := do(t, s, http.MethodPost, "/api/v1/basic/save", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("save before init: %d %v", w.Code, body)
	}

	initialize(t, s)
	w, body = do(t, s, http.MethodPost, "/api/v1/basic/save", map[string]any{"target": 1})
	if w.Code != http.StatusAccepted || body["basic_supported"] != true {
		t.Fatalf("save: %d %v", w.Code, body)
	}

	samples := make([]int, 32)
	for i := range samples {
		samples[i] = i * 8
	}
	if w, body := do(t, s, http.MethodPost, "/api/v1/basic/waveform", map[string]any{"samples": samples, "event_id": 1}); w.Code != http.StatusAccepted {
		t.Fatalf("waveform: %d %v", w.Code, body)
	}
	if w, _ := do(t, s, http.MethodPost, "/api/v1/basic/waveform", map[string]any{"samples": samples[:4], "event_id": 1}); w.Code != http.StatusBadRequest {
		t.Fatalf("short waveform: %d", w.Code)
	}
	if w, _ := do(t, s, http.MethodPost, "/api/v1/basic/waveform/setup", map[string]any{"samples": samples, "event_id": 2, "target": 0}); w.Code != http.StatusAccepted {
		t.Fatalf("setup: %d", w.Code)
	}
	if w, _ := do(t, s, http.MethodPost, "/api/v1/basic/event-shape", map[string]any{"cathodic": 1, "anodic": 2, "event_id": 1}); w.Code != http.StatusAccepted {
		t.Fatalf("event shape: %d", w.Code)
	}
	if w, _ := do(t, s, http.MethodPost, "/api/v1/basic/ipd", map[string]any{"ipd": 5, "event_id": 1, "target": 2}); w.Code != http.StatusAccepted {
		t.Fatalf("ipd: %d", w.Code)
	}
	if w, _ := do(t, s, http.MethodPost, "/api/v1/basic/request-configs", map[string]any{"command": 1, "id": 0}); w.Code != http.StatusAccepted {
		t.Fatalf("request configs: %d", w.Code)
	}
}

func TestConfigEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{})
	initialize(t, s)

	w, body := do(t, s, http.MethodGet, "/api/v1/config/core", nil)
	if w.Code != http.StatusOK || len(body["channels"].([]interface{})) != 5 {
		t.Fatalf("core: %d %v", w.Code, body)
	}
	_, body = do(t, s, http.MethodGet, "/api/v1/config/model", nil)
	if cfg := body["config"].(map[string]interface{}); cfg["mode"] != "pulse_width" {
		t.Fatalf("model: %v", body)
	}
	if w, _ := do(t, s, http.MethodPost, "/api/v1/config/reload", nil); w.Code != http.StatusOK {
		t.Fatalf("reload: %d", w.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	s, lm := newTestServer(t, config.AuthConfig{})

	if w, _ := do(t, s, http.MethodGet, "/api/v1/system/events", nil); w.Code != http.StatusNotFound {
		t.Fatalf("journal disabled: %d", w.Code)
	}

	lm.journal = fakeJournal{{ID: uuid.New(), Type: "started"}, {ID: uuid.New(), Type: "initialized"}}
	w, body := do(t, s, http.MethodGet, "/api/v1/system/events?limit=1", nil)
	if w.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("events: %d %v", w.Code, body)
	}
	if w, _ := do(t, s, http.MethodGet, "/api/v1/system/events?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", w.Code)
	}
}

func TestSystemShutdown(t *testing.T) {
	s, lm := newTestServer(t, config.AuthConfig{})
	initialize(t, s)

	if w, _ := do(t, s, http.MethodPost, "/api/v1/system/shutdown", nil); w.Code != http.StatusAccepted {
		t.Fatalf("shutdown: %d", w.Code)
	}
	select {
	case <-lm.shutdowns:
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle shutdown not called")
	}
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t, config.AuthConfig{Enabled: true, AccessTokenTTL: time.Minute, OperatorUsername: "operator"})

	w, body := do(t, s, http.MethodGet, "/api/v1/stimulator/status", nil)
	if w.Code != http.StatusUnauthorized || errorCode(body) != types.CodeUnauthorized {
		t.Fatalf("no token: %d %v", w.Code, body)
	}

	// no password hash configured, so every login fails
	w, _ = do(t, s, http.MethodPost, "/api/v1/auth/login", map[string]any{"username": "operator", "password": "x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login: %d", w.Code)
	}

	if w, _ := do(t, s, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health must stay public: %d", w.Code)
	}
}
