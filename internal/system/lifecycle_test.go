package system

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/config"
	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"github.com/KevinKickass/OpenStimCore/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Stimulation: config.StimulationConfig{
			ConfigPath:     filepath.Join(dir, "Config"),
			TestMode:       true,
			MaxSetupTries:  1,
			TickIntervalMS: 1,
		},
		Server: config.ServerConfig{
			Enabled:         true,
			ShutdownTimeout: 2 * time.Second,
		},
		Journal: config.JournalConfig{
			Driver:    storage.DriverSQLite,
			Path:      filepath.Join(dir, "journal.db"),
			QueueSize: 16,
		},
	}
}

func TestLifecycleStartShutdown(t *testing.T) {
	lm, err := NewLifecycleManager(testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := lm.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if lm.State() != StateRunning {
		t.Fatalf("state=%s", lm.State())
	}
	status := lm.GetCurrentStatus()
	if !status.Controller.Initialized || !status.Controller.Ready {
		t.Fatalf("controller not ready: %+v", status.Controller)
	}
	if lm.RESTAddr() == "" || lm.GRPCAddr() == "" {
		t.Fatal("servers not bound")
	}

	_, port, err := net.SplitHostPort(lm.GRPCAddr())
	if err != nil {
		t.Fatal(err)
	}
	conn, err := grpc.NewClient(net.JoinHostPort("localhost", port), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health=%s", resp.GetStatus())
	}

	if err := lm.Controller().StartStimulation(); err != nil {
		t.Fatal(err)
	}
	journal := lm.Journal()
	if journal == nil {
		t.Fatal("journal disabled")
	}

	if err := lm.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-lm.Done():
	default:
		t.Fatal("Done not closed")
	}
	if lm.State() != StateStopped {
		t.Fatalf("state=%s", lm.State())
	}
	if lm.Controller().Initialized() {
		t.Fatal("controller still initialized")
	}

	// second call is a no-op
	if err := lm.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestLifecycleJournalsEvents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Enabled = false
	lm, err := NewLifecycleManager(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := lm.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := lm.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	// Shutdown closed the journal, reopen the file to read it back.
	store, err := storage.NewSQLiteStore(ctx, cfg.Journal.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) < 2 {
		t.Fatalf("got %d events", len(got))
	}
	if got[0].Type != string(stimulation.EventShutdown) || got[len(got)-1].Type != string(stimulation.EventInitialized) {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestLifecycleFollowsResetFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Enabled = false
	cfg.Journal.Driver = storage.DriverNone
	lm, err := NewLifecycleManager(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := lm.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer lm.Shutdown(ctx)

	health := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := lm.health.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
		if err != nil {
			t.Fatal(err)
		}
		return resp.GetStatus()
	}

	lm.onControllerEvent(stimulation.Event{Type: stimulation.EventResetFailed, SessionID: lm.Controller().SessionID()})
	if lm.State() != StateDegraded || health() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after failed reset: state=%s health=%s", lm.State(), health())
	}

	lm.onControllerEvent(stimulation.Event{Type: stimulation.EventReset, SessionID: lm.Controller().SessionID()})
	if lm.State() != StateRunning || health() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("after reset: state=%s health=%s", lm.State(), health())
	}
}

func TestLifecycleWithoutJournal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Enabled = false
	cfg.Journal.Driver = storage.DriverNone
	lm, err := NewLifecycleManager(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if lm.Journal() != nil {
		t.Fatal("expected nil journal")
	}
}

func TestLifecycleInvalidOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stimulation.TickIntervalMS = 0
	cfg.Journal.Driver = storage.DriverNone
	if _, err := NewLifecycleManager(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateInitializing, StateRunning, true},
		{StateInitializing, StateDegraded, true},
		{StateDegraded, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateStopped, StateRunning, false},
		{StateRunning, StateInitializing, false},
	}
	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: err=%v", tt.from, tt.to, err)
		}
	}
}
