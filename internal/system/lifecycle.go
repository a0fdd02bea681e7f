package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/api/rest"
	"github.com/KevinKickass/OpenStimCore/internal/api/websocket"
	"github.com/KevinKickass/OpenStimCore/internal/auth"
	"github.com/KevinKickass/OpenStimCore/internal/config"
	"github.com/KevinKickass/OpenStimCore/internal/interfaces"
	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"github.com/KevinKickass/OpenStimCore/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name tracking the stimulator.
const HealthService = "openstimcore.Stimulator"

const journalOpenTimeout = 10 * time.Second

type LifecycleManager struct {
	config      *config.Config
	logger      *zap.Logger
	controller  *stimulation.Controller
	journal     *storage.Journal
	hub         *websocket.Hub
	authService *auth.AuthService

	restServer *rest.Server
	grpcServer *grpc.Server
	grpcAddr   string
	health     *health.Server

	hubCancel context.CancelFunc
	startedAt time.Time

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager wires auth, journal, hub and controller. Nothing is
// started until Start.
func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	authService, err := auth.NewAuthService(cfg.Auth, logger.Named("auth"))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		authService:  authService,
		hub:          websocket.NewHub(logger.Named("ws"), authService),
		health:       health.NewServer(),
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
	lm.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	if cfg.Journal.Driver != "" && cfg.Journal.Driver != storage.DriverNone {
		ctx, cancel := context.WithTimeout(context.Background(), journalOpenTimeout)
		backend, err := storage.Open(ctx, cfg.Journal)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		lm.journal = storage.NewJournal(backend, cfg.Journal.QueueSize, logger.Named("journal"))
	}

	options := []stimulation.Option{
		stimulation.WithLogger(logger.Named("stimulation")),
		stimulation.WithObserver(lm.hub.Publish),
		stimulation.WithObserver(lm.onControllerEvent),
	}
	if lm.journal != nil {
		options = append(options, stimulation.WithObserver(lm.journal.Record))
	}

	controller, err := stimulation.New(cfg.Stimulation.Options(), options...)
	if err != nil {
		if lm.journal != nil {
			lm.journal.Close()
		}
		return nil, err
	}
	lm.controller = controller
	lm.hub.SetStatusProvider(controller)

	return lm, nil
}

// onControllerEvent keeps the gRPC health status and system state in line
// with the controller.
func (lm *LifecycleManager) onControllerEvent(ev stimulation.Event) {
	switch ev.Type {
	case stimulation.EventInitialized, stimulation.EventReset:
		lm.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
		lm.transition(StateDegraded, StateRunning)
	case stimulation.EventShutdown, stimulation.EventResetFailed:
		lm.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
		lm.transition(StateRunning, StateDegraded)
	}
}

// Start starts the servers and initializes the controller. With servers
// running a failed Initialize leaves the system DEGRADED; without them it
// is returned.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenStimCore")
	lm.startedAt = time.Now()

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.hub.Run(hubCtx)

	if lm.config.Server.Enabled {
		if err := lm.startGRPCServer(); err != nil {
			lm.setError(err)
			return fmt.Errorf("failed to start gRPC: %w", err)
		}
		if err := lm.startRESTServer(); err != nil {
			lm.setError(err)
			return fmt.Errorf("failed to start REST API: %w", err)
		}
	}

	if err := lm.controller.Initialize(ctx); err != nil {
		if !lm.config.Server.Enabled {
			lm.setError(err)
			return err
		}
		lm.logger.Error("Stimulator initialization failed, serving in degraded mode", zap.Error(err))
		lm.setState(StateDegraded)
		return nil
	}

	lm.setState(StateRunning)
	lm.logger.Info("System started successfully",
		zap.Bool("server_enabled", lm.config.Server.Enabled),
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("journal_enabled", lm.journal != nil))
	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	// 1. Stimulation zuerst stoppen
	if lm.controller.Started() {
		if err := lm.controller.StopStimulation(); err != nil {
			lm.logger.Warn("Failed to stop stimulation", zap.Error(err))
		}
	}
	if err := lm.controller.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("controller shutdown failed: %w", err))
	}

	// 2. Servers
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, lm.shutdownTimeout())
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.health.Shutdown()
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		errs = append(errs, fmt.Errorf("shutdown timeout exceeded"))
	}
	// errChan is buffered for both senders, so a late sender never blocks.
	for drained := false; !drained; {
		select {
		case err := <-errChan:
			errs = append(errs, err)
		default:
			drained = true
		}
	}

	// 3. Hub and journal last so the shutdown event is still delivered
	if lm.hubCancel != nil {
		lm.hubCancel()
	}
	if lm.journal != nil {
		if err := lm.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal close failed: %w", err))
		}
	}

	if len(errs) == 0 {
		lm.logger.Info("Graceful shutdown completed")
	}
	return errors.Join(errs...)
}

func (lm *LifecycleManager) shutdownTimeout() time.Duration {
	if lm.config.Server.ShutdownTimeout > 0 {
		return lm.config.Server.ShutdownTimeout
	}
	return 5 * time.Second
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	lm.grpcAddr = lis.Addr().String()

	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lm.grpcAddr),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config.Server.HTTPPort, lm, lm.logger.Named("rest"), lm.hub, lm.authService)
	return lm.restServer.Start()
}

// GRPCAddr and RESTAddr report the bound addresses after Start.
func (lm *LifecycleManager) GRPCAddr() string { return lm.grpcAddr }

func (lm *LifecycleManager) RESTAddr() string {
	if lm.restServer == nil {
		return ""
	}
	return lm.restServer.Addr()
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	previous := lm.currentState
	if previous == state {
		lm.stateMu.Unlock()
		return
	}
	if err := ValidateTransition(previous, state); err != nil {
		lm.stateMu.Unlock()
		lm.logger.Warn("Rejected state change", zap.Error(err))
		return
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	lm.logger.Info("System state changed",
		zap.Stringer("from", previous),
		zap.Stringer("to", state))
	lm.hub.Broadcast(websocket.NewSystemStateMessage(state.String(), previous.String()))
}

// transition moves from -> to only when the system is currently in from.
func (lm *LifecycleManager) transition(from, to SystemState) {
	if lm.State() == from {
		lm.setState(to)
	}
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{
		State:            lm.State().String(),
		Controller:       lm.controller.Status(),
		WebSocketClients: lm.hub.GetClientCount(),
		JournalDriver:    lm.config.Journal.Driver,
		StartedAt:        lm.startedAt,
	}
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Controller() *stimulation.Controller {
	return lm.controller
}

// Journal returns nil when journaling is disabled.
func (lm *LifecycleManager) Journal() interfaces.EventJournal {
	if lm.journal == nil {
		return nil
	}
	return lm.journal
}
