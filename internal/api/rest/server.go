package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/api/websocket"
	"github.com/KevinKickass/OpenStimCore/internal/auth"
	"github.com/KevinKickass/OpenStimCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	listener    net.Listener
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(port int, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the port synchronously and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("Starting REST API server", zap.String("address", ln.Addr().String()))
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// WebSocket (auth via first message)
	s.router.GET("/ws/live", s.wsLiveConnection)

	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH (PUBLIC) ====================
		v1.POST("/auth/login", s.login)

		api := v1.Group("")
		api.Use(s.authService.AuthMiddleware())

		// ==================== SYSTEM ====================
		system := api.Group("/system")
		{
			system.GET("/status", auth.RequirePermission(auth.PermMonitor), s.getSystemStatus)
			system.GET("/events", auth.RequirePermission(auth.PermMonitor), s.listEvents)
			system.POST("/shutdown", auth.RequirePermission(auth.PermConfigure), s.shutdown)
			system.GET("/ws", auth.RequirePermission(auth.PermMonitor), s.wsStatus)
		}

		// ==================== STIMULATOR LIFECYCLE + STIMULATION ====================
		stim := api.Group("/stimulator")
		{
			stim.GET("/status", auth.RequirePermission(auth.PermMonitor), s.getStimulatorStatus)
			stim.GET("/mode", auth.RequirePermission(auth.PermMonitor), s.getModeValid)

			stim.POST("/initialize", auth.RequirePermission(auth.PermOperate), s.initialize)
			stim.POST("/shutdown", auth.RequirePermission(auth.PermOperate), s.shutdownStimulator)
			stim.POST("/reset", auth.RequirePermission(auth.PermOperate), s.resetRadio)
			stim.POST("/start", auth.RequirePermission(auth.PermOperate), s.startStimulation)
			stim.POST("/stop", auth.RequirePermission(auth.PermOperate), s.stopStimulation)

			stim.POST("/stimulate/normalized", auth.RequirePermission(auth.PermOperate), s.stimulateNormalized)
			stim.POST("/stimulate/mode", auth.RequirePermission(auth.PermOperate), s.stimWithMode)
			stim.POST("/stimulate/analog", auth.RequirePermission(auth.PermOperate), s.stimulateAnalog)
		}

		// ==================== CHANNELS ====================
		channels := api.Group("/channels")
		{
			channels.GET("/:alias", auth.RequirePermission(auth.PermMonitor), s.getChannel)
			channels.PATCH("/:alias", auth.RequirePermission(auth.PermConfigure), s.updateChannel)
			channels.PUT("/:alias", auth.RequirePermission(auth.PermConfigure), s.replaceChannelParams)
		}

		// ==================== PARAMS ====================
		params := api.Group("/params")
		{
			params.GET("", auth.RequirePermission(auth.PermMonitor), s.listParams)
			params.GET("/:key", auth.RequirePermission(auth.PermMonitor), s.getParam)
			params.PUT("/:key", auth.RequirePermission(auth.PermConfigure), s.setParam)
			params.POST("/save", auth.RequirePermission(auth.PermConfigure), s.saveParams)
			params.POST("/load", auth.RequirePermission(auth.PermConfigure), s.loadParams)
		}

		// ==================== CONFIG FILES ====================
		cfg := api.Group("/config")
		{
			cfg.GET("/core", auth.RequirePermission(auth.PermMonitor), s.getCoreConfig)
			cfg.GET("/model", auth.RequirePermission(auth.PermMonitor), s.getModelConfig)
			cfg.POST("/reload", auth.RequirePermission(auth.PermConfigure), s.reloadConfig)
		}

		// ==================== BASIC API ====================
		basic := api.Group("/basic")
		basic.Use(auth.RequirePermission(auth.PermConfigure))
		{
			basic.POST("/save", s.basicSave)
			basic.POST("/load", s.basicLoad)
			basic.POST("/request-configs", s.basicRequestConfigs)
			basic.POST("/waveform", s.basicUpdateWaveform)
			basic.POST("/waveform/file", s.basicLoadWaveform)
			basic.POST("/waveform/setup", s.basicWaveformSetup)
			basic.POST("/event-shape", s.basicUpdateEventShape)
			basic.POST("/ipd", s.basicUpdateIPD)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"ready":     s.lm.Controller().Ready(),
		"timestamp": time.Now().Unix(),
	})
}
