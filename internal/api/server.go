package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/config"
	"github.com/nerrad567/tracker-core/internal/infrastructure/logging"
	"github.com/nerrad567/tracker-core/internal/tracking"
)

const gracefulShutdownTimeout = 10 * time.Second

// Tracker is the slot query surface served by the API. *tracking.Handler
// implements it.
type Tracker interface {
	FindSlotByName(name string) (tracking.SlotHandle, bool)
	Controllers() []tracking.SlotHandle
	Trackers() []tracking.SlotHandle
	BaseStations() []tracking.SlotHandle
	HMD() tracking.SlotHandle
	CameraController() (tracking.SlotHandle, tracking.CameraControllerBinding)
	Slots() []tracking.SlotHandle
	LastStats() tracking.FrameStats
	Connected() bool
	Capacity() tracking.Capacity
	Mode() tracking.BindingMode
	Settings() tracking.Settings
	UpdateSettings(fn func(tracking.Settings) tracking.Settings) (before, after tracking.Settings)
	MotionBaseline(serial string) (tracking.Baseline, bool)
}

// HealthCheckFunc reports the health of one dependency.
type HealthCheckFunc func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Tracker Tracker

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	// HealthChecks are reported by /api/v1/health keyed by component name.
	HealthChecks map[string]HealthCheckFunc

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	tracker      Tracker
	metrics      http.Handler
	healthChecks map[string]HealthCheckFunc
	version      string
	startedAt    time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates the server and its WebSocket hub. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		tracker:      deps.Tracker,
		metrics:      deps.Metrics,
		healthChecks: deps.HealthChecks,
		version:      deps.Version,
		startedAt:    time.Now(),
		hub:          NewHub(deps.Logger),
	}
	s.hub.initial = s.initialEvent
	return s, nil
}

// Hub returns the WebSocket hub so other components can broadcast.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub and begins listening in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close stops the hub and waits up to gracefulShutdownTimeout for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
