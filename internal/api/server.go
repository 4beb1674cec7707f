package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/roomlink-core/internal/alert"
	"github.com/nerrad567/roomlink-core/internal/command"
	"github.com/nerrad567/roomlink-core/internal/device"
	"github.com/nerrad567/roomlink-core/internal/engine"
	"github.com/nerrad567/roomlink-core/internal/history"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/config"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultStaleAfter applies when Deps.StaleAfter is unset.
const defaultStaleAfter = 2 * time.Minute

// Commander sends commands to room controllers. *command.Dispatcher
// satisfies it.
type Commander interface {
	Send(deviceID string, params command.Params) (string, error)
}

// HistoryReader fetches stored sensor readings. *history.Aggregator
// satisfies it.
type HistoryReader interface {
	FetchWindow(ctx context.Context, deviceID string, limit int, w history.Window) ([]history.Record, error)
}

// SettingsStore reads and writes the user-editable alert settings.
// *settings.Store satisfies it.
type SettingsStore interface {
	Thresholds(ctx context.Context) (alert.Thresholds, error)
	SetThresholds(ctx context.Context, t alert.Thresholds) error
	AlertsEnabled(ctx context.Context) (bool, error)
	SetAlertsEnabled(ctx context.Context, enabled bool) error
}

// StatusSource reports broker connectivity and message counters.
// *engine.Engine satisfies it.
type StatusSource interface {
	Status() engine.Status
	Stats() engine.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Commands Commander
	History  HistoryReader
	Settings SettingsStore
	Status   StatusSource
	// Hub is shared with the engine, which broadcasts through it. When nil
	// the server creates and runs its own.
	Hub *Hub
	// StaleAfter is the default window for GET /devices/stale.
	StaleAfter time.Duration
	Version    string
}

// Server is the HTTP API server for RoomLink.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	registry   *device.Registry
	commands   Commander
	history    HistoryReader
	settings   SettingsStore
	status     StatusSource
	staleAfter time.Duration
	version    string
	startTime  time.Time
	now        func() time.Time

	tickets *ticketStore
	server  *http.Server
	hub     *Hub
	ownHub  bool               // true if the hub was created by New
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registry, command, history and settings services)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("history reader is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:        deps.Config,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		registry:   deps.Registry,
		commands:   deps.Commands,
		history:    deps.History,
		settings:   deps.Settings,
		status:     deps.Status,
		staleAfter: deps.StaleAfter,
		version:    deps.Version,
		startTime:  time.Now(),
		now:        time.Now,
		tickets:    newTicketStore(),
		hub:        deps.Hub,
	}
	if s.staleAfter <= 0 {
		s.staleAfter = defaultStaleAfter
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
		s.ownHub = true
	}
	return s, nil
}

// Hub returns the WebSocket hub the server delivers events through.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub if one was not injected,
// and launches the HTTP listener in a background goroutine. The server can
// be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// An injected hub is run by its owner.
	if s.ownHub {
		go s.hub.Run(srvCtx)
	}

	// Expired tickets would otherwise accumulate until used.
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (own hub, ticket cleanup)
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

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
