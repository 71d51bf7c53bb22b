package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rockowitz/ddcwatch/internal/display"
	"github.com/rockowitz/ddcwatch/internal/history"
	"github.com/rockowitz/ddcwatch/internal/infrastructure/config"
	"github.com/rockowitz/ddcwatch/internal/infrastructure/database"
	"github.com/rockowitz/ddcwatch/internal/infrastructure/logging"
	"github.com/rockowitz/ddcwatch/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DisplaySource is the read-only view of the display registry the API needs.
type DisplaySource interface {
	ListValid() []*display.Ref
	All() []*display.Ref
	FindByNumber(n int) (*display.Ref, bool)
}

// EventSource answers event history queries.
type EventSource interface {
	ListEvents(ctx context.Context, eventType string, limit int) ([]history.EventRecord, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Displays DisplaySource
	Events   EventSource
	DB       *database.DB // optional: pool stats in /metrics
	MQTT     *mqtt.Client // optional: connection state in /metrics
	Rescan   func()       // optional: triggers an immediate hotplug check
	Version  string
}

// Server is the HTTP API server for ddcwatch.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	displays  DisplaySource
	events    EventSource
	db        *database.DB
	mqtt      *mqtt.Client
	rescan    func()
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels the hub goroutine on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Displays == nil {
		return nil, fmt.Errorf("display source is required")
	}
	// Events is optional; /api/v1/events returns 503 without it.

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		displays:  deps.Displays,
		events:    deps.Events,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		rescan:    deps.Rescan,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub, creating it if necessary.
//
// The hub exists before Start() so the caller can wire the event
// dispatcher to it during startup.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop the hub independently of the
	// parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.Hub().Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running and responsive.
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
