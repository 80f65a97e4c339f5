package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Synchronizer is the part of *devicesync.Synchronizer the API serves.
type Synchronizer interface {
	State() devicesync.State
	Device(id string) (device.Device, bool)
	IsPending(id string) bool
	Catalog() devicesync.Catalog
	Subscribe(fn devicesync.Listener) (unsubscribe func())

	ToggleDevice(ctx context.Context, id string, on bool) error
	BatchToggle(ctx context.Context, ids []string, on bool) error
	ExecuteScene(ctx context.Context, id string) error
	ExecuteRoutine(ctx context.Context, id string) error
	RefreshNow(ctx context.Context) error
	SyncBackend(ctx context.Context) (*device.SyncReport, error)
}

// History reads the mutation journal. *journal.SQLiteRepository satisfies it.
type History interface {
	ListMutations(ctx context.Context, limit int) ([]devicesync.MutationRecord, error)
	LastSync(ctx context.Context) (devicesync.SyncRecord, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Metrics config.MetricsConfig
	Logger  *logging.Logger
	Sync    Synchronizer

	// History is optional; without it the journal routes answer 503.
	History History

	// Gatherer backs the metrics endpoint. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	Version string
}

// Server is the local HTTP API for the synchronizer.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	metricsCfg  config.MetricsConfig
	logger      *logging.Logger
	sync        Synchronizer
	history     History
	gatherer    prometheus.Gatherer
	version     string
	server      *http.Server
	listener    net.Listener
	hub         *Hub
	unsubscribe func()
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sync == nil {
		return nil, fmt.Errorf("synchronizer is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:        deps.Config,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger,
		sync:       deps.Sync,
		history:    deps.History,
		gatherer:   deps.Gatherer,
		version:    deps.Version,
		hub:        NewHub(deps.WS, deps.Logger),
	}
	s.hub.snapshots = s.snapshot
	return s, nil
}

// Start binds the listener, starts the WebSocket hub and relays every
// store change to it, then serves in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	s.unsubscribe = s.sync.Subscribe(s.broadcastState)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
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

// snapshot supplies the current state to clients that just subscribed.
func (s *Server) snapshot(channel string) (any, bool) {
	if channel != ChannelStateChanged {
		return nil, false
	}
	return s.sync.State(), true
}

// broadcastState is the store listener. It runs under the store's
// notification and must not block.
func (s *Server) broadcastState(st devicesync.State) {
	s.hub.Broadcast(ChannelStateChanged, st)
}
