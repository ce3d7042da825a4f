// Package api provides the HTTP REST API and WebSocket feed for Meshboard Core.
//
// It exposes stored message queries, channel listings, device sends, and a
// real-time WebSocket stream of message batches to browser frontends.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/meshboard/meshboard-core/internal/auth"
	"github.com/meshboard/meshboard-core/internal/broadcast"
	"github.com/meshboard/meshboard-core/internal/infrastructure/config"
	"github.com/meshboard/meshboard-core/internal/infrastructure/logging"
	"github.com/meshboard/meshboard-core/internal/ingest"
	"github.com/meshboard/meshboard-core/internal/message"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceGateway is the slice of the ingest poller the API consumes: status
// snapshots for reporting, and Do for running commands against the live
// radio session without owning the connection.
type DeviceGateway interface {
	Status() ingest.Status
	Do(ctx context.Context, fn func(ctx context.Context, session ingest.Session) error) error
}

// ChannelDirectory serves the cached channel table. Lookups never touch
// the device.
type ChannelDirectory interface {
	Channels() []ingest.ChannelSnapshot
}

// StoreHealth reports message store liveness for the status endpoint.
type StoreHealth interface {
	PingLatency(ctx context.Context) (time.Duration, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Repo     message.Repository
	Device   DeviceGateway
	Channels ChannelDirectory
	Store    StoreHealth
	Hub      *broadcast.Hub
	Sink     ingest.RecordSink // optional; receives locally sent messages
	Version  string
}

// Server is the HTTP API server for Meshboard Core.
//
// It manages the HTTP listener, routes, and middleware, and bridges
// WebSocket connections onto the broadcast hub. The server is created
// with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	repo     message.Repository
	device   DeviceGateway
	channels ChannelDirectory
	store    StoreHealth
	hub      *broadcast.Hub
	sink     ingest.RecordSink
	tickets  *auth.TicketStore
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, repo, device gateway, hub)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("message repository is required")
	}
	if deps.Device == nil {
		return nil, fmt.Errorf("device gateway is required")
	}
	if deps.Channels == nil {
		return nil, fmt.Errorf("channel directory is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("broadcast hub is required")
	}
	// Store is optional; /status reports the store as down when absent.

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		repo:     deps.Repo,
		device:   deps.Device,
		channels: deps.Channels,
		store:    deps.Store,
		hub:      deps.Hub,
		sink:     deps.Sink,
		tickets:  auth.NewTicketStore(),
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The broadcast hub is owned and run by the caller; WebSocket
// upgrades attach subscriptions to it. The server can be stopped with
// Close().
//
// Parameters:
//   - ctx: Context for startup (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	if s.secCfg.Admin.PasswordHash == "" {
		s.logger.Warn("no admin password hash configured, development fallback credentials are active",
			"username", devUsername,
			"action", "set security.admin.password_hash before exposing this server")
	}

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
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections. Live WebSocket connections
// are not waited on; they end when the hub drops their subscriptions.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
