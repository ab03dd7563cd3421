package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/perimeter-core/internal/audit"
	"github.com/nerrad567/perimeter-core/internal/auth"
	"github.com/nerrad567/perimeter-core/internal/broadcast"
	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/config"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/logging"
	"github.com/nerrad567/perimeter-core/internal/ingest"
	"github.com/nerrad567/perimeter-core/internal/metrics"
	"github.com/nerrad567/perimeter-core/internal/zone"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Gateway is the subset of *ingest.Gateway the handlers drive.
type Gateway interface {
	CreateEvent(ctx context.Context, raw ingest.RawEvent) (*event.Event, error)
	GetEvent(ctx context.Context, id string) (*ingest.EventDetail, error)
	QueryEvents(ctx context.Context, q ingest.Query) ([]event.Event, error)
	RespondToEvent(ctx context.Context, eventID string, req ingest.RespondRequest) (*event.Response, error)
	UpdateEventStatus(ctx context.Context, id, status string) (*event.Event, error)

	CreateDevice(ctx context.Context, d *device.Device) error
	UpdateDeviceStatus(ctx context.Context, id, status string) (*device.Device, error)
	ListDevices(ctx context.Context) ([]device.Device, error)

	ListZones(activeOnly bool) []zone.Zone
	CreateZone(ctx context.Context, z *zone.Zone) error
}

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (*auth.Principal, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Gateway   Gateway
	Verifier  TokenVerifier
	Observers *broadcast.Registry

	// Optional.
	Audit     *audit.Recorder
	Metrics   *metrics.Metrics
	Checks    map[string]HealthCheck
	QueueSize int
	Version   string
}

// Server is the HTTP API server for Perimeter Core.
//
// It manages the HTTP listener, routes, middleware, and observer connections.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	gateway   Gateway
	verifier  TokenVerifier
	observers *broadcast.Registry
	audit     *audit.Recorder
	metrics   *metrics.Metrics
	checks    map[string]HealthCheck
	queueSize int
	version   string

	server *http.Server

	// ctx ends observer connections on Close; Shutdown does not track
	// hijacked connections.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if deps.Observers == nil {
		return nil, fmt.Errorf("observer registry is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		verifier:  deps.Verifier,
		observers: deps.Observers,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		checks:    deps.Checks,
		queueSize: deps.QueueSize,
		version:   deps.Version,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// Cancelling ctx ends open observer connections; the listener itself is
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}
	context.AfterFunc(ctx, s.cancel)

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
// Observer connections are closed immediately; in-flight requests get up
// to 10 seconds to complete.
func (s *Server) Close() error {
	s.cancel()
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
