package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/liminal-dev/liminal-core/internal/controller"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/logging"
	"github.com/liminal-dev/liminal-core/internal/journal"
	"github.com/liminal-dev/liminal-core/internal/peripheral"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// HTTP server timeouts.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// Controller is the view of the control loop used by the handlers.
// *controller.Controller satisfies it.
type Controller interface {
	Status(ctx context.Context) (controller.StatusReport, error)
	Actuator(ctx context.Context, name string) (peripheral.ActuatorSnapshot, error)
	Sensor(ctx context.Context, name string) (peripheral.Reading, error)
	ReinitializeActuator(ctx context.Context, name string) error
	ReinitializeSensor(ctx context.Context, name string) error
}

// HealthChecker is implemented by infrastructure components that can report
// their own health (database, MQTT client, InfluxDB client).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DBStatter exposes connection pool statistics. *database.DB satisfies it.
type DBStatter interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Controller Controller
	// Journal is optional; the journal routes answer 404 without it.
	Journal journal.Repository
	// Checks are reported by /healthz by name. Optional.
	Checks map[string]HealthChecker
	// Database feeds /metrics. Optional.
	Database DBStatter
	Version  string
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	controller Controller
	journal    journal.Repository
	checks     map[string]HealthChecker
	db         DBStatter
	version    string
	startTime  time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		controller: deps.Controller,
		journal:    deps.Journal,
		checks:     deps.Checks,
		db:         deps.Database,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. A bind
// failure (port in use, etc.) is returned here rather than logged later.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to five seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s == nil || s.server == nil {
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
