package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/h-mdm/hmdm-server-sub001/internal/audit"
	"github.com/h-mdm/hmdm-server-sub001/internal/device"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/config"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/logging"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/mqtt"
	"github.com/h-mdm/hmdm-server-sub001/internal/push"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultPollTimeout applies when Deps.PollTimeout is zero.
const defaultPollTimeout = 60 * time.Second

// DeviceDirectory looks devices up by ID and by number.
// *device.Registry implements it.
type DeviceDirectory interface {
	GetDevice(ctx context.Context, id int64) (*device.Device, error)
	GetDeviceByNumber(ctx context.Context, number string) (*device.Device, error)
}

// Notifier delivers notifications. *push.Service implements it.
type Notifier interface {
	NotifyDevice(ctx context.Context, deviceID int64, messageType, payload string) error
	NotifyConfigurationUpdated(ctx context.Context, configurationID int64) (int, error)
}

// Poller parks long-poll requests. *push.PollingSender implements it.
type Poller interface {
	Poll(ctx context.Context, deviceID int64, timeout time.Duration) ([]push.Message, error)
}

// BrokerStatus reports the server's own MQTT connection.
// *mqtt.ConnectionManager implements it.
type BrokerStatus interface {
	State() mqtt.State
	Endpoint() mqtt.Endpoint
}

// Pinger checks a backing store. *database.DB implements it.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Devices DeviceDirectory
	Push    Notifier
	Monitor *push.Monitor

	// Polling is nil when the long-poll transport is disabled.
	Polling     Poller
	PollTimeout time.Duration

	// Optional.
	Broker      BrokerStatus
	Database    Pinger
	Gatherer    prometheus.Gatherer
	QueueLength func() int
	Audit       audit.Repository

	Version string
}

// Server is the HTTP API server.
//
// It is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	devices     DeviceDirectory
	push        Notifier
	monitor     *push.Monitor
	polling     Poller
	pollTimeout time.Duration
	broker      BrokerStatus
	database    Pinger
	gatherer    prometheus.Gatherer
	queueLength func() int
	audit       audit.Repository
	version     string

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device directory is required")
	}
	if deps.Push == nil {
		return nil, fmt.Errorf("push service is required")
	}
	if deps.Monitor == nil {
		return nil, fmt.Errorf("push monitor is required")
	}

	pollTimeout := deps.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		devices:     deps.Devices,
		push:        deps.Push,
		monitor:     deps.Monitor,
		polling:     deps.Polling,
		pollTimeout: pollTimeout,
		broker:      deps.Broker,
		database:    deps.Database,
		gatherer:    deps.Gatherer,
		queueLength: deps.QueueLength,
		audit:       deps.Audit,
		version:     deps.Version,
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
// A bind failure (port in use) is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srv.Addr, err)
	}
	s.server = srv
	s.addr = ln.Addr()

	s.logger.Info("API server listening", "address", s.addr.String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
