package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/schoolhub-core/internal/audit"
	"github.com/nerrad567/schoolhub-core/internal/auth"
	"github.com/nerrad567/schoolhub-core/internal/classroom"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/config"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/logging"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
// MQTT, Influx and AuditRepo are optional.
type Deps struct {
	Config        config.APIConfig
	WS            config.WebSocketConfig
	Security      config.SecurityConfig
	Logger        *logging.Logger
	Users         auth.UserRepository
	Authenticator *auth.Authenticator
	Guard         *auth.Guard
	Classrooms    classroom.Repository
	AuditRepo     audit.Repository
	MQTT          *mqtt.Client
	Influx        *influxdb.Client
	HealthChecks  map[string]HealthChecker
	Version       string
}

// HealthChecker is implemented by infrastructure clients reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP API server for SchoolHub Core.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	users      auth.UserRepository
	auth       *auth.Authenticator
	guard      *auth.Guard
	classrooms classroom.Repository
	auditRepo  audit.Repository
	mqtt       *mqtt.Client
	influx     *influxdb.Client
	checks     map[string]HealthChecker
	version    string
	startTime  time.Time

	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	limiter *ipRateLimiter
	metrics *metrics
	auditCh chan *audit.AuditLog
	cancel  context.CancelFunc
}

// New creates an API server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Users == nil || deps.Authenticator == nil || deps.Guard == nil {
		return nil, fmt.Errorf("users, authenticator and guard are required")
	}
	if deps.Classrooms == nil {
		return nil, fmt.Errorf("classroom repository is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger.With("component", "api"),
		users:      deps.Users,
		auth:       deps.Authenticator,
		guard:      deps.Guard,
		classrooms: deps.Classrooms,
		auditRepo:  deps.AuditRepo,
		mqtt:       deps.MQTT,
		influx:     deps.Influx,
		checks:     deps.HealthChecks,
		version:    deps.Version,
		startTime:  time.Now(),
		tickets:    newTicketStore(ticketTTL(deps.WS)),
		metrics:    newMetrics(),
	}
	s.hub = NewHub(s.logger)
	s.metrics.registerHub(s.hub)

	if deps.Security.RateLimit.Enabled {
		s.limiter = newIPRateLimiter(deps.Security.RateLimit.RequestsPerMinute, deps.Security.RateLimit.Burst)
	}
	if deps.AuditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	return s, nil
}

// Start runs the background workers and begins listening.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.startWorkers(srvCtx)

	if err := s.subscribeRemoteEvents(); err != nil {
		s.logger.Warn("failed to subscribe to remote events", "error", err)
	}

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
			s.logger.Info("API server starting with TLS", "address", s.server.Addr)
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

// startWorkers launches the hub, ticket and limiter sweeps and the audit
// writer. They stop when ctx is cancelled.
func (s *Server) startWorkers(ctx context.Context) {
	go s.hub.Run(ctx)
	go s.tickets.cleanLoop(ctx)
	if s.limiter != nil {
		go s.limiter.cleanLoop(ctx)
	}
	if s.auditCh != nil {
		go s.drainAuditLog(ctx)
	}
}

// Close shuts the listener down, waiting up to 10 seconds for in-flight
// requests, then stops the background workers.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
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
