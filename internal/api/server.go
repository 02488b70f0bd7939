package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/envio-core/internal/audit"
	"github.com/nerrad567/envio-core/internal/infrastructure/config"
	"github.com/nerrad567/envio-core/internal/infrastructure/logging"
	"github.com/nerrad567/envio-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/envio-core/internal/item"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EventPublisher publishes item events to the message bus.
// Implemented by *mqtt.Client.
type EventPublisher interface {
	PublishItemEvent(event mqtt.ItemEvent) error
	IsConnected() bool
}

// TelemetryWriter records item telemetry.
// Implemented by *influxdb.Client.
type TelemetryWriter interface {
	WriteItemMetric(itemID int64, ganancia, peso float64)
	WriteItemEvent(itemID int64, action string)
	IsConnected() bool
}

// DBStatser reports connection pool statistics. Implemented by *database.DB.
type DBStatser interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
// Only Logger and Store are required; every integration is optional.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Service   config.ServiceConfig
	Logger    *logging.Logger
	Store     *item.Store
	MQTT      EventPublisher
	Telemetry TelemetryWriter
	AuditRepo audit.Repository
	DB        DBStatser
	Version   string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	service   config.ServiceConfig
	logger    *logging.Logger
	store     *item.Store
	mqtt      EventPublisher
	telemetry TelemetryWriter
	auditRepo audit.Repository
	auditCh   chan *audit.AuditLog
	auditDone chan struct{} // closed when the audit writer has flushed
	db        DBStatser
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()

	mutateMu sync.Mutex
	eventSeq uint64
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("item store is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		service:   deps.Service,
		logger:    deps.Logger,
		store:     deps.Store,
		mqtt:      deps.MQTT,
		telemetry: deps.Telemetry,
		auditRepo: deps.AuditRepo,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}

	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and the audit writer, builds the router and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	if s.auditCh != nil {
		s.auditDone = make(chan struct{})
		go func() {
			defer close(s.auditDone)
			s.drainAuditLog(srvCtx)
		}()
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
// stops the background goroutines and waits for queued audit entries to
// be written.
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
	if s.auditDone != nil {
		<-s.auditDone
	}

	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports an error until Start has been called.
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
