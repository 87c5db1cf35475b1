package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	outpostsync "verity-health/outpost/pkg/sync"

	"verity-health/outpost/pkg/audit"
	"verity-health/outpost/pkg/config"
	"verity-health/outpost/pkg/rules"
	"verity-health/outpost/pkg/rules/engine"
	"verity-health/outpost/pkg/store"
	"verity-health/outpost/pkg/telemetry/health"
	"verity-health/outpost/pkg/telemetry/metrics"
)

// StatusProvider serves the aggregate node status. The sync
// orchestrator satisfies this.
type StatusProvider interface {
	Status(ctx context.Context) (*outpostsync.Status, error)
}

// Reloader forces a full rule resync. The rule distribution client
// satisfies this.
type Reloader interface {
	ForceReload(ctx context.Context) error
}

// EventStore is the slice of the store the handlers write to.
type EventStore interface {
	SaveAssuranceEvent(ctx context.Context, event *store.AssuranceEvent) error
	RecordDecision(ctx context.Context, id, decision string, override bool, reason string) error
	SaveHumanFeedback(ctx context.Context, feedback *store.HumanFeedback) error
}

// Deps bundles everything the server needs. Recorder, Metrics and
// Health may be nil.
type Deps struct {
	Holder    *rules.SnapshotHolder
	Evaluator *engine.Evaluator
	Store     EventStore
	Recorder  *audit.Recorder
	Status    StatusProvider
	Reloader  Reloader
	Metrics   *metrics.Collector
	Health    *health.Checker
}

// Server is the local HTTP API for the point-of-care integration.
type Server struct {
	config *config.ServerConfig

	holder    *rules.SnapshotHolder
	evaluator *engine.Evaluator
	store     EventStore
	recorder  *audit.Recorder
	status    StatusProvider
	reloader  Reloader
	metrics   *metrics.Collector
	health    *health.Checker

	metricsPath string

	httpServer   *http.Server
	shutdownOnce sync.Once
	logger       *slog.Logger
}

// New creates a server. metricsPath is where the Prometheus handler is
// mounted when metrics are enabled.
func New(cfg *config.ServerConfig, metricsPath string, deps Deps) *Server {
	return &Server{
		config:      cfg,
		holder:      deps.Holder,
		evaluator:   deps.Evaluator,
		store:       deps.Store,
		recorder:    deps.Recorder,
		status:      deps.Status,
		reloader:    deps.Reloader,
		metrics:     deps.Metrics,
		health:      deps.Health,
		metricsPath: metricsPath,
		logger:      slog.Default().With("component", "server"),
	}
}

// Handler assembles the route table and middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/decisions", s.handleDecision)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/sync/reload", s.handleReload)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

// Start serves until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests. Safe to call more than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.httpServer == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		s.logger.Info("http server shutting down")
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("http server shutdown: %w", shutdownErr)
		}
	})
	return err
}
