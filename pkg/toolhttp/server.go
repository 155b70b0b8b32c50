package toolhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/toolkit/internal/audit"
	"github.com/harun/toolkit/internal/metrics"
	"github.com/harun/toolkit/internal/tracing"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

const tracerName = "github.com/harun/toolkit/toolhttp"

// Server exposes a tool executor over HTTP.
type Server struct {
	options   ServerOptions
	executor  *toolexecutor.Executor
	cache     *toolexecutor.MemoryCache
	fetcher   toolexecutor.Fetcher
	limiter   *RateLimiter
	metrics   *metrics.Metrics
	audit     *audit.Logger
	scheduler *cron.Cron
	server    *http.Server
	logger    zerolog.Logger
	startTime time.Time

	routesOnce   sync.Once
	routes       http.Handler
	shuttingDown atomic.Bool
	inFlightReqs sync.WaitGroup
	lifecycleMu  sync.Mutex
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics records HTTP metrics and serves GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAudit records rejected requests to the audit log.
func WithAudit(a *audit.Logger) Option {
	return func(s *Server) { s.audit = a }
}

// WithFetcher sets the fetch capability handed to tools.
func WithFetcher(f toolexecutor.Fetcher) Option {
	return func(s *Server) { s.fetcher = f }
}

// WithCache replaces the shared result cache.
func WithCache(c *toolexecutor.MemoryCache) Option {
	return func(s *Server) { s.cache = c }
}

// NewServer creates a new HTTP adapter server
func NewServer(options ServerOptions, executor *toolexecutor.Executor, logger zerolog.Logger, opts ...Option) (*Server, error) {
	if executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}

	// Set defaults
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 10 * time.Second
	}
	if options.MaxBodyBytes == 0 {
		options.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		options:   options,
		executor:  executor,
		cache:     toolexecutor.NewMemoryCache(),
		logger:    logger.With().Str("component", "toolhttp").Logger(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = toolexecutor.NewHTTPFetcher(nil)
	}
	if options.RateLimitPerMinute > 0 {
		s.limiter = NewRateLimiter(options.RateLimitPerMinute, options.RateLimitBurst)
	}

	if options.CachePurgeSchedule != "" {
		s.scheduler = cron.New()
		if _, err := s.scheduler.AddFunc(options.CachePurgeSchedule, func() { s.PurgeCache() }); err != nil {
			return nil, fmt.Errorf("invalid cache purge schedule %q: %w", options.CachePurgeSchedule, err)
		}
	}

	return s, nil
}

// Routes returns the chi router with all middleware and routes.
func (s *Server) Routes() http.Handler {
	s.routesOnce.Do(func() {
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(s.traceMiddleware)
		r.Use(s.metricsMiddleware)

		r.Get("/health", s.handleHealth)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}

		r.Group(func(r chi.Router) {
			r.Use(s.drainMiddleware)
			r.Use(s.rateLimitMiddleware)

			r.Get("/tools", s.handleListTools)
			r.Get("/tools/{name}", s.handleDescribeTool)

			r.Group(func(r chi.Router) {
				r.Use(s.bodyMiddleware)
				r.Post("/tools/execute", s.handleExecute)
				r.Post("/tools/batch", s.handleBatch)
			})
		})

		s.routes = r
	})
	return s.routes
}

// Start starts the server and blocks until it is stopped.
func (s *Server) Start() error {
	s.lifecycleMu.Lock()
	if s.server != nil {
		s.lifecycleMu.Unlock()
		return fmt.Errorf("server already started")
	}
	if s.shuttingDown.Load() {
		s.lifecycleMu.Unlock()
		return nil
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.lifecycleMu.Unlock()

	if s.scheduler != nil {
		s.scheduler.Start()
	}
	if s.metrics != nil {
		s.metrics.RegisteredToolsActive.Set(float64(s.executor.Registry().Len()))
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Int("tools", s.executor.Registry().Len()).
		Msg("Starting tool server")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start tool server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.shuttingDown.Store(true)

	s.logger.Info().Msg("Shutting down tool server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.options.ShutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.lifecycleMu.Lock()
	server := s.server
	s.lifecycleMu.Unlock()
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tool server: %w", err)
	}

	s.logger.Info().Msg("Tool server stopped")
	return nil
}

// PurgeCache clears the cache shared by remote calls.
func (s *Server) PurgeCache() int {
	n := s.cache.Clear()
	if s.metrics != nil {
		s.metrics.ToolCachePurgesTotal.Inc()
	}
	s.logger.Debug().Int("entries", n).Msg("Tool cache purged")
	return n
}

// Cache returns the cache shared by remote calls.
func (s *Server) Cache() *toolexecutor.MemoryCache {
	return s.cache
}

// newExecContext builds the context for one remote request. Remote calls
// always run server-side.
func (s *Server) newExecContext(r *http.Request) *toolexecutor.ExecutionContext {
	ctx := r.Context()
	identity := &toolexecutor.Identity{
		UserID:    tracing.GetCallerID(ctx),
		SessionID: r.Header.Get(HeaderSessionID),
	}
	return toolexecutor.NewContext(
		toolexecutor.WithServer(true),
		toolexecutor.WithCache(s.cache),
		toolexecutor.WithFetcher(s.fetcher),
		toolexecutor.WithIdentity(identity),
		toolexecutor.WithExtension("request_id", tracing.GetRequestID(ctx)),
		toolexecutor.WithExtension("run_id", tracing.GetRunID(ctx)),
	)
}
