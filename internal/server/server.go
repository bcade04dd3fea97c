// Package server implements the HTTP server behind `oslab serve`: a small
// REST API offering as-you-type search and suggestions over a demo index,
// a staged file-ingest flow, and the recorded search history.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/machzqcq/oslab-go/internal/logging"
	"github.com/machzqcq/oslab-go/internal/session"
)

// New constructs a Server from the provided dependencies and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("server: opensearch client must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Index == "" {
		cfg.Index = "inventory"
	}
	if len(cfg.SearchFields) == 0 {
		cfg.SearchFields = []string{"name", "name._2gram", "name._3gram", "description"}
	}
	if cfg.SuggestField == "" {
		cfg.SuggestField = "name"
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full bulk-ingest commit.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.EmbedDimension == 0 {
		cfg.EmbedDimension = 768
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		reg := prometheus.NewRegistry()
		cfg.MetricsRegistry = reg
		cfg.MetricsGatherer = reg
	}

	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewMemory(session.DefaultTTL)
	}

	s := &Server{
		cfg:      cfg,
		client:   deps.Client,
		sessions: sessions,
		history:  deps.History,
		embedder: deps.Embedder,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
	}

	if cfg.APIKey == "" {
		s.log.Warn("api key not configured, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// Protected routes sit behind auth and the per-IP rate limit.
	api := http.NewServeMux()
	api.HandleFunc("POST /api/search", s.instrument("search", s.handleSearch))
	api.HandleFunc("POST /api/suggestions", s.instrument("suggestions", s.handleSuggestions))
	api.HandleFunc("POST /api/ingest", s.instrument("ingest", s.handleIngest))
	api.HandleFunc("POST /api/ingest/commit", s.instrument("ingest_commit", s.handleIngestCommit))
	api.HandleFunc("GET /api/history", s.instrument("history", s.handleHistory))

	mux := http.NewServeMux()
	mux.Handle("/api/", authMiddleware(cfg.APIKey, rl.middleware(api)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", "addr", "http://"+s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// instrument wraps a handler with the per-endpoint request counter and
// latency histogram, labeled by the logical handler name rather than the
// raw URL path.
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, fmt.Sprintf("%d", rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(elapsed.Seconds())
	}
}
