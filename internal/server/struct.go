package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/machzqcq/oslab-go/internal/ingestion"
	"github.com/machzqcq/oslab-go/internal/osclient"
	"github.com/machzqcq/oslab-go/internal/rag"
	"github.com/machzqcq/oslab-go/internal/session"
	"github.com/machzqcq/oslab-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// Index is the index served by the search and suggestion endpoints
	// (default: inventory).
	Index string
	// SearchFields are the fields queried by POST /api/search
	// (default: name, name._2gram, name._3gram, description).
	SearchFields []string
	// SuggestField is the field queried by POST /api/suggestions
	// (default: name).
	SuggestField string
	// HistoryLimit caps GET /api/history responses (default: 20).
	HistoryLimit int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MaxUploadBytes caps the size of staged ingest uploads (default: 32 MiB).
	MaxUploadBytes int64
	// EmbedDimension is the knn_vector dimension used when a commit embeds
	// columns client-side (default: 768).
	EmbedDimension int
	// MetricsRegistry receives the server's Prometheus metrics. Defaults to a
	// fresh per-instance registry so unit tests stay hermetic.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Must gather from MetricsRegistry.
	MetricsGatherer prometheus.Gatherer
}

// Deps holds the runtime dependencies injected into the server.
type Deps struct {
	// Client is the OpenSearch cluster client. Required.
	Client *osclient.Client
	// Sessions stages uploads between /api/ingest and /api/ingest/commit.
	// Defaults to an in-memory cache when nil.
	Sessions session.Cache
	// History records served searches and feeds GET /api/history. Optional.
	History store.HistoryStore
	// Embedder computes client-side embeddings on commit when columns are
	// marked for embedding and no model id is supplied. Optional.
	Embedder rag.Embedder
}

// Server is the HTTP server behind `oslab serve`: instant search and
// suggestions over a configured index, the staged file-ingest flow, and the
// search history endpoint.
type Server struct {
	// cfg holds the resolved server configuration.
	cfg *Config
	// client is the OpenSearch cluster client.
	client *osclient.Client
	// sessions stages uploads between ingest and commit.
	sessions session.Cache
	// history records served searches. May be nil.
	history store.HistoryStore
	// embedder computes client-side embeddings on commit. May be nil.
	embedder rag.Embedder
	// metrics holds the per-instance Prometheus metrics.
	metrics *serverMetrics
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the (possibly partial) search text.
	Query string `json:"query"`
	// Size caps the number of hits (default: 10).
	Size int `json:"size,omitempty"`
}

// searchHit is one result row of POST /api/search.
type searchHit struct {
	// ID is the document id.
	ID string `json:"id"`
	// Score is the relevance score.
	Score float32 `json:"score"`
	// Source is the raw document.
	Source map[string]any `json:"source"`
	// Highlight maps field names to highlighted fragments.
	Highlight map[string][]string `json:"highlight,omitempty"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	// Query echoes the request query.
	Query string `json:"query"`
	// Total is the total hit count.
	Total int64 `json:"total"`
	// TookMillis is the cluster-reported latency.
	TookMillis int64 `json:"took_ms"`
	// Hits are the result rows.
	Hits []searchHit `json:"hits"`
}

// suggestRequest is the JSON body for POST /api/suggestions.
type suggestRequest struct {
	// Prefix is the typed prefix to complete.
	Prefix string `json:"prefix"`
	// Size caps the number of suggestions (default: 5).
	Size int `json:"size,omitempty"`
}

// suggestResponse is the JSON response for POST /api/suggestions.
type suggestResponse struct {
	// Suggestions are the completion candidates, deduplicated, best first.
	Suggestions []string `json:"suggestions"`
}

// ingestResponse is the JSON response for POST /api/ingest.
type ingestResponse struct {
	// SessionID identifies the staged upload for the commit call.
	SessionID string `json:"session_id"`
	// Filename echoes the uploaded filename.
	Filename string `json:"filename"`
	// Report is the inferred column report for user review.
	Report ingestion.Report `json:"report"`
}

// ingestCommitRequest is the JSON body for POST /api/ingest/commit.
type ingestCommitRequest struct {
	// SessionID identifies the staged upload.
	SessionID string `json:"session_id"`
	// Index is the target index name.
	Index string `json:"index"`
	// Recreate drops an existing index of the same name first.
	Recreate bool `json:"recreate,omitempty"`
	// Columns overrides inferred column types and marks embed columns.
	Columns []ingestion.Column `json:"columns,omitempty"`
	// ModelID selects server-side embedding through an ingest pipeline.
	ModelID string `json:"model_id,omitempty"`
}

// ingestCommitResponse is the JSON response for POST /api/ingest/commit.
type ingestCommitResponse struct {
	// Index is the index that was written.
	Index string `json:"index"`
	// PipelineID is the ingest pipeline created for server-side embedding,
	// empty otherwise.
	PipelineID string `json:"pipeline_id,omitempty"`
	// Indexed is the number of documents indexed.
	Indexed int `json:"indexed"`
	// Failed is the number of documents that failed to index.
	Failed int `json:"failed"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	// Index is the index the history belongs to.
	Index string `json:"index"`
	// Entries are the recorded searches, newest first.
	Entries []store.Entry `json:"entries"`
}
