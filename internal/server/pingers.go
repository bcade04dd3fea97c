package server

import (
	"context"
	"fmt"

	"github.com/machzqcq/oslab-go/internal/osclient"
	"github.com/machzqcq/oslab-go/internal/rag"
	"github.com/machzqcq/oslab-go/internal/session"
)

// OpenSearchPinger probes the OpenSearch cluster. It satisfies the Pinger
// interface and is used by GET /api/ready.
type OpenSearchPinger struct {
	// client is the cluster client to probe.
	client *osclient.Client
}

// NewOpenSearchPinger constructs an OpenSearchPinger for the given client.
func NewOpenSearchPinger(client *osclient.Client) *OpenSearchPinger {
	return &OpenSearchPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *OpenSearchPinger) Name() string { return "opensearch" }

// Ping issues a cluster ping.
// Returns nil if the cluster is reachable, or a descriptive error otherwise.
func (p *OpenSearchPinger) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// RedisPinger probes the Redis instance backing the upload-session cache.
type RedisPinger struct {
	// cache is the Redis-backed session cache to probe.
	cache *session.RedisCache
}

// NewRedisPinger constructs a RedisPinger for the given cache.
func NewRedisPinger(cache *session.RedisCache) *RedisPinger {
	return &RedisPinger{cache: cache}
}

// Name returns the dependency label used in readiness responses.
func (p *RedisPinger) Name() string { return "redis" }

// Ping issues a Redis PING through the cache's connection pool.
func (p *RedisPinger) Ping(ctx context.Context) error {
	return p.cache.Ping(ctx)
}

// EmbedderPinger probes an embedding backend by embedding a single short
// string. Kept cheap: one token of input, one vector back.
type EmbedderPinger struct {
	// embedder is the backend to probe.
	embedder rag.Embedder
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given backend.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds a single probe string and checks that a vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}
