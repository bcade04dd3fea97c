// Package osclient wraps the opensearch-go client with the small surface the
// rest of the toolkit needs: cluster connection from config, index management,
// ingest/search pipeline CRUD, and a raw JSON helper for plugin endpoints that
// have no typed API.
package osclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
)

// Config holds cluster connection settings.
type Config struct {
	// Addr is the cluster endpoint, e.g. https://localhost:9200.
	Addr string
	// Username and Password are basic auth credentials.
	Username string
	Password string
	// Insecure skips TLS certificate verification. The demo clusters ship
	// self-signed certificates, so ConfigFromEnv defaults this to true
	// unless OPENSEARCH_INSECURE says otherwise. It only matters for https
	// addresses.
	Insecure bool
	// Timeout bounds individual HTTP requests. Zero means 30s.
	Timeout time.Duration
}

// ConfigFromEnv builds a Config from OPENSEARCH_* environment variables.
func ConfigFromEnv() Config {
	insecure := true
	if v := os.Getenv("OPENSEARCH_INSECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			insecure = b
		}
	}
	return Config{
		Addr:     getEnvOrDefault("OPENSEARCH_ADDR", "https://localhost:9200"),
		Username: getEnvOrDefault("OPENSEARCH_USERNAME", "admin"),
		Password: os.Getenv("OPENSEARCH_PASSWORD"),
		Insecure: insecure,
	}
}

// Client is a thin wrapper around the typed opensearchapi client.
type Client struct {
	api *opensearchapi.Client
}

// New constructs a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("osclient: address is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.Addr},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.Insecure {
		osCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	api, err := opensearchapi.NewClient(opensearchapi.Config{Client: osCfg})
	if err != nil {
		return nil, fmt.Errorf("osclient: create client: %w", err)
	}
	return &Client{api: api}, nil
}

// NewFromEnv constructs a Client from OPENSEARCH_* environment variables.
func NewFromEnv() (*Client, error) {
	return New(ConfigFromEnv())
}

// API exposes the underlying typed client for callers that need the full
// surface (bulk indexer, typed search).
func (c *Client) API() *opensearchapi.Client {
	return c.api
}

// Ping verifies the cluster is reachable by fetching root info.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Info(ctx, nil); err != nil {
		return fmt.Errorf("osclient: ping: %w", err)
	}
	return nil
}

// ClusterHealth reports the cluster health status string (green/yellow/red).
func (c *Client) ClusterHealth(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.DoJSON(ctx, http.MethodGet, "/_cluster/health", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// getEnvOrDefault returns the env var value or a fallback.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
