// Package session caches staged file uploads between the upload and commit
// steps of the ingest flow. The server stores the raw file bytes and the
// inferred column report under a generated session id with a TTL; the commit
// request replays the staged file into the ingestion pipeline. Redis backs
// the cache in deployments; an in-memory version backs tests and single
// process runs without Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/machzqcq/oslab-go/internal/ingestion"
)

// ErrNotFound is returned when a session id is unknown or has expired.
var ErrNotFound = errors.New("session: not found")

// DefaultTTL is how long a staged upload survives without a commit.
const DefaultTTL = 24 * time.Hour

// Upload is one staged file.
type Upload struct {
	// ID is the generated session id.
	ID string `json:"id"`
	// Filename is the original upload filename.
	Filename string `json:"filename"`
	// Format is the detected file format.
	Format ingestion.Format `json:"format"`
	// Data is the raw file content.
	Data []byte `json:"data"`
	// Report is the inferred column report shown to the user.
	Report ingestion.Report `json:"report"`
	// CreatedAt is when the upload was staged.
	CreatedAt time.Time `json:"created_at"`
}

// Cache stages uploads under generated ids with TTL expiry.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Put stores the upload and returns its generated id.
	Put(ctx context.Context, u Upload) (string, error)
	// Get retrieves a staged upload. Returns ErrNotFound when the id is
	// unknown or expired.
	Get(ctx context.Context, id string) (*Upload, error)
	// Delete removes a staged upload. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// ---
// Redis
// ---

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string
	// Password is the optional auth password.
	Password string
	// DB is the database number.
	DB int
	// TTL is the staged upload lifetime. Zero means DefaultTTL.
	TTL time.Duration
}

// ConfigFromEnv builds a RedisConfig from REDIS_* environment variables.
func ConfigFromEnv() RedisConfig {
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return RedisConfig{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}
}

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a RedisCache. The connection is lazy; use Ping to
// verify reachability at startup.
func NewRedis(cfg RedisConfig) *RedisCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl: ttl,
	}
}

// Ping verifies the Redis server is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("session: redis ping: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(id string) string {
	return "oslab:upload:" + id
}

// Put stores the upload under a new uuid with the configured TTL.
func (c *RedisCache) Put(ctx context.Context, u Upload) (string, error) {
	u.ID = uuid.NewString()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("session: marshal upload: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(u.ID), raw, c.ttl).Err(); err != nil {
		return "", fmt.Errorf("session: store upload: %w", err)
	}
	return u.ID, nil
}

// Get retrieves a staged upload by id.
func (c *RedisCache) Get(ctx context.Context, id string) (*Upload, error) {
	raw, err := c.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load upload %s: %w", id, err)
	}
	var u Upload
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("session: decode upload %s: %w", id, err)
	}
	return &u, nil
}

// Delete removes a staged upload.
func (c *RedisCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("session: delete upload %s: %w", id, err)
	}
	return nil
}

// ---
// In-memory
// ---

// MemoryCache is a Cache held in process memory. Used in tests and when no
// Redis address is configured.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	// now is swappable in tests.
	now func() time.Time
}

type memoryEntry struct {
	upload  Upload
	expires time.Time
}

// NewMemory constructs a MemoryCache. ttl zero means DefaultTTL.
func NewMemory(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

// Put stores the upload under a new uuid.
func (c *MemoryCache) Put(_ context.Context, u Upload) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	u.ID = uuid.NewString()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = c.now()
	}
	c.entries[u.ID] = memoryEntry{upload: u, expires: c.now().Add(c.ttl)}
	return u.ID, nil
}

// Get retrieves a staged upload by id, honoring expiry.
func (c *MemoryCache) Get(_ context.Context, id string) (*Upload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.now().After(e.expires) {
		delete(c.entries, id)
		return nil, ErrNotFound
	}
	u := e.upload
	return &u, nil
}

// Delete removes a staged upload.
func (c *MemoryCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}
