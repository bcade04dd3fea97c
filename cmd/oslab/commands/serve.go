package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/machzqcq/oslab-go/internal/embedder"
	"github.com/machzqcq/oslab-go/internal/logging"
	"github.com/machzqcq/oslab-go/internal/server"
	"github.com/machzqcq/oslab-go/internal/session"
	"github.com/machzqcq/oslab-go/internal/store"
)

// NewServeCmd constructs the `oslab serve` command, which starts the HTTP
// demo API over the course cluster.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var index string
	var searchFields []string
	var suggestField string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the oslab HTTP demo API",
		Long: `Start the HTTP demo API on localhost.

The API exposes search-as-you-type, suggestions, CSV/JSONL upload staging
with commit, and recent search history. Staged uploads live in Redis when
REDIS_ADDR is reachable, otherwise in process memory. Search history is
persisted to SQLite (~/.oslab/history.db; override with OSLAB_HISTORY_DB,
or set it to "disabled"). Set OSLAB_API_KEY to require bearer auth on the
API routes.

Examples:
  oslab serve
  oslab serve --port 9090 --index docs
  OSLAB_API_KEY=secret oslab serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			resolveServeDefaults(cmd.Flags().Changed, &host, &port, &index)

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("serve: opensearch unreachable: %w", err)
			}

			pingers := []server.Pinger{server.NewOpenSearchPinger(client)}

			// Staged uploads go to Redis when it answers a ping, otherwise an
			// in-process cache keeps single-host demos working.
			var sessions session.Cache
			redisCache := session.NewRedis(session.ConfigFromEnv())
			if err := redisCache.Ping(ctx); err != nil {
				log.Warn("redis unreachable, staging uploads in memory", slog.Any("error", err))
				_ = redisCache.Close()
				sessions = session.NewMemory(session.DefaultTTL)
			} else {
				sessions = redisCache
				pingers = append(pingers, server.NewRedisPinger(redisCache))
				defer func() { _ = redisCache.Close() }()
				log.Info("redis session cache connected")
			}

			// Open the search history store. OSLAB_HISTORY_DB overrides the
			// default path (~/.oslab/history.db); "disabled" turns it off.
			var history store.HistoryStore
			dbPath := os.Getenv("OSLAB_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						history = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via OSLAB_HISTORY_DB=disabled")
			}

			// Client-side embeddings for ingest commits are optional; without
			// them commits fall back to server-side pipelines or plain indexing.
			deps := server.Deps{
				Client:   client,
				Sessions: sessions,
				History:  history,
			}
			dimension := 0
			if e, embErr := embedder.NewFromEnv(); embErr != nil {
				log.Warn("embedder unavailable, ingest commits will not embed client-side", slog.Any("error", embErr))
			} else {
				deps.Embedder = e
				dimension = embedder.DefaultDimensions(embedder.ResolveBackend())
				pingers = append(pingers, server.NewEmbedderPinger(e, embedder.ResolveBackend()))
			}

			srv, err := server.New(deps, &server.Config{
				Host:           host,
				Port:           port,
				Index:          index,
				SearchFields:   searchFields,
				SuggestField:   suggestField,
				Logger:         log,
				Pingers:        pingers,
				APIKey:         os.Getenv("OSLAB_API_KEY"),
				EmbedDimension: dimension,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting",
				slog.String("index", index),
				slog.String("search_fields", strings.Join(searchFields, ",")))

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: OSLAB_SERVER_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: OSLAB_SERVER_PORT)")
	cmd.Flags().StringVar(&index, "index", "inventory", "Index served by the search endpoints (env: OSLAB_SERVER_INDEX)")
	cmd.Flags().StringSliceVar(&searchFields, "search-fields", nil, "Fields queried by /api/search (defaults to the as-you-type set)")
	cmd.Flags().StringVar(&suggestField, "suggest-field", "name", "Field behind /api/suggestions")

	return cmd
}

// resolveServeDefaults fills host, port, and index from the OSLAB_SERVER_*
// environment (which the YAML config layer populates) for any flag that was
// not set on the command line. An explicit flag always wins over env.
func resolveServeDefaults(changed func(string) bool, host *string, port *int, index *string) {
	if !changed("host") {
		if v := os.Getenv("OSLAB_SERVER_HOST"); v != "" {
			*host = v
		}
	}
	if !changed("port") {
		if v := os.Getenv("OSLAB_SERVER_PORT"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*port = n
			}
		}
	}
	if !changed("index") {
		if v := os.Getenv("OSLAB_SERVER_INDEX"); v != "" {
			*index = v
		}
	}
}
