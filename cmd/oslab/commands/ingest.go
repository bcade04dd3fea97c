package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/machzqcq/oslab-go/internal/embedder"
	"github.com/machzqcq/oslab-go/internal/ingestion"
	"github.com/machzqcq/oslab-go/internal/rag"
)

// NewIngestCmd constructs the `oslab ingest` command, which bulk-loads a
// CSV or JSONL file into an index with an inferred mapping.
func NewIngestCmd() *cobra.Command {
	var index string
	var recreate bool
	var embedCols []string
	var typeOverrides []string
	var modelID string
	var pipelineID string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Bulk-load a CSV/JSONL file with an inferred mapping",
		Long: `Parse a CSV or JSONL file, infer an OpenSearch mapping from sampled
values (long, double, boolean, date, text-with-keyword), and bulk-index the
records. Columns named with --embed get a knn_vector companion field filled
either server-side (--model-id creates a text_embedding ingest pipeline) or
client-side through the EMBEDDING_* configured backend.

Examples:
  oslab ingest products.csv --index products
  oslab ingest products.csv --index products --dry-run
  oslab ingest reviews.jsonl --index reviews --embed body --model-id aVeif4oB...
  oslab ingest reviews.jsonl --index reviews --embed body   # client-side
  oslab ingest data.csv --index data --type "sku:text" --recreate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			format, err := ingestion.DetectFormat(args[0])
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer f.Close()

			records, columnNames, err := ingestion.Parse(f, format)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			columns := ingestion.InferColumns(records, columnNames)
			overrides, err := parseColumnFlags(embedCols, typeOverrides)
			if err != nil {
				return err
			}
			if len(overrides) > 0 {
				columns, err = ingestion.ApplyOverrides(columns, overrides)
				if err != nil {
					return err
				}
			}

			if dryRun {
				fmt.Printf("%s: %d records\n", args[0], len(records))
				for _, col := range columns {
					marker := ""
					if col.Embed {
						marker = "  (embed)"
					}
					fmt.Printf("  %-24s %s%s\n", col.Name, col.Type, marker)
				}
				return nil
			}

			var emb rag.Embedder
			dimension := 0
			if len(ingestion.EmbedColumns(columns)) > 0 {
				dimension = embedder.DefaultDimensions(embedder.ResolveBackend())
				if modelID != "" {
					if pipelineID == "" {
						pipelineID = index + "-embed"
					}
				} else {
					emb, err = embedder.NewFromEnv()
					if err != nil {
						return fmt.Errorf("ingest: %w", err)
					}
				}
			}

			client, err := newClient()
			if err != nil {
				return err
			}

			pipe, err := ingestion.NewPipeline(client, emb, ingestion.Config{
				Index:      index,
				Recreate:   recreate,
				PipelineID: pipelineID,
				ModelID:    modelID,
				Dimension:  dimension,
			})
			if err != nil {
				return err
			}

			result, err := pipe.Run(ctx, records, columns, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Printf("indexed %d records into %s (%d failed)\n", result.Indexed, result.Index, result.Failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "Target index name")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop an existing index of the same name first")
	cmd.Flags().StringArrayVar(&embedCols, "embed", nil, "Column to embed into a knn_vector field (repeatable)")
	cmd.Flags().StringArrayVar(&typeOverrides, "type", nil, "Column type override as column:type (repeatable)")
	cmd.Flags().StringVarP(&modelID, "model-id", "m", "", "Deployed embedding model id for server-side embedding")
	cmd.Flags().StringVar(&pipelineID, "pipeline-id", "", "Ingest pipeline id for server-side embedding (default: <index>-embed)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the inferred mapping and exit without indexing")
	_ = cmd.MarkFlagRequired("index")

	return cmd
}

// parseColumnFlags converts --embed and --type flags into column overrides.
func parseColumnFlags(embedCols, typeOverrides []string) ([]ingestion.Column, error) {
	byName := map[string]*ingestion.Column{}
	var order []string

	get := func(name string) *ingestion.Column {
		if c, ok := byName[name]; ok {
			return c
		}
		c := &ingestion.Column{Name: name}
		byName[name] = c
		order = append(order, name)
		return c
	}

	for _, name := range embedCols {
		get(name).Embed = true
	}
	for _, pair := range typeOverrides {
		name, typ, ok := strings.Cut(pair, ":")
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("ingest: malformed --type %q, want column:type", pair)
		}
		get(name).Type = ingestion.FieldType(typ)
	}

	out := make([]ingestion.Column, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}
