package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/machzqcq/oslab-go/internal/embedder"
	"github.com/machzqcq/oslab-go/internal/mlcommons"
	"github.com/machzqcq/oslab-go/internal/osclient"
	"github.com/machzqcq/oslab-go/internal/search"
)

// NewSearchCmd constructs the `oslab search` command, which runs a query
// against an index in one of the course's query modes.
func NewSearchCmd() *cobra.Command {
	var index string
	var mode string
	var size int
	var fields []string
	var vectorField string
	var textField string
	var modelID string
	var pipeline string
	var rrf bool
	var lat, lon float64
	var distance string
	var box []float64

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Query an index in lexical, suggest, neural, hybrid, rerank, or geo mode",
		Long: `Run a query against an index. Modes:

  lexical  search-as-you-type bool query with highlighting (default)
  suggest  prefix completion over a single field
  neural   knn over a query embedding from the configured embedding backend
  hybrid   knn + lexical match, optionally fused with --rrf
  rerank   lexical search re-scored by a cross-encoder search pipeline
  geo      geo_distance around --lat/--lon, or geo_bounding_box with --box

Examples:
  oslab search "wireless head" --index inventory
  oslab search wirel --index inventory --mode suggest --fields name
  oslab search "quiet keyboard" --index products --mode neural --field description_embedding
  oslab search "quiet keyboard" --index products --mode hybrid --rrf
  oslab search "good monitor" --index products --mode rerank --pipeline rerank-pipeline
  oslab search "" --index landmarks --mode geo --lat 40.78 --lon -73.97 --distance 50km`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := args[0]

			client, err := newClient()
			if err != nil {
				return err
			}

			var body map[string]any
			searchPipeline := ""

			switch mode {
			case "lexical":
				if len(fields) == 0 {
					fields = []string{"name", "name._2gram", "name._3gram", "description"}
				}
				body = search.AsYouTypeQuery(query, fields, size)

			case "suggest":
				field := "name"
				if len(fields) > 0 {
					field = fields[0]
				}
				body = search.SuggestQuery(query, field, size)

			case "neural", "hybrid":
				vector, err := embedQuery(ctx, client, query, modelID)
				if err != nil {
					return err
				}
				if mode == "neural" {
					body = search.KNNQuery(vectorField, vector, size, nil)
				} else {
					body = search.HybridQuery(vectorField, vector, size, textField, query, size, rrf)
					searchPipeline = pipeline
				}

			case "rerank":
				if pipeline == "" {
					return fmt.Errorf("search: --pipeline is required in rerank mode")
				}
				if len(fields) == 0 {
					fields = []string{"description"}
				}
				body = search.RerankBody(search.MatchQuery(fields[0], query, size), query)
				searchPipeline = pipeline

			case "geo":
				field := vectorField
				if field == "" || field == "embedding" {
					field = "location"
				}
				if len(box) == 4 {
					body = search.GeoBoundingBoxQuery(field, box[0], box[1], box[2], box[3], size)
				} else {
					if distance == "" {
						return fmt.Errorf("search: geo mode needs --distance (with --lat/--lon) or --box")
					}
					body = search.GeoDistanceQuery(field, lat, lon, distance, size)
				}

			default:
				return fmt.Errorf("search: unknown mode %q", mode)
			}

			resp, err := client.Search(ctx, index, body, searchPipeline)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			fmt.Printf("%d hits in %dms\n", resp.Hits.Total.Value, resp.Took)
			for _, hit := range resp.Hits.Hits {
				var src map[string]any
				if err := json.Unmarshal(hit.Source, &src); err != nil {
					continue
				}
				fmt.Printf("  %-24s score=%.4f  %s\n", hit.ID, hit.Score, summarize(src))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "inventory", "Index to search")
	cmd.Flags().StringVarP(&mode, "mode", "m", "lexical", "Query mode: lexical, suggest, neural, hybrid, rerank, geo")
	cmd.Flags().IntVarP(&size, "size", "s", 10, "Maximum number of hits")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Fields to query (lexical/suggest/rerank)")
	cmd.Flags().StringVar(&vectorField, "field", "embedding", "knn_vector field (neural/hybrid) or geo_point field (geo)")
	cmd.Flags().StringVar(&textField, "text-field", "description", "Lexical field for the hybrid match clause")
	cmd.Flags().StringVar(&modelID, "model-id", "", "Deployed ML Commons embedding model for the query vector (default: EMBEDDING_* backend)")
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Search pipeline id (hybrid normalization or rerank)")
	cmd.Flags().BoolVar(&rrf, "rrf", false, "Fuse hybrid sub-queries with reciprocal rank fusion")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude for geo_distance")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude for geo_distance")
	cmd.Flags().StringVar(&distance, "distance", "", "Radius for geo_distance (e.g. 50km)")
	cmd.Flags().Float64SliceVar(&box, "box", nil, "Bounding box as top,left,bottom,right")

	return cmd
}

// embedQuery turns the query text into a vector, preferring a deployed ML
// Commons model when --model-id is given and falling back to the EMBEDDING_*
// configured backend otherwise.
func embedQuery(ctx context.Context, client *osclient.Client, query, modelID string) ([]float32, error) {
	if modelID != "" {
		vectors, err := mlcommons.New(client).EmbedTexts(ctx, modelID, []string{query})
		if err != nil {
			return nil, fmt.Errorf("search: embed query: %w", err)
		}
		return vectors[0], nil
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	vectors, err := emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	return vectors[0], nil
}

// summarize renders a short single-line view of a hit source.
func summarize(src map[string]any) string {
	for _, key := range []string{"name", "title", "content", "description"} {
		if v, ok := src[key].(string); ok && v != "" {
			if len(v) > 80 {
				return v[:77] + "..."
			}
			return v
		}
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return ""
	}
	s := string(raw)
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return strings.TrimSpace(s)
}
