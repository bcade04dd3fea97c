package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/machzqcq/oslab-go/internal/osclient"
)

// NewPipelineCmd constructs the `oslab pipeline` command group covering both
// ingest pipelines (document processors) and search pipelines (request and
// response processors such as normalization-processor and rerank).
func NewPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage ingest and search pipelines",
	}

	ingest := &cobra.Command{
		Use:   "ingest",
		Short: "Manage ingest pipelines",
	}
	ingest.AddCommand(
		newIngestPipelineCreateCmd(),
		newIngestPipelineGetCmd(),
		newIngestPipelineDeleteCmd(),
		newIngestPipelineSimulateCmd(),
	)

	searchP := &cobra.Command{
		Use:   "search",
		Short: "Manage search pipelines",
	}
	searchP.AddCommand(
		newSearchPipelineCreateCmd(),
		newSearchPipelineGetCmd(),
		newSearchPipelineDeleteCmd(),
	)

	cmd.AddCommand(ingest, searchP)
	return cmd
}

func newIngestPipelineCreateCmd() *cobra.Command {
	var bodyPath string
	var modelID string
	var fieldMaps []string

	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create or replace an ingest pipeline",
		Long: `Create an ingest pipeline from a JSON file, or build a text_embedding
pipeline directly with --model-id and repeated --embed source:target pairs.

Examples:
  oslab pipeline ingest create my-pipeline --body pipeline.json
  oslab pipeline ingest create products-embed --model-id aVeif4oB5Vm0Tdw8zYO2 \
    --embed "description:description_embedding"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			var p osclient.IngestPipeline
			switch {
			case bodyPath != "":
				if err := readJSONFile(bodyPath, &p); err != nil {
					return err
				}
			case modelID != "":
				fieldMap, err := parseFieldMaps(fieldMaps)
				if err != nil {
					return err
				}
				p = osclient.IngestPipeline{
					Description: "text embedding pipeline " + args[0],
					Processors: []map[string]any{{
						"text_embedding": map[string]any{
							"model_id":  modelID,
							"field_map": fieldMap,
						},
					}},
				}
			default:
				return fmt.Errorf("pipeline create: either --body or --model-id is required")
			}

			if err := client.PutIngestPipeline(cmd.Context(), args[0], p); err != nil {
				return fmt.Errorf("pipeline create: %w", err)
			}
			fmt.Printf("created ingest pipeline %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&bodyPath, "body", "b", "", "JSON file with the pipeline definition (\"-\" for stdin)")
	cmd.Flags().StringVarP(&modelID, "model-id", "m", "", "Embedding model id for a text_embedding pipeline")
	cmd.Flags().StringArrayVar(&fieldMaps, "embed", nil, "source:target embedding field pair (repeatable)")

	return cmd
}

func newIngestPipelineGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show an ingest pipeline definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			pipelines, err := client.GetIngestPipeline(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("pipeline get: %w", err)
			}
			return printJSON(pipelines)
		},
	}
}

func newIngestPipelineDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an ingest pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.DeleteIngestPipeline(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("pipeline delete: %w", err)
			}
			fmt.Printf("deleted ingest pipeline %s\n", args[0])
			return nil
		},
	}
}

func newIngestPipelineSimulateCmd() *cobra.Command {
	var bodyPath string
	var docsPath string

	cmd := &cobra.Command{
		Use:   "simulate [id]",
		Short: "Run sample documents through an ingest pipeline",
		Long: `Simulate an ingest pipeline against sample documents without indexing
anything. Pass a stored pipeline id, or an inline definition with --body.
The documents file is a JSON array of _source objects.

Examples:
  oslab pipeline ingest simulate my-pipeline --docs samples.json
  oslab pipeline ingest simulate --body pipeline.json --docs samples.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			var inline *osclient.IngestPipeline
			if bodyPath != "" {
				var p osclient.IngestPipeline
				if err := readJSONFile(bodyPath, &p); err != nil {
					return err
				}
				inline = &p
			}
			if id == "" && inline == nil {
				return fmt.Errorf("pipeline simulate: a pipeline id or --body is required")
			}

			var sources []map[string]any
			if err := readJSONFile(docsPath, &sources); err != nil {
				return err
			}
			docs := make([]osclient.SimulateDoc, 0, len(sources))
			for _, src := range sources {
				docs = append(docs, osclient.SimulateDoc{Source: src})
			}

			results, err := client.SimulateIngestPipeline(cmd.Context(), id, inline, docs)
			if err != nil {
				return fmt.Errorf("pipeline simulate: %w", err)
			}
			return printJSON(results)
		},
	}

	cmd.Flags().StringVarP(&bodyPath, "body", "b", "", "JSON file with an inline pipeline definition")
	cmd.Flags().StringVarP(&docsPath, "docs", "d", "", "JSON file with an array of sample documents")
	_ = cmd.MarkFlagRequired("docs")

	return cmd
}

func newSearchPipelineCreateCmd() *cobra.Command {
	var bodyPath string

	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create or replace a search pipeline",
		Long: `Create a search pipeline from a JSON file. Search pipelines hold request
and response processors such as the normalization-processor used by hybrid
queries and the rerank processor backed by a cross-encoder model.

Example:
  oslab pipeline search create nlp-pipeline --body hybrid-norm.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var p osclient.SearchPipeline
			if err := readJSONFile(bodyPath, &p); err != nil {
				return err
			}
			if err := client.PutSearchPipeline(cmd.Context(), args[0], p); err != nil {
				return fmt.Errorf("pipeline create: %w", err)
			}
			fmt.Printf("created search pipeline %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&bodyPath, "body", "b", "", "JSON file with the pipeline definition (\"-\" for stdin)")
	_ = cmd.MarkFlagRequired("body")

	return cmd
}

func newSearchPipelineGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show a search pipeline definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			pipelines, err := client.GetSearchPipeline(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("pipeline get: %w", err)
			}
			return printJSON(pipelines)
		},
	}
}

func newSearchPipelineDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a search pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.DeleteSearchPipeline(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("pipeline delete: %w", err)
			}
			fmt.Printf("deleted search pipeline %s\n", args[0])
			return nil
		},
	}
}

// parseFieldMaps turns "source:target" pairs into a text_embedding field_map.
func parseFieldMaps(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("pipeline create: at least one --embed source:target pair is required with --model-id")
	}
	fieldMap := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		src, dst, ok := strings.Cut(pair, ":")
		if !ok || src == "" || dst == "" {
			return nil, fmt.Errorf("pipeline create: malformed --embed %q, want source:target", pair)
		}
		fieldMap[src] = dst
	}
	return fieldMap, nil
}
