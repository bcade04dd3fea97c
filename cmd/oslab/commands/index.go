package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/machzqcq/oslab-go/internal/dataset"
)

// NewIndexCmd constructs the `oslab index` command group: index lifecycle
// plus seeding the built-in demo datasets.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Create, delete, and seed indices",
	}

	cmd.AddCommand(
		newIndexCreateCmd(),
		newIndexDeleteCmd(),
		newIndexSeedCmd(),
	)

	return cmd
}

func newIndexCreateCmd() *cobra.Command {
	var bodyPath string

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create an index, optionally from a JSON mapping file",
		Long: `Create an index. Without --body the cluster defaults apply; with --body
the file (or stdin via "-") supplies the full settings/mappings payload.

Examples:
  oslab index create inventory
  oslab index create products --body mapping.json
  cat mapping.json | oslab index create products --body -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			body := map[string]any{}
			if bodyPath != "" {
				if err := readJSONFile(bodyPath, &body); err != nil {
					return err
				}
			}

			created, err := client.EnsureIndex(cmd.Context(), args[0], body)
			if err != nil {
				return fmt.Errorf("index create: %w", err)
			}
			if created {
				fmt.Printf("created index %s\n", args[0])
			} else {
				fmt.Printf("index %s already exists\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&bodyPath, "body", "b", "", "JSON file with settings/mappings (\"-\" for stdin)")

	return cmd
}

func newIndexDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [name...]",
		Short: "Delete one or more indices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.DeleteIndex(cmd.Context(), args...); err != nil {
				return fmt.Errorf("index delete: %w", err)
			}
			fmt.Printf("deleted %d index(es)\n", len(args))
			return nil
		},
	}
}

func newIndexSeedCmd() *cobra.Command {
	var index string
	var pipeline string
	var geo bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the built-in demo datasets",
		Long: `Create and populate the demo datasets: the product inventory (default)
or the geo landmark set with --geo. An ingest pipeline id can be attached
to every indexed document with --pipeline, which is how the neural-search
examples produce embeddings server-side.

Examples:
  oslab index seed
  oslab index seed --index products --pipeline products-embed
  oslab index seed --geo --index landmarks`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			if geo {
				if index == "" {
					index = "landmarks"
				}
				n, err := dataset.SeedLandmarks(cmd.Context(), client, index)
				if err != nil {
					return fmt.Errorf("index seed: %w", err)
				}
				fmt.Printf("seeded %d landmarks into %s\n", n, index)
				return nil
			}

			if index == "" {
				index = "inventory"
			}
			n, err := dataset.SeedProducts(cmd.Context(), client, index, pipeline)
			if err != nil {
				return fmt.Errorf("index seed: %w", err)
			}
			fmt.Printf("seeded %d products into %s\n", n, index)
			return nil
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "Target index (default: inventory, or landmarks with --geo)")
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Ingest pipeline applied to each document")
	cmd.Flags().BoolVar(&geo, "geo", false, "Seed the geo landmark dataset instead of products")

	return cmd
}
