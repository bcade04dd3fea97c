package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/machzqcq/oslab-go/internal/assistant"
	"github.com/machzqcq/oslab-go/internal/embedder"
	"github.com/machzqcq/oslab-go/internal/llm"
	"github.com/machzqcq/oslab-go/internal/rag"
)

// NewAskCmd constructs the `oslab ask` command: retrieval augmented answers
// over an indexed catalog, streamed to stdout.
func NewAskCmd() *cobra.Command {
	var index string
	var vectorField string
	var contentField string
	var topK int
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question over an indexed catalog",
		Long: `Answer a question with retrieval augmented generation: embed the
question, pull the nearest documents from OpenSearch, and stream an answer
from the configured chat model (MODEL_PROVIDER plus EMBEDDING_* environment
variables select the providers).

With a question argument one answer is printed and the command exits.
Without one an interactive session starts; the conversation is kept in
memory across turns, and /reset clears it.

Examples:
  oslab ask "which desks are in stock under $300?"
  oslab ask --index docs --top-k 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			chatModel, err := llm.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			client, err := newClient()
			if err != nil {
				return err
			}

			// Neural retrieval when an embedding backend is configured,
			// lexical match otherwise.
			var retriever rag.Retriever
			if emb, embErr := embedder.NewFromEnv(); embErr != nil {
				fmt.Fprintf(os.Stderr, "warning: %v, falling back to lexical retrieval\n", embErr)
				retriever, err = rag.NewLexicalRetriever(client, index, contentField, topK)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
			} else {
				store, err := rag.NewOpenSearchStore(ctx, client, &rag.OpenSearchConfig{
					Index:        index,
					VectorField:  vectorField,
					ContentField: contentField,
					VectorSize:   embedder.DefaultDimensions(embedder.ResolveBackend()),
				})
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				retriever, err = rag.NewRetriever(emb, store, topK)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
			}

			asst, err := assistant.New(&assistant.Config{
				ChatModel:        chatModel,
				Retriever:        retriever,
				TopK:             topK,
				MaxContextTokens: maxTokens,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if len(args) == 1 {
				if _, err := asst.Ask(ctx, args[0], os.Stdout); err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				fmt.Println()
				return nil
			}

			fmt.Printf("asking over index %q; /reset clears the conversation, ctrl-d exits\n", index)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if question == "/reset" {
					asst.Reset()
					fmt.Println("conversation cleared")
					continue
				}
				if _, err := asst.Ask(ctx, question, os.Stdout); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}
				fmt.Println()
			}
		},
	}

	cmd.Flags().StringVar(&index, "index", "inventory", "Index to retrieve context from")
	cmd.Flags().StringVar(&vectorField, "vector-field", "embedding", "knn_vector field name")
	cmd.Flags().StringVar(&contentField, "content-field", "content", "Text field handed to the model as context")
	cmd.Flags().IntVar(&topK, "top-k", 5, "Documents retrieved per question")
	cmd.Flags().IntVar(&maxTokens, "max-context-tokens", 0, "Token budget for prompt plus history (0 for the default)")

	return cmd
}
