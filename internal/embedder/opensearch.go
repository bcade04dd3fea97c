package embedder

import (
	"context"
	"fmt"

	"github.com/machzqcq/oslab-go/internal/mlcommons"
)

// MLCommonsEmbedder implements rag.Embedder by calling a text-embedding model
// deployed inside the OpenSearch cluster via the ML Commons predict API.
// The cluster does the inference, so no external embedding service is needed.
type MLCommonsEmbedder struct {
	// ml is the ML Commons client.
	ml *mlcommons.Client
	// modelID is the deployed embedding model id.
	modelID string
}

// NewMLCommonsEmbedder constructs an embedder over a deployed model.
func NewMLCommonsEmbedder(ml *mlcommons.Client, modelID string) *MLCommonsEmbedder {
	return &MLCommonsEmbedder{ml: ml, modelID: modelID}
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *MLCommonsEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.ml.EmbedTexts(ctx, e.modelID, texts)
	if err != nil {
		return nil, fmt.Errorf("opensearch embedder: %w", err)
	}
	return vectors, nil
}
