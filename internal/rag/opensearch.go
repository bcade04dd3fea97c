package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v4/opensearchutil"

	"github.com/machzqcq/oslab-go/internal/osclient"
	"github.com/machzqcq/oslab-go/internal/search"
)

// OpenSearchConfig holds the index layout for an OpenSearch-backed vector store.
type OpenSearchConfig struct {
	// Index is the target index name.
	Index string

	// VectorField is the knn_vector field name (default: embedding).
	VectorField string

	// ContentField is the text field holding chunk content (default: content).
	ContentField string

	// VectorSize is the dimensionality of stored embeddings.
	VectorSize int

	// Engine is the knn engine (default: lucene).
	Engine string
}

// OpenSearchStore implements VectorStore on a knn-enabled OpenSearch index.
type OpenSearchStore struct {
	client *osclient.Client
	cfg    *OpenSearchConfig
}

// NewOpenSearchStore ensures the target index exists with a knn mapping and
// returns a ready-to-use VectorStore.
func NewOpenSearchStore(ctx context.Context, client *osclient.Client, cfg *OpenSearchConfig) (*OpenSearchStore, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("rag: index name is required")
	}
	if cfg.VectorField == "" {
		cfg.VectorField = "embedding"
	}
	if cfg.ContentField == "" {
		cfg.ContentField = "content"
	}
	if cfg.Engine == "" {
		cfg.Engine = "lucene"
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("rag: vector size must be positive")
	}

	store := &OpenSearchStore{client: client, cfg: cfg}
	if _, err := client.EnsureIndex(ctx, cfg.Index, store.mapping()); err != nil {
		return nil, err
	}
	return store, nil
}

// mapping builds the knn index body for this store's layout.
func (s *OpenSearchStore) mapping() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{"knn": true},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				s.cfg.ContentField: map[string]any{"type": "text"},
				"source":           map[string]any{"type": "keyword"},
				"metadata":         map[string]any{"type": "object", "enabled": true},
				s.cfg.VectorField: map[string]any{
					"type":      "knn_vector",
					"dimension": s.cfg.VectorSize,
					"method": map[string]any{
						"name":       "hnsw",
						"space_type": "cosinesimil",
						"engine":     s.cfg.Engine,
					},
				},
			},
		},
	}
}


// Upsert bulk-indexes documents with their pre-computed embeddings.
func (s *OpenSearchStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("rag: %d docs but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client: s.client.API(),
		Index:  s.cfg.Index,
	})
	if err != nil {
		return fmt.Errorf("rag: create bulk indexer: %w", err)
	}

	var (
		mu      sync.Mutex
		itemErr error
	)
	for i, doc := range docs {
		payload := map[string]any{
			s.cfg.ContentField: doc.Content,
			"source":           doc.Source,
			s.cfg.VectorField:  embeddings[i],
		}
		if len(doc.Metadata) > 0 {
			payload["metadata"] = doc.Metadata
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("rag: marshal doc %s: %w", doc.ID, err)
		}

		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.ID,
			Body:       bytes.NewReader(raw),
			OnFailure: func(_ context.Context, item opensearchutil.BulkIndexerItem, res opensearchapi.BulkRespItem, err error) {
				mu.Lock()
				defer mu.Unlock()
				if itemErr == nil {
					if err == nil && res.Error != nil {
						err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
					}
					if err == nil {
						err = fmt.Errorf("status %d", res.Status)
					}
					itemErr = fmt.Errorf("rag: index doc %s: %w", item.DocumentID, err)
				}
			},
		})
		if err != nil {
			return fmt.Errorf("rag: add doc %s to bulk: %w", doc.ID, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("rag: flush bulk indexer: %w", err)
	}
	if itemErr != nil {
		return itemErr
	}
	if stats := bi.Stats(); stats.NumFailed > 0 {
		return fmt.Errorf("rag: %d of %d documents failed to index", stats.NumFailed, len(docs))
	}
	return nil
}

// Search runs a knn query with the given query embedding.
func (s *OpenSearchStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	body := search.KNNQuery(s.cfg.VectorField, queryEmbedding, topK, nil)
	resp, err := s.client.Search(ctx, s.cfg.Index, body, "")
	if err != nil {
		return nil, fmt.Errorf("rag: knn search: %w", err)
	}

	docs := make([]Document, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var stored struct {
			Source   string            `json:"source"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(hit.Source, &stored); err != nil {
			return nil, fmt.Errorf("rag: decode hit %s: %w", hit.ID, err)
		}
		// The content field name is configurable, so pull it separately.
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(hit.Source, &fields); err != nil {
			return nil, fmt.Errorf("rag: decode hit %s: %w", hit.ID, err)
		}
		var content string
		if raw, ok := fields[s.cfg.ContentField]; ok {
			_ = json.Unmarshal(raw, &content)
		}
		docs = append(docs, Document{
			ID:       hit.ID,
			Content:  content,
			Source:   stored.Source,
			Metadata: stored.Metadata,
			Score:    hit.Score,
		})
	}
	return docs, nil
}

// Delete removes documents by id.
func (s *OpenSearchStore) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		path := "/" + s.cfg.Index + "/_doc/" + id
		if err := s.client.DoJSON(ctx, "DELETE", path, nil, nil); err != nil && !osclient.IsNotFound(err) {
			return fmt.Errorf("rag: delete doc %s: %w", id, err)
		}
	}
	return nil
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (s *OpenSearchStore) Close() error {
	return nil
}
