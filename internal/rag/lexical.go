package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/machzqcq/oslab-go/internal/osclient"
	"github.com/machzqcq/oslab-go/internal/search"
)

// LexicalRetriever implements Retriever with a plain match query. It is the
// fallback when no embedding backend is configured, so retrieval still works
// against indices that carry no vectors.
type LexicalRetriever struct {
	client       *osclient.Client
	index        string
	contentField string
	defaultTopK  int
}

// NewLexicalRetriever constructs a LexicalRetriever over index, matching
// against contentField.
func NewLexicalRetriever(client *osclient.Client, index, contentField string, defaultTopK int) (*LexicalRetriever, error) {
	if client == nil {
		return nil, fmt.Errorf("rag: client must not be nil")
	}
	if index == "" {
		return nil, fmt.Errorf("rag: index name is required")
	}
	if contentField == "" {
		contentField = "content"
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &LexicalRetriever{
		client:       client,
		index:        index,
		contentField: contentField,
		defaultTopK:  defaultTopK,
	}, nil
}

// Retrieve runs a match query against the content field and returns the
// top-k hits as documents.
func (r *LexicalRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	body := search.MatchQuery(r.contentField, query, topK)
	resp, err := r.client.Search(ctx, r.index, body, "")
	if err != nil {
		return nil, fmt.Errorf("rag: lexical search: %w", err)
	}

	docs := make([]Document, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(hit.Source, &fields); err != nil {
			return nil, fmt.Errorf("rag: decode hit %s: %w", hit.ID, err)
		}
		var content string
		if raw, ok := fields[r.contentField]; ok {
			_ = json.Unmarshal(raw, &content)
		}
		var source string
		if raw, ok := fields["source"]; ok {
			_ = json.Unmarshal(raw, &source)
		}
		docs = append(docs, Document{
			ID:      hit.ID,
			Content: content,
			Source:  source,
			Score:   hit.Score,
		})
	}
	return docs, nil
}
