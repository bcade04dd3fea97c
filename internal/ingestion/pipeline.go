package ingestion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v4/opensearchutil"

	"github.com/machzqcq/oslab-go/internal/osclient"
	"github.com/machzqcq/oslab-go/internal/rag"
)

// Config holds the settings for an ingestion run.
type Config struct {
	// Index is the target index name.
	Index string

	// Recreate drops an existing index of the same name before creating it
	// with the inferred mapping.
	Recreate bool

	// PipelineID is the server-side ingest pipeline applied to every bulk
	// request. When columns are marked for embedding and ModelID is set, the
	// pipeline is created (text_embedding processor) under this id. Empty
	// means no pipeline parameter.
	PipelineID string

	// ModelID is the deployed ML Commons embedding model used by the server
	// side pipeline. Ignored when no column is marked for embedding.
	ModelID string

	// Dimension is the embedding vector length for knn_vector fields.
	Dimension int

	// BatchSize is the client-side embedding batch size. Defaults to 100.
	BatchSize int
}

// Pipeline indexes parsed records into OpenSearch. Embedding can happen
// either server-side (an ingest pipeline with a text_embedding processor,
// when cfg.ModelID is set) or client-side (an rag.Embedder filling the
// "<column>_embedding" fields before indexing). With neither configured,
// columns marked Embed are an error.
type Pipeline struct {
	client   *osclient.Client
	embedder rag.Embedder
	cfg      Config
}

// NewPipeline constructs a Pipeline. embedder may be nil when embedding is
// server-side or no column is marked for embedding.
func NewPipeline(client *osclient.Client, embedder rag.Embedder, cfg Config) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("ingestion: client must not be nil")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("ingestion: index name must not be empty")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Pipeline{client: client, embedder: embedder, cfg: cfg}, nil
}

// Result reports what an ingestion run did.
type Result struct {
	Index      string `json:"index"`
	PipelineID string `json:"pipeline_id,omitempty"`
	Indexed    int    `json:"indexed"`
	Failed     int    `json:"failed"`
}

// Run creates the target index from the column report, optionally creates
// the embedding ingest pipeline, and bulk-indexes all records. Progress is
// reported via the optional callback.
func (p *Pipeline) Run(ctx context.Context, records []Record, columns []Column, progress func(msg string)) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}

	embedCols := EmbedColumns(columns)
	serverSide := p.cfg.ModelID != "" && p.cfg.PipelineID != ""
	if len(embedCols) > 0 && !serverSide && p.embedder == nil {
		return nil, fmt.Errorf("ingestion: columns %v marked for embedding but no model id or embedder configured", embedCols)
	}

	if p.cfg.Recreate {
		exists, err := p.client.IndexExists(ctx, p.cfg.Index)
		if err != nil {
			return nil, fmt.Errorf("ingestion: check index %s: %w", p.cfg.Index, err)
		}
		if exists {
			if err := p.client.DeleteIndex(ctx, p.cfg.Index); err != nil {
				return nil, fmt.Errorf("ingestion: drop index %s: %w", p.cfg.Index, err)
			}
		}
	}

	mapping := BuildMapping(columns, p.cfg.Dimension)
	if _, err := p.client.EnsureIndex(ctx, p.cfg.Index, mapping); err != nil {
		return nil, fmt.Errorf("ingestion: create index %s: %w", p.cfg.Index, err)
	}
	progress(fmt.Sprintf("index %s ready (%d columns)", p.cfg.Index, len(columns)))

	pipelineID := ""
	if len(embedCols) > 0 && serverSide {
		pipelineID = p.cfg.PipelineID
		if err := p.createEmbeddingPipeline(ctx, pipelineID, embedCols); err != nil {
			return nil, err
		}
		progress(fmt.Sprintf("ingest pipeline %s ready (embedding %d columns)", pipelineID, len(embedCols)))
	}

	ConvertRecords(records, columns)

	if len(embedCols) > 0 && !serverSide {
		if err := p.embedRecords(ctx, records, embedCols, progress); err != nil {
			return nil, err
		}
	}

	indexed, failed, err := p.bulkIndex(ctx, records, pipelineID)
	if err != nil {
		return nil, err
	}
	progress(fmt.Sprintf("indexed %d records into %s", indexed, p.cfg.Index))

	return &Result{
		Index:      p.cfg.Index,
		PipelineID: pipelineID,
		Indexed:    indexed,
		Failed:     failed,
	}, nil
}

// createEmbeddingPipeline registers a text_embedding ingest pipeline whose
// field_map embeds each selected column into "<column>_embedding".
func (p *Pipeline) createEmbeddingPipeline(ctx context.Context, id string, embedCols []string) error {
	fieldMap := make(map[string]any, len(embedCols))
	for _, col := range embedCols {
		fieldMap[col] = col + "_embedding"
	}

	pipeline := osclient.IngestPipeline{
		Description: fmt.Sprintf("text embedding pipeline for %s", p.cfg.Index),
		Processors: []map[string]any{
			{
				"text_embedding": map[string]any{
					"model_id":  p.cfg.ModelID,
					"field_map": fieldMap,
				},
			},
		},
	}
	if err := p.client.PutIngestPipeline(ctx, id, pipeline); err != nil {
		return fmt.Errorf("ingestion: create pipeline %s: %w", id, err)
	}
	return nil
}

// embedRecords computes embeddings client-side in batches and stores them
// under "<column>_embedding" on each record.
func (p *Pipeline) embedRecords(ctx context.Context, records []Record, embedCols []string, progress func(msg string)) error {
	for _, col := range embedCols {
		target := col + "_embedding"

		for start := 0; start < len(records); start += p.cfg.BatchSize {
			end := start + p.cfg.BatchSize
			if end > len(records) {
				end = len(records)
			}
			batch := records[start:end]

			texts := make([]string, len(batch))
			for i, rec := range batch {
				texts[i] = fmt.Sprintf("%v", rec[col])
			}

			vectors, err := p.embedder.Embed(ctx, texts)
			if err != nil {
				return fmt.Errorf("ingestion: embed column %s records %d-%d: %w", col, start, end, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("ingestion: embed column %s: expected %d vectors, got %d", col, len(batch), len(vectors))
			}
			for i, rec := range batch {
				rec[target] = vectors[i]
			}
		}
		progress(fmt.Sprintf("embedded column %s (%d records)", col, len(records)))
	}
	return nil
}

// bulkIndex streams all records through a bulk indexer, optionally tagged
// with a server-side ingest pipeline.
func (p *Pipeline) bulkIndex(ctx context.Context, records []Record, pipelineID string) (indexed, failed int, err error) {
	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client:   p.client.API(),
		Index:    p.cfg.Index,
		Pipeline: pipelineID,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("ingestion: create bulk indexer: %w", err)
	}

	var (
		mu      sync.Mutex
		itemErr error
	)
	for i, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return 0, 0, fmt.Errorf("ingestion: marshal record %d: %w", i, err)
		}

		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: recordID(p.cfg.Index, i),
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
					itemErr = fmt.Errorf("ingestion: index record %s: %w", item.DocumentID, err)
				}
			},
		})
		if err != nil {
			return 0, 0, fmt.Errorf("ingestion: add record %d to bulk: %w", i, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return 0, 0, fmt.Errorf("ingestion: flush bulk indexer: %w", err)
	}
	if itemErr != nil {
		return 0, 0, itemErr
	}

	stats := bi.Stats()
	return int(stats.NumAdded - stats.NumFailed), int(stats.NumFailed), nil
}

// recordID generates a deterministic document id from the index name and
// record position, so re-running the same file updates in place instead of
// duplicating documents.
func recordID(index string, i int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", index, i)))
	return fmt.Sprintf("%x", h[:16])
}

// DocumentsFromRecords converts records into rag.Documents for vector-store
// ingestion, concatenating the given source fields as the content. Remaining
// string fields become metadata.
func DocumentsFromRecords(records []Record, index string, contentFields []string) []rag.Document {
	docs := make([]rag.Document, 0, len(records))

	content := make(map[string]bool, len(contentFields))
	for _, f := range contentFields {
		content[f] = true
	}

	for i, rec := range records {
		var parts []string
		meta := map[string]string{}
		for name, v := range rec {
			s := fmt.Sprintf("%v", v)
			if content[name] {
				continue
			}
			meta[name] = s
		}
		for _, f := range contentFields {
			if v, ok := rec[f]; ok {
				parts = append(parts, fmt.Sprintf("%v", v))
			}
		}

		docs = append(docs, rag.Document{
			ID:       recordID(index, i),
			Content:  joinNonEmpty(parts),
			Source:   index,
			Metadata: meta,
		})
	}

	return docs
}

func joinNonEmpty(parts []string) string {
	var buf bytes.Buffer
	for _, p := range parts {
		if p == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString(". ")
		}
		buf.WriteString(p)
	}
	return buf.String()
}
