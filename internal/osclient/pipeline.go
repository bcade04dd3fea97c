package osclient

import (
	"context"
	"net/http"
	"net/url"
)

// IngestPipeline is the body of an ingest pipeline definition.
// Processors are kept as loose maps: the processor catalogue is large and the
// cluster validates the shapes.
type IngestPipeline struct {
	Description string           `json:"description,omitempty"`
	Processors  []map[string]any `json:"processors"`
}

// SearchPipeline is the body of a search pipeline definition.
type SearchPipeline struct {
	Description            string           `json:"description,omitempty"`
	RequestProcessors      []map[string]any `json:"request_processors,omitempty"`
	ResponseProcessors     []map[string]any `json:"response_processors,omitempty"`
	PhaseResultsProcessors []map[string]any `json:"phase_results_processors,omitempty"`
}

// SimulateDoc is one document fed to the ingest pipeline simulator.
type SimulateDoc struct {
	Index  string         `json:"_index,omitempty"`
	ID     string         `json:"_id,omitempty"`
	Source map[string]any `json:"_source"`
}

// SimulateResult is the simulator's verdict for one document.
type SimulateResult struct {
	Doc struct {
		Source map[string]any `json:"_source"`
	} `json:"doc"`
	Error map[string]any `json:"error,omitempty"`
}

// PutIngestPipeline creates or replaces a stored ingest pipeline.
func (c *Client) PutIngestPipeline(ctx context.Context, id string, p IngestPipeline) error {
	return c.DoJSON(ctx, http.MethodPut, "/_ingest/pipeline/"+url.PathEscape(id), p, nil)
}

// GetIngestPipeline fetches a stored ingest pipeline definition.
// The response maps pipeline id to definition.
func (c *Client) GetIngestPipeline(ctx context.Context, id string) (map[string]IngestPipeline, error) {
	out := map[string]IngestPipeline{}
	if err := c.DoJSON(ctx, http.MethodGet, "/_ingest/pipeline/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteIngestPipeline removes a stored ingest pipeline.
func (c *Client) DeleteIngestPipeline(ctx context.Context, id string) error {
	return c.DoJSON(ctx, http.MethodDelete, "/_ingest/pipeline/"+url.PathEscape(id), nil, nil)
}

// SimulateIngestPipeline runs docs through a pipeline definition without
// indexing anything. Pass id to simulate a stored pipeline, or a non-nil
// inline definition to simulate an unsaved one.
func (c *Client) SimulateIngestPipeline(ctx context.Context, id string, inline *IngestPipeline, docs []SimulateDoc) ([]SimulateResult, error) {
	body := map[string]any{"docs": docs}
	path := "/_ingest/pipeline/_simulate"
	if inline != nil {
		body["pipeline"] = inline
	} else {
		path = "/_ingest/pipeline/" + url.PathEscape(id) + "/_simulate"
	}

	var out struct {
		Docs []SimulateResult `json:"docs"`
	}
	if err := c.DoJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return out.Docs, nil
}

// PutSearchPipeline creates or replaces a search pipeline.
func (c *Client) PutSearchPipeline(ctx context.Context, id string, p SearchPipeline) error {
	return c.DoJSON(ctx, http.MethodPut, "/_search/pipeline/"+url.PathEscape(id), p, nil)
}

// GetSearchPipeline fetches a search pipeline definition.
func (c *Client) GetSearchPipeline(ctx context.Context, id string) (map[string]SearchPipeline, error) {
	out := map[string]SearchPipeline{}
	if err := c.DoJSON(ctx, http.MethodGet, "/_search/pipeline/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSearchPipeline removes a search pipeline.
func (c *Client) DeleteSearchPipeline(ctx context.Context, id string) error {
	return c.DoJSON(ctx, http.MethodDelete, "/_search/pipeline/"+url.PathEscape(id), nil, nil)
}
