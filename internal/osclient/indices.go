package osclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
)

// IndexExists reports whether the named index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	resp, err := c.api.Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Indices: []string{index}})
	if err != nil {
		// The typed client surfaces HEAD 404 as an error carrying the response.
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		if strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("osclient: check index %s: %w", index, err)
	}
	return resp != nil && resp.StatusCode == http.StatusOK, nil
}

// CreateIndex creates an index with the given settings/mappings body.
// body may be a map, a struct, or a raw JSON string.
func (c *Client) CreateIndex(ctx context.Context, index string, body any) error {
	raw, err := toJSON(body)
	if err != nil {
		return fmt.Errorf("osclient: marshal mapping for %s: %w", index, err)
	}
	_, err = c.api.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: index,
		Body:  bytes.NewReader(raw),
	})
	if err != nil {
		return fmt.Errorf("osclient: create index %s: %w", index, err)
	}
	return nil
}

// EnsureIndex creates the index if it does not already exist.
// Returns true if the index was created.
func (c *Client) EnsureIndex(ctx context.Context, index string, body any) (bool, error) {
	exists, err := c.IndexExists(ctx, index)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := c.CreateIndex(ctx, index, body); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteIndex removes the named indices.
func (c *Client) DeleteIndex(ctx context.Context, indices ...string) error {
	_, err := c.api.Indices.Delete(ctx, opensearchapi.IndicesDeleteReq{Indices: indices})
	if err != nil {
		return fmt.Errorf("osclient: delete indices %v: %w", indices, err)
	}
	return nil
}

// Refresh makes recent writes visible to search.
func (c *Client) Refresh(ctx context.Context, index string) error {
	return c.DoJSON(ctx, http.MethodPost, "/"+url.PathEscape(index)+"/_refresh", nil, nil)
}

// Count returns the number of documents in the index.
func (c *Client) Count(ctx context.Context, index string) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.DoJSON(ctx, http.MethodGet, "/"+url.PathEscape(index)+"/_count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// IndexDoc indexes a single document with the given id.
func (c *Client) IndexDoc(ctx context.Context, index, id string, doc any) error {
	raw, err := toJSON(doc)
	if err != nil {
		return fmt.Errorf("osclient: marshal doc %s/%s: %w", index, id, err)
	}
	path := "/" + url.PathEscape(index) + "/_doc/" + url.PathEscape(id)
	return c.DoJSON(ctx, http.MethodPut, path, raw, nil)
}

// Search executes a query body against the index. pipeline, when non-empty,
// is passed as the search_pipeline request parameter.
func (c *Client) Search(ctx context.Context, index string, body any, pipeline string) (*opensearchapi.SearchResp, error) {
	raw, err := toJSON(body)
	if err != nil {
		return nil, fmt.Errorf("osclient: marshal query for %s: %w", index, err)
	}
	path := "/" + url.PathEscape(index) + "/_search"
	if pipeline != "" {
		path += "?search_pipeline=" + url.QueryEscape(pipeline)
	}
	var resp opensearchapi.SearchResp
	if err := c.DoJSON(ctx, http.MethodPost, path, raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// toJSON marshals body unless it is already raw JSON.
func toJSON(body any) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(b)
	}
}
