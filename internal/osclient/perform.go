package osclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the cluster.
type APIError struct {
	// Status is the HTTP status code.
	Status int
	// Path is the request path.
	Path string
	// Body is the raw response body, useful for surfacing plugin errors.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("opensearch returned %d for %s: %s", e.Status, e.Path, e.Body)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// DoJSON performs a raw request against the cluster and decodes the JSON
// response into out (when non-nil). body may be nil, a []byte, a string, or
// any JSON-marshalable value. Plugin endpoints such as /_plugins/_ml and
// /_search/pipeline have no typed API in opensearch-go, so everything that
// touches them funnels through here.
func (c *Client) DoJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = strings.NewReader(b)
	case io.Reader:
		reader = b
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("osclient: marshal request body for %s: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, path, reader)
	if err != nil {
		return fmt.Errorf("osclient: build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.api.Client.Perform(req)
	if err != nil {
		return fmt.Errorf("osclient: %s %s: %w", method, path, err)
	}

	// Read then close explicitly so the connection is reusable even when the
	// caller does not want the body.
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("osclient: read response for %s: %w", path, readErr)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{Status: resp.StatusCode, Path: path, Body: string(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("osclient: decode response for %s: %w", path, err)
		}
	}
	return nil
}
