// Package mlcommons drives the OpenSearch ML Commons plugin: cluster trust
// settings, connectors, model groups, model lifecycle (register, deploy,
// predict, undeploy, delete), async task polling, and agents.
//
// All calls go through the raw JSON helper in osclient since the plugin
// endpoints have no typed API in opensearch-go.
package mlcommons

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/machzqcq/oslab-go/internal/osclient"
)

// Task states reported by /_plugins/_ml/tasks.
const (
	TaskStateCompleted = "COMPLETED"
	TaskStateFailed    = "FAILED"
)

// Model deployment states reported by /_plugins/_ml/models.
const (
	ModelStateDeployed = "DEPLOYED"
	ModelStateFailed   = "FAILED"
)

// Client wraps an osclient connection with the ML Commons surface.
type Client struct {
	os *osclient.Client
}

// New returns an ML Commons client over the given cluster connection.
func New(os *osclient.Client) *Client {
	return &Client{os: os}
}

// ClusterSettings holds the ml_commons toggles the course clusters need
// before remote models work.
type ClusterSettings struct {
	// TrustedEndpoints are regexes appended to
	// plugins.ml_commons.trusted_connector_endpoints_regex.
	TrustedEndpoints []string
	// AllowNonMLNodes permits model execution on data nodes
	// (single-node demo clusters have no dedicated ML node).
	AllowNonMLNodes bool
	// EnableMemory turns on conversational memory for agents.
	EnableMemory bool
}

// ApplyClusterSettings writes persistent cluster settings for ML Commons.
func (c *Client) ApplyClusterSettings(ctx context.Context, s ClusterSettings) error {
	persistent := map[string]any{}
	if len(s.TrustedEndpoints) > 0 {
		persistent["plugins.ml_commons.trusted_connector_endpoints_regex"] = s.TrustedEndpoints
	}
	if s.AllowNonMLNodes {
		persistent["plugins.ml_commons.only_run_on_ml_node"] = false
		persistent["plugins.ml_commons.model_access_control_enabled"] = true
		persistent["plugins.ml_commons.native_memory_threshold"] = 99
	}
	if s.EnableMemory {
		persistent["plugins.ml_commons.memory_feature_enabled"] = true
		persistent["plugins.ml_commons.agent_framework_enabled"] = true
	}
	if len(persistent) == 0 {
		return nil
	}
	body := map[string]any{"persistent": persistent}
	return c.os.DoJSON(ctx, http.MethodPut, "/_cluster/settings", body, nil)
}

// modelGroupCreateResponse mirrors the plugin response.
type modelGroupCreateResponse struct {
	ModelGroupID string `json:"model_group_id"`
}

// CreateModelGroup registers a model group and returns its id.
func (c *Client) CreateModelGroup(ctx context.Context, name, description string) (string, error) {
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	var resp modelGroupCreateResponse
	if err := c.os.DoJSON(ctx, http.MethodPost, "/_plugins/_ml/model_groups/_register", body, &resp); err != nil {
		return "", fmt.Errorf("mlcommons: create model group %q: %w", name, err)
	}
	return resp.ModelGroupID, nil
}

// RegisterModel submits a model registration. The body is the full register
// payload (pretrained models carry name/version/format; remote models carry
// function_name=remote plus connector_id). When deploy is true the model is
// deployed as soon as registration completes. Returns the async task id.
func (c *Client) RegisterModel(ctx context.Context, body map[string]any, deploy bool) (string, error) {
	path := "/_plugins/_ml/models/_register"
	if deploy {
		path += "?deploy=true"
	}
	var resp struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := c.os.DoJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", fmt.Errorf("mlcommons: register model: %w", err)
	}
	return resp.TaskID, nil
}

// DeployModel deploys a registered model and returns the async task id.
func (c *Client) DeployModel(ctx context.Context, modelID string) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	path := "/_plugins/_ml/models/" + url.PathEscape(modelID) + "/_deploy"
	if err := c.os.DoJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", fmt.Errorf("mlcommons: deploy model %s: %w", modelID, err)
	}
	return resp.TaskID, nil
}

// UndeployModel unloads a deployed model from all nodes.
func (c *Client) UndeployModel(ctx context.Context, modelID string) error {
	path := "/_plugins/_ml/models/" + url.PathEscape(modelID) + "/_undeploy"
	if err := c.os.DoJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("mlcommons: undeploy model %s: %w", modelID, err)
	}
	return nil
}

// DeleteModel removes a model. The model must be undeployed first.
func (c *Client) DeleteModel(ctx context.Context, modelID string) error {
	path := "/_plugins/_ml/models/" + url.PathEscape(modelID)
	if err := c.os.DoJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("mlcommons: delete model %s: %w", modelID, err)
	}
	return nil
}

// Model is the subset of model metadata the toolkit reads.
type Model struct {
	Name         string `json:"name"`
	ModelState   string `json:"model_state"`
	ModelGroupID string `json:"model_group_id"`
	Algorithm    string `json:"algorithm"`
	Description  string `json:"description"`
}

// GetModel fetches model metadata.
func (c *Client) GetModel(ctx context.Context, modelID string) (*Model, error) {
	var m Model
	path := "/_plugins/_ml/models/" + url.PathEscape(modelID)
	if err := c.os.DoJSON(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, fmt.Errorf("mlcommons: get model %s: %w", modelID, err)
	}
	return &m, nil
}

// Task is the subset of async task state the toolkit reads.
type Task struct {
	TaskID  string         `json:"task_id"`
	State   string         `json:"state"`
	ModelID string         `json:"model_id"`
	Error   string         `json:"error"`
	Resp    map[string]any `json:"response"`
}

// GetTask fetches the state of an async ML task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var t Task
	path := "/_plugins/_ml/tasks/" + url.PathEscape(taskID)
	if err := c.os.DoJSON(ctx, http.MethodGet, path, nil, &t); err != nil {
		return nil, fmt.Errorf("mlcommons: get task %s: %w", taskID, err)
	}
	return &t, nil
}

// Predict invokes a deployed model and returns the raw prediction payload.
func (c *Client) Predict(ctx context.Context, modelID string, body any) (json.RawMessage, error) {
	var raw json.RawMessage
	path := "/_plugins/_ml/models/" + url.PathEscape(modelID) + "/_predict"
	if err := c.os.DoJSON(ctx, http.MethodPost, path, body, &raw); err != nil {
		return nil, fmt.Errorf("mlcommons: predict with model %s: %w", modelID, err)
	}
	return raw, nil
}

// EmbedTexts runs a deployed text-embedding model over texts and returns one
// vector per input, in input order.
func (c *Client) EmbedTexts(ctx context.Context, modelID string, texts []string) ([][]float32, error) {
	body := map[string]any{"text_docs": texts}
	var resp struct {
		InferenceResults []struct {
			Output []struct {
				Data []float32 `json:"data"`
			} `json:"output"`
		} `json:"inference_results"`
	}
	path := "/_plugins/_ml/_predict/text_embedding/" + url.PathEscape(modelID)
	if err := c.os.DoJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("mlcommons: embed with model %s: %w", modelID, err)
	}

	vectors := make([][]float32, 0, len(texts))
	for _, r := range resp.InferenceResults {
		for _, out := range r.Output {
			if len(out.Data) > 0 {
				vectors = append(vectors, out.Data)
			}
		}
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("mlcommons: embed returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
