package mlcommons

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Connector describes an ML Commons connector to a remote model API.
// Placeholders of the form ${parameters.x} and ${credential.x} are expanded
// by the plugin at predict time.
type Connector struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version"`
	Protocol    string            `json:"protocol"`
	Parameters  map[string]any    `json:"parameters,omitempty"`
	Credential  map[string]string `json:"credential,omitempty"`
	Actions     []ConnectorAction `json:"actions"`
}

// ConnectorAction is one invocable action on a connector.
type ConnectorAction struct {
	ActionType  string            `json:"action_type"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestBody string            `json:"request_body"`
}

// CreateConnector registers a connector and returns its id.
func (c *Client) CreateConnector(ctx context.Context, conn Connector) (string, error) {
	var resp struct {
		ConnectorID string `json:"connector_id"`
	}
	if err := c.os.DoJSON(ctx, http.MethodPost, "/_plugins/_ml/connectors/_create", conn, &resp); err != nil {
		return "", fmt.Errorf("mlcommons: create connector %q: %w", conn.Name, err)
	}
	return resp.ConnectorID, nil
}

// DeleteConnector removes a connector.
func (c *Client) DeleteConnector(ctx context.Context, connectorID string) error {
	path := "/_plugins/_ml/connectors/" + url.PathEscape(connectorID)
	if err := c.os.DoJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("mlcommons: delete connector %s: %w", connectorID, err)
	}
	return nil
}

// OpenAIChatConnector builds a connector for the OpenAI chat completions API.
func OpenAIChatConnector(apiKey, model string) Connector {
	return Connector{
		Name:        "openai-chat-connector",
		Description: "OpenAI chat completions",
		Version:     "1",
		Protocol:    "http",
		Parameters: map[string]any{
			"endpoint": "api.openai.com",
			"model":    model,
		},
		Credential: map[string]string{"openAI_key": apiKey},
		Actions: []ConnectorAction{{
			ActionType: "predict",
			Method:     http.MethodPost,
			URL:        "https://${parameters.endpoint}/v1/chat/completions",
			Headers: map[string]string{
				"Authorization": "Bearer ${credential.openAI_key}",
			},
			RequestBody: `{ "model": "${parameters.model}", "messages": ${parameters.messages} }`,
		}},
	}
}

// OpenAIEmbeddingConnector builds a connector for the OpenAI embeddings API.
func OpenAIEmbeddingConnector(apiKey, model string) Connector {
	return Connector{
		Name:        "openai-embedding-connector",
		Description: "OpenAI text embeddings",
		Version:     "1",
		Protocol:    "http",
		Parameters: map[string]any{
			"endpoint": "api.openai.com",
			"model":    model,
		},
		Credential: map[string]string{"openAI_key": apiKey},
		Actions: []ConnectorAction{{
			ActionType: "predict",
			Method:     http.MethodPost,
			URL:        "https://${parameters.endpoint}/v1/embeddings",
			Headers: map[string]string{
				"Authorization": "Bearer ${credential.openAI_key}",
			},
			RequestBody: `{ "input": ${parameters.input}, "model": "${parameters.model}" }`,
		}},
	}
}

// AnthropicChatConnector builds a connector for the Anthropic messages API.
func AnthropicChatConnector(apiKey, model string) Connector {
	return Connector{
		Name:        "anthropic-chat-connector",
		Description: "Anthropic messages",
		Version:     "1",
		Protocol:    "http",
		Parameters: map[string]any{
			"endpoint":    "api.anthropic.com",
			"model":       model,
			"max_tokens":  1024,
			"api_version": "2023-06-01",
		},
		Credential: map[string]string{"anthropic_key": apiKey},
		Actions: []ConnectorAction{{
			ActionType: "predict",
			Method:     http.MethodPost,
			URL:        "https://${parameters.endpoint}/v1/messages",
			Headers: map[string]string{
				"x-api-key":         "${credential.anthropic_key}",
				"anthropic-version": "${parameters.api_version}",
			},
			RequestBody: `{ "model": "${parameters.model}", "max_tokens": ${parameters.max_tokens}, "messages": ${parameters.messages} }`,
		}},
	}
}

// OllamaChatConnector builds a connector for a local Ollama endpoint.
// endpoint is host:port without scheme, e.g. "host.docker.internal:11434".
func OllamaChatConnector(endpoint, model string) Connector {
	return Connector{
		Name:        "ollama-chat-connector",
		Description: "Ollama generate API",
		Version:     "1",
		Protocol:    "http",
		Parameters: map[string]any{
			"endpoint": endpoint,
			"model":    model,
		},
		Actions: []ConnectorAction{{
			ActionType:  "predict",
			Method:      http.MethodPost,
			URL:         "http://${parameters.endpoint}/api/generate",
			RequestBody: `{ "model": "${parameters.model}", "prompt": "${parameters.prompt}", "stream": false }`,
		}},
	}
}

// DeepSeekChatConnector builds a connector for the DeepSeek chat API.
func DeepSeekChatConnector(apiKey, model string) Connector {
	return Connector{
		Name:        "deepseek-chat-connector",
		Description: "DeepSeek chat completions",
		Version:     "1",
		Protocol:    "http",
		Parameters: map[string]any{
			"endpoint": "api.deepseek.com",
			"model":    model,
		},
		Credential: map[string]string{"deepSeek_key": apiKey},
		Actions: []ConnectorAction{{
			ActionType: "predict",
			Method:     http.MethodPost,
			URL:        "https://${parameters.endpoint}/v1/chat/completions",
			Headers: map[string]string{
				"Authorization": "Bearer ${credential.deepSeek_key}",
			},
			RequestBody: `{ "model": "${parameters.model}", "messages": ${parameters.messages} }`,
		}},
	}
}
