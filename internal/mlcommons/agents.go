package mlcommons

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/avast/retry-go/v4"
)

// Agent types understood by the ML Commons agent framework.
const (
	AgentTypeFlow               = "flow"
	AgentTypeConversational     = "conversational"
	AgentTypePlanExecuteReflect = "plan_execute_and_reflect"
)

// AgentTool is one tool in an agent's toolchain.
type AgentTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	// IncludeOutput surfaces the tool's raw output in the agent response.
	IncludeOutput bool `json:"include_output_in_agent_response,omitempty"`
}

// AgentLLM binds an agent to a deployed chat model.
type AgentLLM struct {
	ModelID    string         `json:"model_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Agent is an ML Commons agent registration body.
type Agent struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	LLM         *AgentLLM      `json:"llm,omitempty"`
	Memory      map[string]any `json:"memory,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Tools       []AgentTool    `json:"tools,omitempty"`
	AppType     string         `json:"app_type,omitempty"`
}

// RegisterAgent registers an agent and returns its id.
func (c *Client) RegisterAgent(ctx context.Context, agent Agent) (string, error) {
	var resp struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.os.DoJSON(ctx, http.MethodPost, "/_plugins/_ml/agents/_register", agent, &resp); err != nil {
		return "", fmt.Errorf("mlcommons: register agent %q: %w", agent.Name, err)
	}
	return resp.AgentID, nil
}

// GetAgent fetches an agent's registration.
func (c *Client) GetAgent(ctx context.Context, agentID string) (map[string]any, error) {
	out := map[string]any{}
	path := "/_plugins/_ml/agents/" + url.PathEscape(agentID)
	if err := c.os.DoJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("mlcommons: get agent %s: %w", agentID, err)
	}
	return out, nil
}

// DeleteAgent removes an agent.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	path := "/_plugins/_ml/agents/" + url.PathEscape(agentID)
	if err := c.os.DoJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("mlcommons: delete agent %s: %w", agentID, err)
	}
	return nil
}

// AgentOutput is one named result from an agent execution.
type AgentOutput struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// executeResponse mirrors the inference_results envelope.
type executeResponse struct {
	InferenceResults []struct {
		Output []AgentOutput `json:"output"`
	} `json:"inference_results"`
}

// ExecuteAgent runs an agent synchronously and returns its tool outputs.
func (c *Client) ExecuteAgent(ctx context.Context, agentID string, params map[string]string) ([]AgentOutput, error) {
	body := map[string]any{"parameters": params}
	var resp executeResponse
	path := "/_plugins/_ml/agents/" + url.PathEscape(agentID) + "/_execute"
	if err := c.os.DoJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("mlcommons: execute agent %s: %w", agentID, err)
	}

	var outputs []AgentOutput
	for _, r := range resp.InferenceResults {
		outputs = append(outputs, r.Output...)
	}
	return outputs, nil
}

// ExecuteAgentAsync starts an agent execution and returns the task id.
// Plan-execute-reflect runs are long enough that synchronous execution
// times out on most gateways.
func (c *Client) ExecuteAgentAsync(ctx context.Context, agentID string, params map[string]string) (string, error) {
	body := map[string]any{"parameters": params}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	path := "/_plugins/_ml/agents/" + url.PathEscape(agentID) + "/_execute?async=true"
	if err := c.os.DoJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", fmt.Errorf("mlcommons: execute agent %s async: %w", agentID, err)
	}
	return resp.TaskID, nil
}

// WaitForAgentTask polls an async agent execution until it completes and
// returns the task's response payload.
func (c *Client) WaitForAgentTask(ctx context.Context, taskID string, wc WaitConfig) (map[string]any, error) {
	var result map[string]any
	err := retry.Do(func() error {
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		switch task.State {
		case TaskStateCompleted:
			result = task.Resp
			return nil
		case TaskStateFailed:
			return retry.Unrecoverable(fmt.Errorf("mlcommons: agent task %s failed: %s", taskID, task.Error))
		default:
			return fmt.Errorf("mlcommons: agent task %s still %s", taskID, task.State)
		}
	}, wc.options(ctx)...)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExtractAnswer pulls the model's final answer out of agent outputs. Remote
// model results arrive as provider-shaped JSON strings: OpenAI-style
// responses carry choices[].message.content, Ollama carries a response field.
// Anything unrecognised is returned verbatim.
func ExtractAnswer(outputs []AgentOutput) string {
	for i := len(outputs) - 1; i >= 0; i-- {
		out := outputs[i]
		if out.Result == "" {
			continue
		}

		var openAIResp struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(out.Result), &openAIResp); err == nil &&
			len(openAIResp.Choices) > 0 && openAIResp.Choices[0].Message.Content != "" {
			return openAIResp.Choices[0].Message.Content
		}

		var ollamaResp struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal([]byte(out.Result), &ollamaResp); err == nil && ollamaResp.Response != "" {
			return ollamaResp.Response
		}

		return out.Result
	}
	return ""
}

// RAGFlowAgent builds a two-step flow agent: retrieve neighbours with
// VectorDBTool, then answer with MLModelTool grounded on the tool output.
func RAGFlowAgent(name, index, embeddingField, sourceField, embeddingModelID, llmModelID string) Agent {
	return Agent{
		Name:        name,
		Type:        AgentTypeFlow,
		Description: "Retrieve context from " + index + " and answer with the LLM",
		Tools: []AgentTool{
			{
				Type: "VectorDBTool",
				Parameters: map[string]any{
					"model_id":        embeddingModelID,
					"index":           index,
					"embedding_field": embeddingField,
					"source_field":    []string{sourceField},
					"input":           "${parameters.question}",
				},
			},
			{
				Type: "MLModelTool",
				Parameters: map[string]any{
					"model_id": llmModelID,
					"messages": `[{"role":"system","content":"You are a helpful assistant. Answer using only the provided context."},{"role":"user","content":"Context:\n${parameters.VectorDBTool.output}\n\nQuestion: ${parameters.question}"}]`,
				},
			},
		},
	}
}

// PlanExecuteReflectAgent builds a plan-execute-reflect agent armed with the
// cluster introspection tools. The framework plans steps with the LLM,
// executes them with the tools, and re-plans from intermediate results.
func PlanExecuteReflectAgent(name, llmModelID string) Agent {
	return Agent{
		Name:        name,
		Type:        AgentTypePlanExecuteReflect,
		Description: "Plans and executes multi-step cluster analysis",
		LLM:         &AgentLLM{ModelID: llmModelID},
		Memory:      map[string]any{"type": "conversation_index"},
		Parameters:  map[string]any{"_llm_interface": "openai/v1/chat/completions"},
		Tools: []AgentTool{
			{Type: "ListIndexTool"},
			{Type: "SearchIndexTool"},
			{Type: "IndexMappingTool"},
		},
	}
}
