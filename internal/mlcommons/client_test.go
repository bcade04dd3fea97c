package mlcommons

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func TestApplyClusterSettings(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/_cluster/settings" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Persistent map[string]any `json:"persistent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Persistent["plugins.ml_commons.trusted_connector_endpoints_regex"] == nil {
			t.Error("expected trusted endpoints regex in settings")
		}
		if body.Persistent["plugins.ml_commons.only_run_on_ml_node"] != false {
			t.Error("expected only_run_on_ml_node=false")
		}
		w.Write([]byte(`{"acknowledged":true}`))
	}))

	err := c.ApplyClusterSettings(context.Background(), ClusterSettings{
		TrustedEndpoints: []string{`^https://api\.openai\.com/.*$`},
		AllowNonMLNodes:  true,
	})
	if err != nil {
		t.Fatalf("ApplyClusterSettings failed: %v", err)
	}
}

func TestApplyClusterSettings_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty settings")
	}))

	if err := c.ApplyClusterSettings(context.Background(), ClusterSettings{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegisterModel_DeployParam(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_plugins/_ml/models/_register" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("deploy") != "true" {
			t.Error("expected deploy=true param")
		}
		w.Write([]byte(`{"task_id":"task-3","status":"CREATED"}`))
	}))

	taskID, err := c.RegisterModel(context.Background(), map[string]any{
		"name":           "huggingface/sentence-transformers/all-MiniLM-L6-v2",
		"version":        "1.0.1",
		"model_format":   "TORCH_SCRIPT",
		"model_group_id": "group-1",
	}, true)
	if err != nil {
		t.Fatalf("RegisterModel failed: %v", err)
	}
	if taskID != "task-3" {
		t.Errorf("expected task-3, got %q", taskID)
	}
}

func TestCreateConnector(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_plugins/_ml/connectors/_create" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var conn Connector
		if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if conn.Protocol != "http" || len(conn.Actions) != 1 {
			t.Errorf("unexpected connector body: %+v", conn)
		}
		if conn.Actions[0].Headers["Authorization"] != "Bearer ${credential.openAI_key}" {
			t.Errorf("credential placeholder missing: %v", conn.Actions[0].Headers)
		}
		w.Write([]byte(`{"connector_id":"conn-5"}`))
	}))

	id, err := c.CreateConnector(context.Background(), OpenAIChatConnector("sk-test", "gpt-4o-mini"))
	if err != nil {
		t.Fatalf("CreateConnector failed: %v", err)
	}
	if id != "conn-5" {
		t.Errorf("expected conn-5, got %q", id)
	}
}

func TestEmbedTexts(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_plugins/_ml/_predict/text_embedding/embed-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"inference_results": [
				{"output": [{"name":"sentence_embedding","data":[0.1,0.2]}]},
				{"output": [{"name":"sentence_embedding","data":[0.3,0.4]}]}
			]
		}`))
	}))

	vecs, err := c.EmbedTexts(context.Background(), "embed-1", []string{"usb cable", "desk lamp"})
	if err != nil {
		t.Fatalf("EmbedTexts failed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 2 {
		t.Fatalf("unexpected vector shape: %v", vecs)
	}
	if vecs[1][0] != 0.3 {
		t.Errorf("expected 0.3, got %v", vecs[1][0])
	}
}

func TestEmbedTexts_CountMismatch(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"inference_results":[{"output":[{"data":[0.1]}]}]}`))
	}))

	_, err := c.EmbedTexts(context.Background(), "embed-1", []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error when vector count mismatches input count")
	}
}
