package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/machzqcq/oslab-go/internal/osclient"
)

// newTestStore wires an OpenSearchStore to a fake cluster. The fake always
// reports the index as present so NewOpenSearchStore skips creation.
func newTestStore(t *testing.T, handler http.HandlerFunc) *OpenSearchStore {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := osclient.New(osclient.Config{Addr: srv.URL})
	if err != nil {
		t.Fatalf("osclient.New failed: %v", err)
	}
	store, err := NewOpenSearchStore(context.Background(), client, &OpenSearchConfig{
		Index:      "rag-docs",
		VectorSize: 4,
	})
	if err != nil {
		t.Fatalf("NewOpenSearchStore failed: %v", err)
	}
	return store
}

func TestOpenSearchStore_Search(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rag-docs/_search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode query: %v", err)
		}
		query, _ := body["query"].(map[string]any)
		if query["knn"] == nil {
			t.Errorf("expected knn query, got %v", query)
		}
		w.Write([]byte(`{
			"hits": {"hits": [
				{"_id": "c1", "_score": 0.91, "_source": {"content": "usb-c cable, 2m braided", "source": "products.csv", "metadata": {"category": "electronics"}}}
			]}
		}`))
	})

	docs, err := store.Search(context.Background(), []float32{0.1, 0.2, 0.3, 0.4}, 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(docs))
	}
	doc := docs[0]
	if doc.ID != "c1" || doc.Content != "usb-c cable, 2m braided" {
		t.Errorf("unexpected doc: %+v", doc)
	}
	if doc.Metadata["category"] != "electronics" {
		t.Errorf("metadata lost: %+v", doc.Metadata)
	}
	if doc.Score == 0 {
		t.Error("score not propagated")
	}
}

func TestOpenSearchStore_Upsert(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rag-docs/_bulk" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"took": 2, "errors": false,
			"items": [{"index": {"_id": "c1", "status": 201}}]
		}`))
	})

	err := store.Upsert(context.Background(),
		[]Document{{ID: "c1", Content: "usb-c cable", Source: "products.csv"}},
		[][]float32{{0.1, 0.2, 0.3, 0.4}},
	)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
}

func TestOpenSearchStore_Upsert_ItemFailure(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"took": 2, "errors": true,
			"items": [{"index": {"_id": "c1", "status": 400, "error": {
				"type": "mapper_parsing_exception",
				"reason": "failed to parse field [embedding]"
			}}}]
		}`))
	})

	err := store.Upsert(context.Background(),
		[]Document{{ID: "c1", Content: "usb-c cable"}},
		[][]float32{{0.1, 0.2, 0.3, 0.4}},
	)
	if err == nil {
		t.Fatal("expected error for rejected bulk item")
	}
	if !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Errorf("error should carry the item failure reason, got %v", err)
	}
	if !strings.Contains(err.Error(), "c1") {
		t.Errorf("error should name the document id, got %v", err)
	}
}

func TestOpenSearchStore_UpsertLengthMismatch(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	err := store.Upsert(context.Background(),
		[]Document{{ID: "a"}, {ID: "b"}},
		[][]float32{{0.1}},
	)
	if err == nil {
		t.Fatal("expected error for mismatched docs/embeddings")
	}
}

func TestNewOpenSearchStore_Validation(t *testing.T) {
	t.Parallel()

	client, err := osclient.New(osclient.Config{Addr: "http://localhost:1"})
	if err != nil {
		t.Fatalf("osclient.New failed: %v", err)
	}

	if _, err := NewOpenSearchStore(context.Background(), client, &OpenSearchConfig{VectorSize: 4}); err == nil {
		t.Error("expected error for missing index name")
	}
	if _, err := NewOpenSearchStore(context.Background(), client, &OpenSearchConfig{Index: "x"}); err == nil {
		t.Error("expected error for missing vector size")
	}
}
