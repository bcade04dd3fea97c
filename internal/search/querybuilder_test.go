package search

import (
	"encoding/json"
	"testing"
)

// mustPath walks a decoded JSON structure by keys/indices, failing the test
// on a missing step.
func mustPath(t *testing.T, v any, path ...any) any {
	t.Helper()
	for _, step := range path {
		switch s := step.(type) {
		case string:
			m, ok := v.(map[string]any)
			if !ok {
				t.Fatalf("expected object at %v, got %T", step, v)
			}
			v, ok = m[s]
			if !ok {
				t.Fatalf("missing key %q", s)
			}
		case int:
			arr, ok := v.([]any)
			if !ok {
				t.Fatalf("expected array at %v, got %T", step, v)
			}
			if s >= len(arr) {
				t.Fatalf("index %d out of range (len %d)", s, len(arr))
			}
			v = arr[s]
		}
	}
	return v
}

// roundTrip normalises a query body through JSON so assertions see the same
// types the cluster would.
func roundTrip(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal query: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal query: %v", err)
	}
	return out
}

func TestAsYouTypeQuery(t *testing.T) {
	t.Parallel()

	body := roundTrip(t, AsYouTypeQuery("usb cab", []string{"name", "description"}, 10))

	should := mustPath(t, body, "query", "bool", "should").([]any)
	if len(should) != 3 {
		t.Fatalf("expected 3 should clauses, got %d", len(should))
	}

	prefix := mustPath(t, should[0], "multi_match").(map[string]any)
	if prefix["type"] != "phrase_prefix" || prefix["boost"] != 2.0 {
		t.Errorf("first clause should be boosted phrase_prefix, got %v", prefix)
	}

	fuzzy := mustPath(t, should[1], "multi_match").(map[string]any)
	if fuzzy["fuzziness"] != "AUTO" {
		t.Errorf("second clause should have AUTO fuzziness, got %v", fuzzy)
	}

	phrase := mustPath(t, should[2], "multi_match").(map[string]any)
	if phrase["type"] != "phrase" || phrase["slop"] != 2.0 {
		t.Errorf("third clause should be sloppy phrase, got %v", phrase)
	}

	pre := mustPath(t, body, "highlight", "pre_tags", 0)
	if pre != "<mark>" {
		t.Errorf("expected <mark> highlight tag, got %v", pre)
	}
}

func TestSuggestQuery(t *testing.T) {
	t.Parallel()

	body := roundTrip(t, SuggestQuery("lam", "name", 5))

	clause := mustPath(t, body, "query", "match_phrase_prefix", "name").(map[string]any)
	if clause["query"] != "lam" {
		t.Errorf("expected prefix lam, got %v", clause["query"])
	}
	src := mustPath(t, body, "_source").([]any)
	if len(src) != 1 || src[0] != "name" {
		t.Errorf("suggest should only fetch the suggestion field, got %v", src)
	}
}

func TestKNNQuery_WithFilter(t *testing.T) {
	t.Parallel()

	filters := []map[string]any{
		{"term": map[string]any{"category": "electronics"}},
	}
	body := roundTrip(t, KNNQuery("embedding", []float32{0.1, 0.2}, 5, filters))

	params := mustPath(t, body, "query", "knn", "embedding").(map[string]any)
	if params["k"] != 5.0 {
		t.Errorf("expected k=5, got %v", params["k"])
	}
	if _, ok := params["filter"]; !ok {
		t.Error("expected pre-filter inside knn clause")
	}

	noFilter := roundTrip(t, KNNQuery("embedding", []float32{0.1}, 3, nil))
	params = mustPath(t, noFilter, "query", "knn", "embedding").(map[string]any)
	if _, ok := params["filter"]; ok {
		t.Error("unexpected filter in unfiltered knn clause")
	}
}

func TestNeuralQuery(t *testing.T) {
	t.Parallel()

	body := roundTrip(t, NeuralQuery("description_embedding", "cheap cables", "embed-1", 7))

	clause := mustPath(t, body, "query", "neural", "description_embedding").(map[string]any)
	if clause["query_text"] != "cheap cables" || clause["model_id"] != "embed-1" {
		t.Errorf("unexpected neural clause: %v", clause)
	}
}

func TestHybridQuery_RRF(t *testing.T) {
	t.Parallel()

	body := roundTrip(t, HybridQuery("embedding", []float32{0.5}, 10, "description", "desk lamp", 10, true))

	should := mustPath(t, body, "query", "bool", "should").([]any)
	if len(should) != 2 {
		t.Fatalf("expected knn+match clauses, got %d", len(should))
	}
	if _, ok := should[0].(map[string]any)["knn"]; !ok {
		t.Error("first clause should be knn")
	}
	if _, ok := should[1].(map[string]any)["match"]; !ok {
		t.Error("second clause should be match")
	}
	if _, ok := mustPath(t, body, "ext").(map[string]any)["rrf"]; !ok {
		t.Error("expected ext.rrf for fused ranking")
	}

	noRRF := roundTrip(t, HybridQuery("embedding", []float32{0.5}, 10, "description", "desk lamp", 10, false))
	if _, ok := noRRF["ext"]; ok {
		t.Error("unexpected ext block without rrf")
	}
}

func TestRerankBody(t *testing.T) {
	t.Parallel()

	base := MatchQuery("description", "desk lamp", 20)
	body := roundTrip(t, RerankBody(base, "desk lamp"))

	qc := mustPath(t, body, "ext", "rerank", "query_context").(map[string]any)
	if qc["query_text"] != "desk lamp" {
		t.Errorf("unexpected rerank context: %v", qc)
	}
	// The original body must be untouched.
	if _, ok := base["ext"]; ok {
		t.Error("RerankBody mutated its input")
	}
}

func TestRerankBody_PreservesExistingExt(t *testing.T) {
	t.Parallel()

	base := HybridQuery("embedding", []float32{0.5}, 10, "description", "desk lamp", 10, true)
	body := roundTrip(t, RerankBody(base, "desk lamp"))

	if _, ok := mustPath(t, body, "ext", "rrf").(map[string]any); !ok {
		t.Error("existing ext entry lost")
	}
	qc := mustPath(t, body, "ext", "rerank", "query_context").(map[string]any)
	if qc["query_text"] != "desk lamp" {
		t.Errorf("unexpected rerank context: %v", qc)
	}
	// The caller's ext map must not gain the rerank entry.
	if _, ok := base["ext"].(map[string]any)["rerank"]; ok {
		t.Error("RerankBody mutated the input ext map")
	}
}

func TestGeoQueries(t *testing.T) {
	t.Parallel()

	dist := roundTrip(t, GeoDistanceQuery("location", 40.7128, -74.006, "5km", 10))
	filter := mustPath(t, dist, "query", "bool", "filter", 0, "geo_distance").(map[string]any)
	if filter["distance"] != "5km" {
		t.Errorf("expected 5km radius, got %v", filter["distance"])
	}
	sort := mustPath(t, dist, "sort", 0, "_geo_distance").(map[string]any)
	if sort["order"] != "asc" {
		t.Errorf("expected nearest-first sort, got %v", sort["order"])
	}

	box := roundTrip(t, GeoBoundingBoxQuery("location", 40.8, -74.1, 40.6, -73.9, 10))
	corners := mustPath(t, box, "query", "bool", "filter", 0, "geo_bounding_box", "location").(map[string]any)
	tl := corners["top_left"].(map[string]any)
	if tl["lat"] != 40.8 {
		t.Errorf("unexpected top_left: %v", tl)
	}
}
