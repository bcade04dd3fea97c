package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/machzqcq/oslab-go/internal/osclient"
	"github.com/machzqcq/oslab-go/internal/session"
	"github.com/machzqcq/oslab-go/internal/store"
)

// ---------------------------------------------------------------------------
// Test fixtures
// ---------------------------------------------------------------------------

// newTestServer builds a minimal Server for handler tests. Handlers that talk
// to the cluster additionally need a client from newClusterClient.
func newTestServer() *Server {
	return &Server{
		cfg: &Config{
			Index:          "inventory",
			SearchFields:   []string{"name", "description"},
			SuggestField:   "name",
			HistoryLimit:   20,
			MaxUploadBytes: 1 << 20,
			EmbedDimension: 8,
		},
		sessions: session.NewMemory(time.Hour),
		metrics:  newServerMetrics(prometheus.NewRegistry()),
		log:      slog.Default(),
	}
}

// newClusterClient returns an osclient.Client talking to a fake cluster.
func newClusterClient(t *testing.T, handler http.HandlerFunc) *osclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := osclient.New(osclient.Config{Addr: srv.URL})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}

// fakeHistory records Append calls and serves canned entries.
type fakeHistory struct {
	mu      sync.Mutex
	entries []store.Entry
	recent  []store.Entry
}

func (f *fakeHistory) Append(_ context.Context, e store.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, _ string, _ int) ([]store.Entry, error) {
	return f.recent, nil
}

func (f *fakeHistory) Close() error { return nil }

// searchClusterResponse is the canned _search body returned by fake clusters.
func searchClusterResponse(names ...string) map[string]any {
	hits := make([]map[string]any, 0, len(names))
	for i, name := range names {
		hits = append(hits, map[string]any{
			"_index": "inventory",
			"_id":    string(rune('a' + i)),
			"_score": 2.5 - float64(i)*0.5,
			"_source": map[string]any{
				"name":        name,
				"description": "desc of " + name,
			},
			"highlight": map[string]any{
				"name": []string{"<mark>" + name + "</mark>"},
			},
		})
	}
	return map[string]any{
		"took": 7,
		"hits": map[string]any{
			"total": map[string]any{"value": len(names), "relation": "eq"},
			"hits":  hits,
		},
	}
}

// ---------------------------------------------------------------------------
// POST /api/search
// ---------------------------------------------------------------------------

func TestHandleSearch_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.client = newClusterClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inventory/_search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["highlight"]; !ok {
			t.Error("expected highlight block in cluster query")
		}
		json.NewEncoder(w).Encode(searchClusterResponse("Wireless Mouse", "Wireless Keyboard"))
	})
	history := &fakeHistory{}
	s.history = history

	body := strings.NewReader(`{"query":"wirel"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/search", body)
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Query != "wirel" {
		t.Errorf("query echo: got %q", resp.Query)
	}
	if resp.Total != 2 || len(resp.Hits) != 2 {
		t.Fatalf("expected 2 hits, got total=%d len=%d", resp.Total, len(resp.Hits))
	}
	if resp.TookMillis != 7 {
		t.Errorf("took: expected 7, got %d", resp.TookMillis)
	}
	if resp.Hits[0].Source["name"] != "Wireless Mouse" {
		t.Errorf("first hit: got %v", resp.Hits[0].Source["name"])
	}
	if len(resp.Hits[0].Highlight["name"]) == 0 || !strings.Contains(resp.Hits[0].Highlight["name"][0], "<mark>") {
		t.Errorf("expected highlighted fragment, got %v", resp.Hits[0].Highlight)
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history.entries))
	}
	e := history.entries[0]
	if e.Index != "inventory" || e.Query != "wirel" || e.Mode != "search" || e.Hits != 2 {
		t.Errorf("unexpected history entry: %+v", e)
	}
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleSearch_ClusterDown(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.client = newClusterClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"x"}`))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/suggestions
// ---------------------------------------------------------------------------

func TestHandleSuggestions_Deduplicates(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.client = newClusterClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchClusterResponse("Desk Lamp", "Desk Lamp", "Desk Organizer"))
	})
	history := &fakeHistory{}
	s.history = history

	req := httptest.NewRequest(http.MethodPost, "/api/suggestions", strings.NewReader(`{"prefix":"desk"}`))
	w := httptest.NewRecorder()

	s.handleSuggestions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp suggestResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"Desk Lamp", "Desk Organizer"}
	if len(resp.Suggestions) != len(want) {
		t.Fatalf("expected %d suggestions, got %v", len(want), resp.Suggestions)
	}
	for i, name := range want {
		if resp.Suggestions[i] != name {
			t.Errorf("suggestion %d: expected %q, got %q", i, name, resp.Suggestions[i])
		}
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history.entries))
	}
	if e := history.entries[0]; e.Mode != "suggest" || e.Hits != 2 {
		t.Errorf("unexpected history entry: %+v", e)
	}
}

func TestHandleSuggestions_MissingPrefix(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/suggestions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	s.handleSuggestions(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/ingest and /api/ingest/commit
// ---------------------------------------------------------------------------

// multipartUpload builds a multipart body with one file field.
func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandleIngest_StagesUpload(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	csv := "name,price,stock\nLamp,19.99,12\nChair,89.00,3\n"
	body, contentType := multipartUpload(t, "products.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	s.handleIngest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ingestResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if resp.Filename != "products.csv" {
		t.Errorf("filename: got %q", resp.Filename)
	}
	if resp.Report.Rows != 2 || len(resp.Report.Columns) != 3 {
		t.Errorf("report: rows=%d columns=%d", resp.Report.Rows, len(resp.Report.Columns))
	}

	// The staged upload must be retrievable for the commit step.
	upload, err := s.sessions.Get(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("staged upload not found: %v", err)
	}
	if string(upload.Data) != csv {
		t.Error("staged bytes differ from the upload")
	}
}

func TestHandleIngest_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	body, contentType := multipartUpload(t, "notes.txt", "hello")
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	s.handleIngest(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleIngestCommit_IndexesStagedFile(t *testing.T) {
	t.Parallel()

	var bulkActions atomic.Int32
	s := newTestServer()
	s.client = newClusterClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut:
			json.NewEncoder(w).Encode(map[string]any{"acknowledged": true})
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			var items []map[string]any
			scanner := bufio.NewScanner(r.Body)
			for line := 0; scanner.Scan(); line++ {
				if line%2 == 0 {
					bulkActions.Add(1)
					items = append(items, map[string]any{"index": map[string]any{"status": 201}})
				}
			}
			json.NewEncoder(w).Encode(map[string]any{"took": 1, "errors": false, "items": items})
		default:
			json.NewEncoder(w).Encode(map[string]any{})
		}
	})

	// Stage an upload directly in the session cache.
	csv := "name,price\nLamp,19.99\nChair,89.00\n"
	body, contentType := multipartUpload(t, "products.csv", csv)
	ingestReq := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	ingestReq.Header.Set("Content-Type", contentType)
	ingestW := httptest.NewRecorder()
	s.handleIngest(ingestW, ingestReq)

	var staged ingestResponse
	if err := json.NewDecoder(ingestW.Body).Decode(&staged); err != nil {
		t.Fatalf("decode stage response: %v", err)
	}

	commit := `{"session_id":"` + staged.SessionID + `","index":"products"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/commit", strings.NewReader(commit))
	w := httptest.NewRecorder()

	s.handleIngestCommit(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ingestCommitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Index != "products" || resp.Indexed != 2 || resp.Failed != 0 {
		t.Errorf("unexpected commit result: %+v", resp)
	}
	if got := bulkActions.Load(); got != 2 {
		t.Errorf("expected 2 bulk actions, got %d", got)
	}

	// The staged upload is consumed by a successful commit.
	if _, err := s.sessions.Get(context.Background(), staged.SessionID); err != session.ErrNotFound {
		t.Errorf("expected session to be dropped, got err=%v", err)
	}
}

func TestHandleIngestCommit_UnknownSession(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	commit := `{"session_id":"nope","index":"products"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/commit", strings.NewReader(commit))
	w := httptest.NewRecorder()

	s.handleIngestCommit(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleIngestCommit_UnknownColumnOverride(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	body, contentType := multipartUpload(t, "products.csv", "name\nLamp\n")
	ingestReq := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	ingestReq.Header.Set("Content-Type", contentType)
	ingestW := httptest.NewRecorder()
	s.handleIngest(ingestW, ingestReq)

	var staged ingestResponse
	json.NewDecoder(ingestW.Body).Decode(&staged)

	commit := `{"session_id":"` + staged.SessionID + `","index":"products","columns":[{"name":"typo","type":"long"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/commit", strings.NewReader(commit))
	w := httptest.NewRecorder()

	s.handleIngestCommit(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown column override, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /api/history
// ---------------------------------------------------------------------------

func TestHandleHistory_ReturnsEntries(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.history = &fakeHistory{recent: []store.Entry{
		{Index: "inventory", Query: "lamp", Mode: "search", Hits: 4},
		{Index: "inventory", Query: "desk", Mode: "suggest", Hits: 2},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Index != "inventory" {
		t.Errorf("index: got %q", resp.Index)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].Query != "lamp" {
		t.Errorf("unexpected entries: %+v", resp.Entries)
	}
}

func TestHandleHistory_NoStore(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 0 {
		t.Errorf("expected empty history, got %+v", resp.Entries)
	}
}

// ---------------------------------------------------------------------------
// Route wiring
// ---------------------------------------------------------------------------

func TestNew_RequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, nil); err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()

	client := newClusterClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	})

	s, err := New(Deps{Client: client}, &Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.stopRL()

	if s.cfg.Index != "inventory" {
		t.Errorf("default index: got %q", s.cfg.Index)
	}
	if s.cfg.HistoryLimit != 20 {
		t.Errorf("default history limit: got %d", s.cfg.HistoryLimit)
	}
	if s.httpServer.Addr != "127.0.0.1:8080" {
		t.Errorf("default addr: got %q", s.httpServer.Addr)
	}
}
