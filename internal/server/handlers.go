package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/machzqcq/oslab-go/internal/ingestion"
	"github.com/machzqcq/oslab-go/internal/logging"
	"github.com/machzqcq/oslab-go/internal/search"
	"github.com/machzqcq/oslab-go/internal/session"
	"github.com/machzqcq/oslab-go/internal/store"
)

// previewRows is how many sample records the upload report includes.
const previewRows = 5

// handleSearch handles POST /api/search: an as-you-type query over the
// configured index with highlighted fragments. Served searches are recorded
// in the history store when one is configured.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.Size <= 0 {
		req.Size = 10
	}

	body := search.AsYouTypeQuery(req.Query, s.cfg.SearchFields, req.Size)
	resp, err := s.client.Search(r.Context(), s.cfg.Index, body, "")
	if err != nil {
		log.Error("search failed", slog.String("query", req.Query), slog.Any("error", err))
		s.metrics.searchRequestsTotal.WithLabelValues("error").Inc()
		http.Error(w, "search failed", http.StatusBadGateway)
		return
	}

	out := searchResponse{
		Query:      req.Query,
		Total:      int64(resp.Hits.Total.Value),
		TookMillis: int64(resp.Took),
		Hits:       make([]searchHit, 0, len(resp.Hits.Hits)),
	}
	for _, hit := range resp.Hits.Hits {
		var src map[string]any
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			log.Warn("skipping undecodable hit", slog.String("id", hit.ID), slog.Any("error", err))
			continue
		}
		out.Hits = append(out.Hits, searchHit{
			ID:        hit.ID,
			Score:     hit.Score,
			Source:    src,
			Highlight: hit.Highlight,
		})
	}

	s.metrics.searchRequestsTotal.WithLabelValues("ok").Inc()
	s.recordSearch(r, store.Entry{
		Index:      s.cfg.Index,
		Query:      req.Query,
		Mode:       "search",
		TookMillis: out.TookMillis,
		Hits:       int64(len(out.Hits)),
	})

	writeJSON(w, log, out)
}

// handleSuggestions handles POST /api/suggestions: prefix completion over the
// configured suggest field, deduplicated and ordered by score.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Prefix == "" {
		http.Error(w, "prefix is required", http.StatusBadRequest)
		return
	}
	if req.Size <= 0 {
		req.Size = 5
	}

	body := search.SuggestQuery(req.Prefix, s.cfg.SuggestField, req.Size)
	resp, err := s.client.Search(r.Context(), s.cfg.Index, body, "")
	if err != nil {
		log.Error("suggest failed", slog.String("prefix", req.Prefix), slog.Any("error", err))
		s.metrics.searchRequestsTotal.WithLabelValues("error").Inc()
		http.Error(w, "suggest failed", http.StatusBadGateway)
		return
	}

	seen := make(map[string]bool, len(resp.Hits.Hits))
	out := suggestResponse{Suggestions: []string{}}
	for _, hit := range resp.Hits.Hits {
		var src map[string]any
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			continue
		}
		text, ok := src[s.cfg.SuggestField].(string)
		if !ok || text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out.Suggestions = append(out.Suggestions, text)
	}

	s.metrics.searchRequestsTotal.WithLabelValues("ok").Inc()
	s.recordSearch(r, store.Entry{
		Index:      s.cfg.Index,
		Query:      req.Prefix,
		Mode:       "suggest",
		TookMillis: int64(resp.Took),
		Hits:       int64(len(out.Suggestions)),
	})

	writeJSON(w, log, out)
}

// handleIngest handles POST /api/ingest: a multipart file upload that is
// parsed, analyzed, and staged in the session cache. Nothing touches the
// cluster until the commit call.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	format, err := ingestion.DetectFormat(header.Filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	records, columns, err := ingestion.Parse(bytes.NewReader(data), format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report := ingestion.NewReport(records, columns, previewRows)
	id, err := s.sessions.Put(r.Context(), session.Upload{
		Filename: header.Filename,
		Format:   format,
		Data:     data,
		Report:   report,
	})
	if err != nil {
		log.Error("failed to stage upload", slog.Any("error", err))
		http.Error(w, "failed to stage upload", http.StatusInternalServerError)
		return
	}

	s.metrics.ingestUploadsTotal.Inc()
	log.Info("upload staged",
		slog.String("session_id", id),
		slog.String("filename", header.Filename),
		slog.Int("rows", report.Rows),
	)

	writeJSON(w, log, ingestResponse{SessionID: id, Filename: header.Filename, Report: report})
}

// handleIngestCommit handles POST /api/ingest/commit: replays a staged upload
// through the ingestion pipeline into the requested index, applying any
// column overrides from the request.
func (s *Server) handleIngestCommit(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req ingestCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Index == "" {
		http.Error(w, "session_id and index are required", http.StatusBadRequest)
		return
	}

	upload, err := s.sessions.Get(r.Context(), req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, "unknown or expired session", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("failed to load staged upload", slog.Any("error", err))
		http.Error(w, "failed to load staged upload", http.StatusInternalServerError)
		return
	}

	records, _, err := ingestion.Parse(bytes.NewReader(upload.Data), upload.Format)
	if err != nil {
		log.Error("staged upload no longer parses", slog.Any("error", err))
		http.Error(w, "staged upload is corrupt", http.StatusInternalServerError)
		return
	}

	columns := upload.Report.Columns
	if len(req.Columns) > 0 {
		columns, err = ingestion.ApplyOverrides(columns, req.Columns)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	cfg := ingestion.Config{
		Index:     req.Index,
		Recreate:  req.Recreate,
		ModelID:   req.ModelID,
		Dimension: s.cfg.EmbedDimension,
	}
	if req.ModelID != "" {
		cfg.PipelineID = req.Index + "-embed"
	}

	pipe, err := ingestion.NewPipeline(s.client, s.embedder, cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := pipe.Run(r.Context(), records, columns, func(msg string) {
		log.Info("ingest progress", slog.String("step", msg))
	})
	if err != nil {
		log.Error("ingest commit failed", slog.String("index", req.Index), slog.Any("error", err))
		s.metrics.ingestCommitsTotal.WithLabelValues("error").Inc()
		http.Error(w, "ingest failed", http.StatusBadGateway)
		return
	}

	s.metrics.ingestCommitsTotal.WithLabelValues("ok").Inc()
	s.metrics.ingestDocumentsTotal.Add(float64(result.Indexed))
	log.Info("ingest committed",
		slog.String("index", result.Index),
		slog.Int("indexed", result.Indexed),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", time.Since(start)),
	)

	// The staged upload is consumed; drop it so the TTL is not the only
	// thing bounding Redis memory.
	if err := s.sessions.Delete(r.Context(), req.SessionID); err != nil {
		log.Warn("failed to drop staged upload", slog.Any("error", err))
	}

	writeJSON(w, log, ingestCommitResponse{
		Index:      result.Index,
		PipelineID: result.PipelineID,
		Indexed:    result.Indexed,
		Failed:     result.Failed,
	})
}

// handleHistory handles GET /api/history: the most recent recorded searches
// for the configured index, newest first. Returns an empty list when no
// history store is configured.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	out := historyResponse{Index: s.cfg.Index, Entries: []store.Entry{}}
	if s.history != nil {
		entries, err := s.history.Recent(r.Context(), s.cfg.Index, s.cfg.HistoryLimit)
		if err != nil {
			log.Error("failed to load history", slog.Any("error", err))
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		if entries != nil {
			out.Entries = entries
		}
	}

	writeJSON(w, log, out)
}

// recordSearch appends an entry to the history store. Failures are logged
// and never surface to the search response.
func (s *Server) recordSearch(r *http.Request, e store.Entry) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(r.Context(), e); err != nil {
		logging.FromContext(r.Context()).Warn("failed to record search", slog.Any("error", err))
	}
}

// writeJSON encodes v as the JSON response body.
func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}
