// Package server implements the HTTP server that exposes the retrieval
// engine via a REST API: document ingestion, querying, corpus inspection,
// health probes, and Prometheus metrics.
// The server is started by the `ragengine serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docuchat/ragengine/internal/engine"
	"github.com/docuchat/ragengine/internal/logging"
	"github.com/docuchat/ragengine/internal/rag"
	"github.com/docuchat/ragengine/internal/store"
)

// defaultMaxBodyBytes caps ingestion request bodies when no explicit limit
// is configured.
const defaultMaxBodyBytes = 16 << 20

// New constructs a Server from the provided engine and config.
func New(eng *engine.Engine, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	return newServer(eng, cfg)
}

// newServer is the injectable constructor shared by New and the tests.
func newServer(eng retriever, cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.APIKey == "" {
		log.Warn("server: API key not set — authentication disabled")
	}

	s := &Server{
		engine:  eng,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.Registry),
		history: cfg.History,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/corpora/{id}/documents",
		s.instrument("ingest", authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleIngest)))))
	mux.Handle("POST /api/corpora/{id}/query",
		s.instrument("query", authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleQuery)))))
	mux.Handle("GET /api/corpora/{id}",
		s.instrument("corpus", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleCorpus))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's root HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleIngest handles POST /api/corpora/{id}/documents. The path id "new"
// asks the engine to mint a fresh corpus; the response carries the id either
// way.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	corpusID := r.PathValue("id")
	if corpusID == "new" {
		corpusID = ""
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Files) == 0 {
		http.Error(w, "files is required", http.StatusBadRequest)
		return
	}

	files := make([]engine.IngestFile, len(req.Files))
	for i, f := range req.Files {
		if f.Filename == "" {
			http.Error(w, "filename is required for every file", http.StatusBadRequest)
			return
		}
		files[i] = engine.IngestFile{Filename: f.Filename, Text: f.Text}
	}

	result, err := s.engine.Ingest(r.Context(), corpusID, files)
	if err != nil {
		logging.FromContext(r.Context()).Error("ingest failed", slog.Any("error", err))
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}

	resp := ingestResponse{
		CorpusID:           result.CorpusID,
		DocumentsProcessed: result.DocumentsProcessed,
		TotalFragments:     result.TotalFragments,
		TotalWords:         result.TotalWords,
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, ingestFailure{Filename: f.Filename, Error: f.Err.Error()})
	}

	status := http.StatusOK
	if result.DocumentsProcessed == 0 {
		// Nothing was stored; the per-file errors explain why.
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, r, status, resp)
}

// handleQuery handles POST /api/corpora/{id}/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	corpusID := r.PathValue("id")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Query(r.Context(), corpusID, req.Query, req.MaxResults)
	if err != nil {
		if errors.Is(err, rag.ErrCorpusNotFound) {
			http.Error(w, "corpus not found", http.StatusNotFound)
			return
		}
		logging.FromContext(r.Context()).Error("query failed", slog.Any("error", err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	s.recordHistory(r.Context(), corpusID, req.Query, result)

	writeJSON(w, r, http.StatusOK, queryResponse{
		Context:       result.Context,
		Sources:       result.Sources,
		Confidence:    result.Confidence,
		Variant:       result.Variant,
		FragmentCount: len(result.Fragments),
	})
}

// handleCorpus handles GET /api/corpora/{id}.
func (s *Server) handleCorpus(w http.ResponseWriter, r *http.Request) {
	corpusID := r.PathValue("id")

	c, ok := s.engine.Corpus(corpusID)
	if !ok {
		http.Error(w, "corpus not found", http.StatusNotFound)
		return
	}

	resp := corpusResponse{
		ID:            c.ID,
		FragmentCount: c.FragmentCount,
		HasContent:    c.FragmentCount > 0,
		CreatedAt:     c.CreatedAt,
		LastAccess:    c.LastAccess,
		Documents:     []documentInfo{},
	}
	for _, d := range s.engine.Documents(corpusID) {
		resp.Documents = append(resp.Documents, documentInfo{
			ID:            d.ID,
			Filename:      d.Filename,
			Preview:       d.Preview,
			FragmentCount: d.FragmentCount,
			CreatedAt:     d.CreatedAt,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// recordHistory persists an answered query when a history store is
// configured. Failures are logged, never surfaced to the client.
func (s *Server) recordHistory(ctx context.Context, corpusID, query string, result *engine.QueryResult) {
	if s.history == nil {
		return
	}
	err := s.history.Record(ctx, store.Entry{
		CorpusID:   corpusID,
		Query:      query,
		Variant:    result.Variant,
		Confidence: result.Confidence,
		Sources:    result.Sources,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("history record failed", slog.Any("error", err))
	}
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}
