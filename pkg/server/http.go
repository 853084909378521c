// Package server provides a read-only HTTP API over stored
// harmonization runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/triagekit/harmonize/pkg/harmonize"
	"github.com/triagekit/harmonize/pkg/store"
)

var srvLog = log.New(os.Stderr, "[harmonize:server] ", log.Ltime)

// Server serves harmonization results over HTTP.
type Server struct {
	store *store.Store
	addr  string
	mux   *http.ServeMux
	http  *http.Server
}

// NewServer creates a new HTTP server backed by the given store.
func NewServer(st *store.Store, addr string) *Server {
	s := &Server{
		store: st,
		addr:  addr,
		mux:   http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Run endpoints
	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/api/runs/", s.handleRun)

	// Finding endpoints (latest run)
	s.mux.HandleFunc("/api/findings", s.handleFindings)
	s.mux.HandleFunc("/api/findings/top", s.handleTopFindings)
	s.mux.HandleFunc("/api/findings/autofixable", s.handleAutoFixable)
	s.mux.HandleFunc("/api/findings/search", s.handleSearch)

	// Stats and health
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/health", s.handleHealth)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	srvLog.Printf("listening on %s", s.addr)
	s.http = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler returns the underlying mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Response helpers
func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		srvLog.Printf("failed to encode response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, map[string]string{"error": message}, status)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

// latestResult fetches the latest run's result, translating storage
// errors into HTTP responses. Returns nil when a response was written.
func (s *Server) latestResult(w http.ResponseWriter) *harmonize.Result {
	run, err := s.store.LatestRun()
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(w, "no harmonization runs stored yet", http.StatusNotFound)
		return nil
	}
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return nil
	}
	return run.Result
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// Run handlers
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runs, err := s.store.ListRuns()
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, runs, http.StatusOK)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" {
		errorResponse(w, "run ID required", http.StatusBadRequest)
		return
	}

	var (
		run *store.Run
		err error
	)
	if id == "latest" {
		run, err = s.store.LatestRun()
	} else {
		run, err = s.store.GetRun(id)
	}
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, run, http.StatusOK)
}

// Finding handlers
func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result := s.latestResult(w)
	if result == nil {
		return
	}

	findings := result.Findings
	if category := r.URL.Query().Get("category"); category != "" {
		findings = result.ByCategory(category)
	}
	if severity := r.URL.Query().Get("severity"); severity != "" {
		filtered := make([]*harmonize.Harmonized, 0, len(findings))
		for _, hf := range findings {
			if hf.Finding.Severity == severity {
				filtered = append(filtered, hf)
			}
		}
		findings = filtered
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(findings) {
		findings = findings[:limit]
	}
	jsonResponse(w, findings, http.StatusOK)
}

func (s *Server) handleTopFindings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result := s.latestResult(w)
	if result == nil {
		return
	}
	jsonResponse(w, result.TopN(queryInt(r, "n", 10)), http.StatusOK)
}

func (s *Server) handleAutoFixable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result := s.latestResult(w)
	if result == nil {
		return
	}
	threshold := queryFloat(r, "threshold", harmonize.DefaultAutoApplyThreshold)
	jsonResponse(w, result.AutoFixable(threshold), http.StatusOK)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hits, err := s.store.Search(
		r.URL.Query().Get("q"),
		r.URL.Query().Get("category"),
		r.URL.Query().Get("severity"),
		queryInt(r, "limit", 50),
	)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, hits, http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result := s.latestResult(w)
	if result == nil {
		return
	}
	jsonResponse(w, result.Stats, http.StatusOK)
}
