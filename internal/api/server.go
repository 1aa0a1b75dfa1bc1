// Package api serves the operational HTTP surface: health, per-source
// statistics and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/newswire/harvester/internal/collector"
	"github.com/newswire/harvester/internal/feed"
	"github.com/newswire/harvester/internal/telemetry"
)

// Server hosts the operational endpoints.
type Server struct {
	tracker *collector.Tracker
	log     *zap.Logger
	srv     *http.Server
}

// New builds a server listening on port.
func New(port int, tracker *collector.Tracker, log *zap.Logger) *Server {
	s := &Server{tracker: tracker, log: log}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	r.Get("/stats/{source}", s.handleSourceStats)
	r.Handle("/metrics", telemetry.Handler())
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// sourceStatsView augments the raw counters with the derived fields clients
// actually alert on.
type sourceStatsView struct {
	feed.SourceStats
	SuccessRate  float64 `json:"success_rate"`
	HealthStatus string  `json:"health_status"`
}

func viewOf(s feed.SourceStats) sourceStatsView {
	return sourceStatsView{
		SourceStats:  s,
		SuccessRate:  s.SuccessRate(),
		HealthStatus: s.HealthStatus(),
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.tracker.Snapshot()
	views := make([]sourceStatsView, len(snapshot))
	for i, st := range snapshot {
		views[i] = viewOf(st)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": views})
}

func (s *Server) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	st, ok := s.tracker.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown source"})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
