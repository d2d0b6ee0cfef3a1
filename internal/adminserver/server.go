// Package adminserver implements the operational admin/health HTTP surface
// (SPEC_FULL.md §7): liveness, readiness, an out-of-band asset-refresh
// trigger, and a JSON counters snapshot. Grounded on the teacher's chi-routed
// services (ai-infra/internal/httpserver.Server.Router,
// kernel/internal/handlers), generalized from the teacher's
// train/register/promote domain routes to this pipeline's operational ones.
package adminserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowlattice/enrich/internal/metrics"
)

// Ready reports whether the environment finished construction and the asset
// manager's initial load succeeded (SPEC_FULL.md §7 "GET /readyz").
type Ready func() bool

// Server is the admin HTTP surface.
type Server struct {
	counters    *metrics.Counters
	ready       Ready
	refresh     func() error
	requireAuth bool
	bearerSecret string
}

// Config configures a Server.
type Config struct {
	Counters     *metrics.Counters
	Ready        Ready
	Refresh      func() error
	RequireAuth  bool
	BearerSecret string
}

// New constructs a Server.
func New(cfg Config) *Server {
	return &Server{
		counters:     cfg.Counters,
		ready:        cfg.Ready,
		refresh:      cfg.Refresh,
		requireAuth:  cfg.RequireAuth,
		bearerSecret: cfg.BearerSecret,
	}
}

// Router builds the chi router (SPEC_FULL.md §7).
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/metrics/snapshot", s.handleSnapshot)

	r.Group(func(r chi.Router) {
		if s.requireAuth {
			r.Use(s.requireBearer)
		}
		r.Post("/admin/assets/refresh", s.handleRefresh)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil || !s.ready() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.counters == nil {
		respondJSON(w, http.StatusOK, metrics.Snapshot{})
		return
	}
	respondJSON(w, http.StatusOK, s.counters.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		respondError(w, http.StatusNotImplemented, "asset refresh not wired")
		return
	}
	if err := s.refresh(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "refresh triggered"})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
