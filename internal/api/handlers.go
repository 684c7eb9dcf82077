// Package api serves read-only run status over HTTP while a harvest runs.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	tracker *Tracker
	started time.Time
	logger  *slog.Logger
}

func NewHandlers(tracker *Tracker, logger *slog.Logger) *Handlers {
	return &Handlers{
		tracker: tracker,
		started: time.Now(),
		logger:  logger.With("component", "status_api"),
	}
}

// Router builds the status routes.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/run", h.GetRun)
		r.Get("/run/categories/{name}", h.GetCategory)
	})

	return r
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.tracker.Snapshot()
	health := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if snap.Run != nil {
		health["run_id"] = snap.Run.ID
		health["run_status"] = snap.Run.Status
	}
	h.respondJSON(w, http.StatusOK, health)
}

// GetRun returns the progress of the current run.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	snap := h.tracker.Snapshot()
	if snap.Run == nil {
		h.respondError(w, http.StatusNotFound, "no run started")
		return
	}
	h.respondJSON(w, http.StatusOK, snap)
}

func (h *Handlers) GetCategory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := h.tracker.Category(name)
	if !ok {
		h.respondError(w, http.StatusNotFound, "category not found")
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
