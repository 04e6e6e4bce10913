// Package api exposes the operational HTTP surface: health, metrics and
// source administration.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/joblens/harvester/internal/harvest"
	"github.com/joblens/harvester/internal/metrics"
)

// Server is the ops HTTP server.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

// New builds the Server and its routes.
func New(port int, store harvest.Store, m *metrics.Metrics, logger *zap.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(store, m, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter wires the ops routes onto a fresh chi router.
func NewRouter(store harvest.Store, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	h := &handlers{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	r.Get("/sources", h.listSources)
	r.Get("/sources/{id}", h.getSource)
	r.Post("/sources/{id}/reactivate", h.reactivateSource)
	r.Get("/sources/{id}/outcomes", h.recentOutcomes)

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type handlers struct {
	store  harvest.Store
	logger *zap.Logger
}

type sourceView struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	URL                 string    `json:"url"`
	Mode                string    `json:"mode"`
	OrgType             string    `json:"org_type"`
	FrequencyDays       int       `json:"frequency_days"`
	NextRunAt           time.Time `json:"next_run_at"`
	Status              string    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	ConsecutiveNoChange int       `json:"consecutive_no_change"`
	LastStatus          string    `json:"last_status"`
	LastMessage         string    `json:"last_message"`

	HealthScore              float64 `json:"health_score"`
	Priority                 int     `json:"priority"`
	RecommendedFrequencyDays int     `json:"recommended_frequency_days"`
}

func viewOf(src harvest.Source) sourceView {
	return sourceView{
		ID:                  src.ID,
		Name:                src.Name,
		URL:                 src.URL,
		Mode:                string(src.Mode),
		OrgType:             src.OrgType,
		FrequencyDays:       src.FrequencyDays,
		NextRunAt:           src.NextRunAt,
		Status:              string(src.Status),
		ConsecutiveFailures: src.ConsecutiveFailures,
		ConsecutiveNoChange: src.ConsecutiveNoChange,
		LastStatus:          src.LastStatus,
		LastMessage:         src.LastMessage,

		HealthScore:              src.HealthScore,
		Priority:                 src.Priority,
		RecommendedFrequencyDays: src.RecommendedFrequencyDays,
	}
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.ListSources(r.Context())
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, viewOf(src))
	}
	h.respond(w, http.StatusOK, views)
}

func (h *handlers) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := h.store.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, harvest.ErrNotFound) {
			h.fail(w, http.StatusNotFound, err)
			return
		}
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusOK, viewOf(src))
}

// reactivateSource clears a paused source's circuit breaker. This is the
// only way a paused source resumes crawling.
func (h *handlers) reactivateSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.ReactivateSource(r.Context(), id); err != nil {
		if errors.Is(err, harvest.ErrNotFound) {
			h.fail(w, http.StatusNotFound, errors.New("no paused source with that id"))
			return
		}
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.logger.Info("source reactivated", zap.String("source", id))
	h.respond(w, http.StatusOK, map[string]string{"status": "active", "id": id})
}

func (h *handlers) recentOutcomes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcomes, err := h.store.RecentOutcomes(r.Context(), id, 20, time.Time{})
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusOK, outcomes)
}

func (h *handlers) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Debug("encoding response failed", zap.Error(err))
	}
}

func (h *handlers) fail(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.respond(w, status, map[string]string{"error": err.Error()})
}
