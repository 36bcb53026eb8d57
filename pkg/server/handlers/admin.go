package handlers

import (
	"log/slog"
	"net/http"
	"time"
)

// AdminHandler serves the admin surface:
//
//	GET  /admin/providers/{id}/health
//	GET  /admin/providers/{id}/metrics?model=...&since=RFC3339
//	POST /admin/catalog/invalidate
type AdminHandler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(p Pipeline) *AdminHandler {
	return &AdminHandler{
		pipeline: p,
		logger:   slog.Default().With("component", "admin_handler"),
	}
}

// Register mounts the admin routes on the mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/providers/{id}/health", h.providerHealth)
	mux.HandleFunc("GET /admin/providers/{id}/metrics", h.providerMetrics)
	mux.HandleFunc("POST /admin/catalog/invalidate", h.invalidateCatalog)
}

func (h *AdminHandler) providerHealth(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")

	all, err := h.pipeline.GetProviderHealth(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "provider health lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "health lookup failed")
		return
	}

	for _, ph := range all {
		if ph.ProviderID == providerID {
			writeJSON(w, http.StatusOK, ph)
			return
		}
	}
	writeError(w, http.StatusNotFound, "invalid_request_error", "unknown provider")
}

func (h *AdminHandler) providerMetrics(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")
	model := r.URL.Query().Get("model")

	since := time.Now().Add(-time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "since must be RFC3339")
			return
		}
		since = parsed
	}

	buckets, err := h.pipeline.GetMetricsHistory(r.Context(), providerID, model, since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "metrics history lookup failed",
			"provider", providerID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "server_error", "metrics lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider_id": providerID,
		"model":       model,
		"since":       since.UTC().Format(time.RFC3339),
		"buckets":     buckets,
	})
}

func (h *AdminHandler) invalidateCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.InvalidateCatalog(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "catalog invalidation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "catalog invalidation failed")
		return
	}

	h.logger.InfoContext(r.Context(), "catalog invalidated")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
