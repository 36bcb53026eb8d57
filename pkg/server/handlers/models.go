package handlers

import (
	"log/slog"
	"net/http"
)

// modelEntry is one row in the OpenAI-compatible model list.
type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// ModelsHandler serves GET /v1/models with the logical model catalog.
type ModelsHandler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// NewModelsHandler creates the model listing handler.
func NewModelsHandler(p Pipeline) *ModelsHandler {
	return &ModelsHandler{
		pipeline: p,
		logger:   slog.Default().With("component", "models_handler"),
	}
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}

	models, err := h.pipeline.ListModels(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "model listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error",
			"Failed to list models. Please try again later.")
		return
	}

	list := modelList{Object: "list", Data: make([]modelEntry, 0, len(models))}
	for _, m := range models {
		list.Data = append(list.Data, modelEntry{
			ID:      m.ID,
			Object:  "model",
			OwnedBy: "polaris",
		})
	}
	writeJSON(w, http.StatusOK, list)
}
