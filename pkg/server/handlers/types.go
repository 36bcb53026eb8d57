package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/gateway"
	"polaris-ai/polaris/pkg/metrics"
	"polaris-ai/polaris/pkg/upstream"
)

// Pipeline is the gateway surface the handlers depend on.
type Pipeline interface {
	ResolveAndExecute(ctx context.Context, caller gateway.CallerContext, req *gateway.ChatRequest) (*upstream.Result, error)
	ListModels(ctx context.Context) ([]catalog.LogicalModel, error)
	GetProviderHealth(ctx context.Context) ([]gateway.ProviderHealth, error)
	GetMetricsHistory(ctx context.Context, providerID, logicalModel string, since time.Time) ([]metrics.Bucket, error)
	InvalidateCatalog(ctx context.Context) error
}

// Caller identity and access headers, populated by the external
// access-control layer in front of the gateway.
const (
	UserIDHeader           = "X-Polaris-User-ID"
	APIKeyIDHeader         = "X-Polaris-API-Key-ID"
	AllowedProvidersHeader = "X-Polaris-Allowed-Providers"
)

// callerFromRequest builds the caller context from the trusted identity
// headers. An absent allow-list header means all providers are allowed.
func callerFromRequest(r *http.Request) gateway.CallerContext {
	caller := gateway.CallerContext{
		UserID:   r.Header.Get(UserIDHeader),
		APIKeyID: r.Header.Get(APIKeyIDHeader),
	}
	if raw := r.Header.Get(AllowedProvidersHeader); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				caller.AllowedProviders = append(caller.AllowedProviders, id)
			}
		}
	}
	return caller
}

// errorResponse is the OpenAI-compatible error envelope.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorDetail{Message: message, Type: errType},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
