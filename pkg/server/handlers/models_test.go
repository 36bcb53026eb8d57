package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"polaris-ai/polaris/pkg/catalog"
)

func TestModelsHandler_ListsModels(t *testing.T) {
	stub := &stubPipeline{models: []catalog.LogicalModel{
		{ID: "chat-large"},
		{ID: "chat-small"},
	}}
	handler := NewModelsHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var list modelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if list.Object != "list" {
		t.Errorf("object = %q, want list", list.Object)
	}
	if len(list.Data) != 2 {
		t.Fatalf("data = %d entries, want 2", len(list.Data))
	}
	if list.Data[0].ID != "chat-large" || list.Data[0].Object != "model" || list.Data[0].OwnedBy != "polaris" {
		t.Errorf("entry = %+v, want chat-large/model/polaris", list.Data[0])
	}
}

func TestModelsHandler_EmptyCatalog(t *testing.T) {
	handler := NewModelsHandler(&stubPipeline{})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var list modelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if list.Data == nil || len(list.Data) != 0 {
		t.Errorf("data = %v, want empty array", list.Data)
	}
}

func TestModelsHandler_ListFailure(t *testing.T) {
	handler := NewModelsHandler(&stubPipeline{modelsErr: errors.New("store down")})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestModelsHandler_MethodNotAllowed(t *testing.T) {
	handler := NewModelsHandler(&stubPipeline{})

	req := httptest.NewRequest(http.MethodPost, "/v1/models", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
