package mw

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// envelope mirrors the wire error shape for assertions.
type envelope struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

func authedRouter(apiKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(APIKeyAuth(apiKey))
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestAPIKeyAuthAccepts(t *testing.T) {
	router := authedRouter("secret-key")

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(APIKeyHeader, "secret-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuthRejects(t *testing.T) {
	router := authedRouter("secret-key")

	cases := []struct {
		name string
		key  string
	}{
		{"missing", ""},
		{"wrong", "not-the-key"},
		{"prefix", "secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			if tc.key != "" {
				req.Header.Set(APIKeyHeader, tc.key)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			var env envelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("response is not the error envelope: %v", err)
			}
			if env.Error != "UNAUTHORIZED" {
				t.Errorf("expected UNAUTHORIZED, got %q", env.Error)
			}
			if env.CorrelationID == "" {
				t.Error("envelope must carry the request correlation id")
			}
		})
	}
}
