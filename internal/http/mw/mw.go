// Package mw contains HTTP middleware for the brandscope API.
package mw

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/brandscope/brandscope-api/internal/apperr"
)

// writeError serializes a typed error as the wire envelope, stamped with
// the request correlation id.
func writeError(w http.ResponseWriter, r *http.Request, e *apperr.Error) {
	e.WithCorrelationID(middleware.GetReqID(r.Context()))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.GetStatus())
	_ = json.NewEncoder(w).Encode(e)
}
