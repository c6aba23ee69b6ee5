package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/brandscope/brandscope-api/internal/apperr"
)

// RateLimit limits each caller to requestsPerMinute within a sliding
// window. Callers are keyed by client IP plus presented API key, so two
// clients behind one NAT with distinct keys get independent windows.
// Exceeding the window yields the RATE_LIMIT_EXCEEDED envelope.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, keyByAPIKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, apperr.RateLimited())
		}),
	)
}

func keyByAPIKey(r *http.Request) (string, error) {
	return r.Header.Get(APIKeyHeader), nil
}
