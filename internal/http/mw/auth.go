package mw

import (
	"crypto/subtle"
	"net/http"

	"github.com/brandscope/brandscope-api/internal/apperr"
)

// APIKeyHeader is the header clients present the shared secret in.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests whose X-API-Key header does not match the
// configured key. The comparison is constant time regardless of how much
// of the presented key matches.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(APIKeyHeader)
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				writeError(w, r, apperr.Unauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
