package mw

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brandscope/brandscope-api/internal/logging"
	"github.com/brandscope/brandscope-api/internal/metrics"
	"github.com/brandscope/brandscope-api/internal/models"
	"github.com/brandscope/brandscope-api/internal/repository"
)

// RequestMeta propagates the chi request id into the logging context,
// emits an access log line, records the Prometheus HTTP collectors, and
// appends a row to the api_metrics request log. Must sit after
// middleware.RequestID in the chain.
func RequestMeta(m *metrics.Metrics, metricsRepo repository.MetricsRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			ctx := logging.WithRequestID(r.Context(), reqID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			// Label by route pattern, not raw path, to bound cardinality.
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}

			m.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())

			logger.Info("request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", duration.Milliseconds(),
			)

			// The row must land even when the request context is already
			// canceled (client gone, deadline hit).
			row := &models.APIMetric{
				RequestID:  reqID,
				Method:     r.Method,
				Path:       path,
				Status:     status,
				DurationMS: duration.Milliseconds(),
			}
			if err := metricsRepo.Insert(context.WithoutCancel(ctx), row); err != nil {
				logger.Warn("failed to record request metric", "error", err)
			}
		})
	}
}
