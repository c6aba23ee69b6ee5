// Package handlers contains the HTTP handlers for the API.
package handlers

import (
	"context"
	"log/slog"

	"github.com/brandscope/brandscope-api/internal/apperr"
	"github.com/brandscope/brandscope-api/internal/logging"
	"github.com/brandscope/brandscope-api/internal/service"
)

// PipelineHandler exposes the four pipeline phases over HTTP.
type PipelineHandler struct {
	pipeline *service.Pipeline
	logger   *slog.Logger
}

// NewPipelineHandler creates a pipeline handler.
func NewPipelineHandler(svc *service.Services, logger *slog.Logger) *PipelineHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineHandler{pipeline: svc.Pipeline, logger: logger}
}

// fail converts a service error into the typed envelope, stamped with the
// request correlation id, and logs it once at the boundary.
func (h *PipelineHandler) fail(ctx context.Context, phase string, err error) error {
	e := apperr.From(err).WithCorrelationID(logging.RequestID(ctx))
	logging.FromContext(ctx, h.logger).Warn("phase failed",
		"phase", phase, "error_code", string(e.Code), "error", err)
	return e
}
