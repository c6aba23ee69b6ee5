package handlers

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brandscope/brandscope-api/internal/apperr"
)

// ConfigureErrors replaces the framework error constructor so failures
// the framework raises itself, schema validation and unknown routes,
// use the same envelope as service errors. Schema validation surfaces
// as 400 VALIDATION_ERROR rather than the framework's default 422.
func ConfigureErrors() {
	huma.NewErrorWithContext = func(ctx huma.Context, status int, msg string, errs ...error) huma.StatusError {
		e := apperr.FromStatus(status, msg)
		if len(errs) > 0 {
			details := make([]string, 0, len(errs))
			for _, err := range errs {
				if err != nil {
					details = append(details, err.Error())
				}
			}
			e.WithDetails(details)
		}
		if ctx != nil {
			e.WithCorrelationID(middleware.GetReqID(ctx.Context()))
		}
		return e
	}
}
