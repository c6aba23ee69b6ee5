// Package apperr defines the single error taxonomy surfaced by the API.
// Every failure that crosses a layer boundary is one of these typed errors;
// services return them unchanged and the HTTP layer serializes them as
// {error, message, details?, correlationId}.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a fixed error code string surfaced to API clients.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeEvidenceViolation Code = "EVIDENCE_VIOLATION" // reserved, never emitted
	CodeRateLimited       Code = "RATE_LIMIT_EXCEEDED"
	CodeLowConfidence     Code = "LOW_CONFIDENCE"
	CodeInsufficientData  Code = "INSUFFICIENT_DATA"
	CodeArtifactMissing   Code = "UPSTREAM_ARTIFACT_MISSING"
	CodeOpenAIError       Code = "OPENAI_ERROR"
	CodeOpenAITimeout     Code = "OPENAI_TIMEOUT"
	CodeRequestTimeout    Code = "REQUEST_TIMEOUT"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// statusFor maps each code to its HTTP status.
func statusFor(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeEvidenceViolation:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeLowConfidence:
		return http.StatusUnprocessableEntity
	case CodeInsufficientData, CodeArtifactMissing:
		return http.StatusFailedDependency
	case CodeOpenAIError:
		return http.StatusServiceUnavailable
	case CodeOpenAITimeout, CodeRequestTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed API error. It marshals directly as the wire envelope.
type Error struct {
	Code          Code   `json:"error"`
	Message       string `json:"message"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`

	status int
	cause  error
}

// New creates a typed error with the status implied by its code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, status: statusFor(code)}
}

// Wrap creates a typed error preserving the underlying cause.
func Wrap(code Code, cause error, message string) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// GetStatus implements huma.StatusError so typed errors pass through the
// framework with the right HTTP status.
func (e *Error) GetStatus() int { return e.status }

// WithDetails attaches structured detail to the error. Returns the receiver
// for chaining.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithCorrelationID stamps the request correlation id onto the error.
func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

// Is supports errors.Is against another *Error by code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// From converts any error into a typed *Error. Already-typed errors pass
// through unchanged; everything else becomes INTERNAL_ERROR.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(CodeInternal, err, "internal error")
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Validation reports a failed schema or input check.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Unauthorized reports a missing or wrong API key.
func Unauthorized() *Error {
	return New(CodeUnauthorized, "missing or invalid API key")
}

// RateLimited reports an exhausted per-key request window.
func RateLimited() *Error {
	return New(CodeRateLimited, "rate limit exceeded, retry later")
}

// LowConfidence reports an adjusted confidence below the acceptance gate.
func LowConfidence(confidence float64, details any) *Error {
	return New(CodeLowConfidence,
		fmt.Sprintf("adjusted confidence %.3f is below the 0.6 threshold", confidence)).
		WithDetails(details)
}

// InsufficientData reports a scrape that yielded too little content.
func InsufficientData(message string) *Error {
	return New(CodeInsufficientData, message)
}

// ArtifactMissing reports a phase invoked before its prerequisites exist.
func ArtifactMissing(runID, slot string) *Error {
	return New(CodeArtifactMissing,
		fmt.Sprintf("run %q has no %s artifact; run the earlier phase first", runID, slot))
}

// OpenAIError reports a non-timeout LLM provider failure.
func OpenAIError(cause error, message string) *Error {
	return Wrap(CodeOpenAIError, cause, message)
}

// OpenAITimeout reports an exceeded LLM deadline.
func OpenAITimeout(cause error) *Error {
	return Wrap(CodeOpenAITimeout, cause, "LLM request deadline exceeded")
}

// RequestTimeout reports an exceeded end-to-end request deadline.
func RequestTimeout() *Error {
	return New(CodeRequestTimeout, "request deadline exceeded")
}

// Internal wraps an unclassified failure.
func Internal(cause error) *Error {
	return Wrap(CodeInternal, cause, "internal error")
}

// FromStatus builds a typed error from a bare HTTP status, used when the
// HTTP framework reports failures (schema validation, unknown routes) that
// did not originate in a service. Validation failures surface as 400.
func FromStatus(status int, message string) *Error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		e := Validation(message)
		return e
	case http.StatusUnauthorized:
		return New(CodeUnauthorized, message)
	case http.StatusTooManyRequests:
		return New(CodeRateLimited, message)
	case http.StatusGatewayTimeout:
		return New(CodeRequestTimeout, message)
	default:
		e := New(CodeInternal, message)
		e.status = status
		return e
	}
}
