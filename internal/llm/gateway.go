// Package llm is the gateway to the OpenAI-compatible chat-completions
// provider. Responses must be JSON objects; calls are retried with
// exponential backoff and classified into the API error taxonomy.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brandscope/brandscope-api/internal/apperr"
	"github.com/brandscope/brandscope-api/internal/metrics"
)

const (
	// systemMessage pins the provider to JSON output.
	systemMessage = "You are a precise analysis engine. Respond with valid JSON only."

	temperature = 0.7

	maxAttempts    = 3
	initialBackoff = 2 * time.Second
)

// Call outcome labels for openai_api_calls_total.
const (
	statusOK          = "ok"
	statusTimeout     = "timeout"
	statusAuth        = "auth"
	statusRateLimited = "rate_limited"
	statusProtocol    = "protocol"
	statusError       = "error"
)

// Config holds the provider settings the gateway needs.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Gateway issues JSON-mode chat-completion calls.
type Gateway struct {
	cfg     Config
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
	backoff time.Duration
}

// NewGateway creates a gateway for the configured provider.
func NewGateway(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Gateway{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		logger:  logger,
		backoff: initialBackoff,
	}
}

// Model returns the configured model name.
func (g *Gateway) Model() string { return g.cfg.Model }

// Call sends the prompt and returns the parsed JSON object from the
// response content. Up to three attempts; 429 and transient failures are
// retried with exponential backoff, other 4xx and auth failures are not.
func (g *Gateway) Call(ctx context.Context, endpoint, prompt string) (json.RawMessage, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := g.backoff << (attempt - 2) // 2s, 4s
			g.logger.Warn("retrying LLM call",
				"endpoint", endpoint, "attempt", attempt, "backoff", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				// Caller cancellation is not a provider timeout.
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil, ctx.Err()
				}
				return nil, apperr.OpenAITimeout(ctx.Err())
			}
		}

		raw, retryable, err := g.attempt(ctx, endpoint, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, lastErr
}

// attempt performs one provider call. The second return value reports
// whether the failure may be retried.
func (g *Gateway) attempt(ctx context.Context, endpoint, prompt string) (json.RawMessage, bool, error) {
	reqBody := map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemMessage},
			{"role": "user", "content": prompt},
		},
		"temperature":     temperature,
		"response_format": map[string]string{"type": "json_object"},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, apperr.OpenAIError(err, "failed to encode LLM request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, false, apperr.OpenAIError(err, "failed to create LLM request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			g.count(endpoint, statusTimeout)
			return nil, false, apperr.OpenAITimeout(err)
		}
		g.count(endpoint, statusError)
		return nil, true, apperr.OpenAIError(err, "LLM request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		g.count(endpoint, statusError)
		return nil, true, apperr.OpenAIError(err, "failed to read LLM response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		g.count(endpoint, statusAuth)
		return nil, false, apperr.OpenAIError(
			fmt.Errorf("status 401: %s", body), "LLM authentication failed")
	case resp.StatusCode == http.StatusTooManyRequests:
		g.count(endpoint, statusRateLimited)
		return nil, true, apperr.OpenAIError(
			fmt.Errorf("status 429: %s", body), "LLM provider rate limited")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		g.count(endpoint, statusError)
		return nil, false, apperr.OpenAIError(
			fmt.Errorf("status %d: %s", resp.StatusCode, body), "LLM provider rejected request")
	case resp.StatusCode != http.StatusOK:
		g.count(endpoint, statusError)
		return nil, true, apperr.OpenAIError(
			fmt.Errorf("status %d: %s", resp.StatusCode, body), "LLM provider error")
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		g.count(endpoint, statusProtocol)
		return nil, false, apperr.OpenAIError(err, "failed to parse LLM response")
	}
	if len(parsed.Choices) == 0 {
		g.count(endpoint, statusProtocol)
		return nil, false, apperr.OpenAIError(errors.New("empty choices"), "empty response from LLM")
	}

	g.metrics.OpenAITokensUsed.
		WithLabelValues(g.cfg.Model, endpoint).
		Add(float64(parsed.Usage.TotalTokens))

	content := []byte(parsed.Choices[0].Message.Content)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(content, &obj); err != nil {
		g.count(endpoint, statusProtocol)
		return nil, false, apperr.OpenAIError(err, "LLM returned non-JSON content")
	}

	g.count(endpoint, statusOK)
	return json.RawMessage(content), false, nil
}

func (g *Gateway) count(endpoint, status string) {
	g.metrics.OpenAIAPICalls.WithLabelValues(g.cfg.Model, endpoint, status).Inc()
}

// isTimeout reports whether the transport error was a deadline expiry.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
