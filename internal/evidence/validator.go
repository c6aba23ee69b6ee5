// Package evidence validates that LLM-cited URLs are reachable pages on an
// allow-listed domain and computes the resulting confidence penalty.
package evidence

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brandscope/brandscope-api/internal/models"
	"github.com/brandscope/brandscope-api/internal/urlutil"
)

const (
	probeTimeout = 5 * time.Second

	// maxPenalty caps how much bad citations can depress confidence.
	maxPenalty = 0.3
)

// Validator checks citations with parallel HEAD probes.
type Validator struct {
	client *http.Client
}

// NewValidator creates a validator. A nil client gets a default one with
// the probe timeout; redirects are followed.
func NewValidator(client *http.Client) *Validator {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	return &Validator{client: client}
}

// Validate checks every URL in parallel against the allowed domains and
// returns the validation record with its penalty. An empty input yields a
// zero penalty.
func (v *Validator) Validate(ctx context.Context, urls []string, allowedDomains []string) *models.EvidenceValidation {
	result := &models.EvidenceValidation{Valid: []string{}, Invalid: []models.InvalidEvidence{}}
	if len(urls) == 0 {
		return result
	}

	allowed := make(map[string]bool, len(allowedDomains))
	for _, d := range allowedDomains {
		allowed[strings.TrimPrefix(strings.ToLower(d), "www.")] = true
	}

	type outcome struct {
		url    string
		reason string // "" means valid
	}

	results := make([]outcome, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i] = outcome{url: u, reason: v.check(ctx, u, allowed)}
		}(i, u)
	}
	wg.Wait()

	for _, o := range results {
		if o.reason == "" {
			result.Valid = append(result.Valid, o.url)
		} else {
			result.Invalid = append(result.Invalid, models.InvalidEvidence{URL: o.url, Reason: o.reason})
		}
	}

	result.ConfidencePenalty = Penalty(len(result.Invalid), len(urls))
	return result
}

// check returns "" when the URL is valid, otherwise the invalidity reason.
func (v *Validator) check(ctx context.Context, rawURL string, allowed map[string]bool) string {
	host := urlutil.Domain(rawURL)
	if host == "" || !allowed[host] {
		return "domain not allowed"
	}

	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return err.Error()
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err.Error()
	}
	defer resp.Body.Close()

	// The client follows redirects; re-check the host we landed on.
	if finalHost := urlutil.Domain(resp.Request.URL.String()); !allowed[finalHost] {
		return "redirected off-domain"
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return ""
}

// Penalty computes min(invalid/total * 0.3, 0.3); zero when total is zero.
func Penalty(invalid, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(invalid) / float64(total) * maxPenalty
	if p > maxPenalty {
		return maxPenalty
	}
	return p
}

// AdjustConfidence applies the penalty: max(0, reported - penalty).
func AdjustConfidence(reported, penalty float64) float64 {
	adjusted := reported - penalty
	if adjusted < 0 {
		return 0
	}
	return adjusted
}
