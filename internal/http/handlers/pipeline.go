package handlers

import (
	"context"

	"github.com/brandscope/brandscope-api/internal/service"
)

// BrandSummaryInput is the request body for the brand-summary phase.
type BrandSummaryInput struct {
	Body struct {
		BrandURL string `json:"brand_url" minLength:"1" format:"uri" doc:"Brand homepage URL, http or https"`
	}
}

// BrandSummaryOutput wraps the brand-summary phase response.
type BrandSummaryOutput struct {
	Body service.BrandSummaryResult
}

// BrandSummary starts a run: scrape the brand site, analyze the corpus,
// and persist the brand artifact.
func (h *PipelineHandler) BrandSummary(ctx context.Context, input *BrandSummaryInput) (*BrandSummaryOutput, error) {
	result, err := h.pipeline.BrandSummary(ctx, input.Body.BrandURL)
	if err != nil {
		return nil, h.fail(ctx, "brand_summary", err)
	}
	return &BrandSummaryOutput{Body: *result}, nil
}

// CompetitorsInput is the request body for competitor discovery.
// brand_domain is accepted for wire compatibility but the stored brand
// artifact is authoritative.
type CompetitorsInput struct {
	Body struct {
		RunID       string `json:"run_id" pattern:"^run_[a-f0-9-]+$" doc:"Run id from the brand-summary phase"`
		BrandDomain string `json:"brand_domain,omitempty" doc:"Ignored; the stored brand artifact is used"`
	}
}

// CompetitorsOutput wraps the competitor-discovery response.
type CompetitorsOutput struct {
	Body service.CompetitorsResult
}

// Competitors discovers competitor candidates from the stored brand
// artifact.
func (h *PipelineHandler) Competitors(ctx context.Context, input *CompetitorsInput) (*CompetitorsOutput, error) {
	result, err := h.pipeline.Competitors(ctx, input.Body.RunID)
	if err != nil {
		return nil, h.fail(ctx, "competitors", err)
	}
	return &CompetitorsOutput{Body: *result}, nil
}

// AnalyzeInput is the request body for competitor deep analysis.
type AnalyzeInput struct {
	Body struct {
		RunID   string   `json:"run_id" pattern:"^run_[a-f0-9-]+$" doc:"Run id from the brand-summary phase"`
		Domains []string `json:"domains" minItems:"1" maxItems:"10" doc:"Competitor domains to analyze"`
	}
}

// AnalyzeOutput wraps the competitor-analysis response.
type AnalyzeOutput struct {
	Body service.AnalyzeResult
}

// CompetitorsAnalyze deep-analyzes the selected competitor domains.
func (h *PipelineHandler) CompetitorsAnalyze(ctx context.Context, input *AnalyzeInput) (*AnalyzeOutput, error) {
	result, err := h.pipeline.CompetitorsAnalyze(ctx, input.Body.RunID, input.Body.Domains)
	if err != nil {
		return nil, h.fail(ctx, "competitors_analyze", err)
	}
	return &AnalyzeOutput{Body: *result}, nil
}

// KernelInput is the request body for kernel assembly.
type KernelInput struct {
	Body struct {
		RunID string `json:"run_id" pattern:"^run_[a-f0-9-]+$" doc:"Run id from the brand-summary phase"`
	}
}

// KernelOutput wraps the kernel-assembly response.
type KernelOutput struct {
	Body service.KernelResult
}

// Kernel assembles the final competitive-intelligence document.
func (h *PipelineHandler) Kernel(ctx context.Context, input *KernelInput) (*KernelOutput, error) {
	result, err := h.pipeline.Kernel(ctx, input.Body.RunID)
	if err != nil {
		return nil, h.fail(ctx, "kernel", err)
	}
	return &KernelOutput{Body: *result}, nil
}
