// Package service contains the business logic layer: the four pipeline
// phase orchestrators and their dependency gates.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brandscope/brandscope-api/internal/apperr"
	"github.com/brandscope/brandscope-api/internal/llm"
	"github.com/brandscope/brandscope-api/internal/models"
	"github.com/brandscope/brandscope-api/internal/repository"
	"github.com/brandscope/brandscope-api/internal/urlutil"
)

// confidenceGate is the minimum adjusted confidence accepted at the end of
// BrandSummary, and the retention threshold for discovered competitors.
const confidenceGate = 0.6

// minSurvivingPages is how many deduplicated pages a scrape must yield for
// brand analysis to proceed.
const minSurvivingPages = 3

// PageScraper produces a ScrapeResult for a brand URL.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*models.ScrapeResult, error)
}

// LLMCaller issues a JSON-mode completion for an endpoint tag.
type LLMCaller interface {
	Call(ctx context.Context, endpoint, prompt string) (json.RawMessage, error)
}

// EvidenceChecker validates cited URLs against allowed domains.
type EvidenceChecker interface {
	Validate(ctx context.Context, urls []string, allowedDomains []string) *models.EvidenceValidation
}

// PhaseMeta is the meta block attached to every phase response.
type PhaseMeta struct {
	DurationMS   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
	PagesScraped int       `json:"pages_scraped,omitempty"`
	CacheHit     bool      `json:"cache_hit,omitempty"`
}

// BrandSummaryResult is the BrandSummary phase response body. Files holds
// rendered artifacts keyed by filename.
type BrandSummaryResult struct {
	RunID     string                `json:"run_id"`
	Brand     *models.BrandAnalysis `json:"brand"`
	BrandCard *models.BrandCard     `json:"brand_card"`
	Files     map[string]string     `json:"files"`
	Meta      PhaseMeta             `json:"meta"`
}

// CompetitorsResult is the Competitors phase response body.
type CompetitorsResult struct {
	RunID       string                       `json:"run_id"`
	Competitors []models.CompetitorCandidate `json:"competitors"`
	Meta        PhaseMeta                    `json:"meta"`
}

// AnalyzeResult is the CompetitorsAnalyze phase response body.
type AnalyzeResult struct {
	RunID       string                      `json:"run_id"`
	Competitors []models.CompetitorAnalysis `json:"competitors"`
	Meta        PhaseMeta                   `json:"meta"`
}

// KernelResult is the Kernel phase response body.
type KernelResult struct {
	RunID  string         `json:"run_id"`
	Kernel *models.Kernel `json:"kernel"`
	Meta   PhaseMeta      `json:"meta"`
}

// Pipeline orchestrates the four phases over the shared components.
type Pipeline struct {
	runs     repository.RunRepository
	scraper  PageScraper
	gateway  LLMCaller
	evidence EvidenceChecker
	logger   *slog.Logger
	runTTL   time.Duration
}

// NewPipeline wires a pipeline service.
func NewPipeline(runs repository.RunRepository, scraper PageScraper, gateway LLMCaller,
	evidence EvidenceChecker, runTTL time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		runs:     runs,
		scraper:  scraper,
		gateway:  gateway,
		evidence: evidence,
		logger:   logger,
		runTTL:   runTTL,
	}
}

// BrandSummary creates a run, scrapes the brand site, analyzes the corpus,
// validates the cited evidence, and persists the brand artifact.
func (p *Pipeline) BrandSummary(ctx context.Context, brandURL string) (*BrandSummaryResult, error) {
	start := time.Now()

	run, err := p.runs.Create(ctx, p.runTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	logger := p.logger.With("run_id", run.ID)

	scraped, err := p.scraper.Scrape(ctx, brandURL)
	if err != nil {
		return nil, err
	}
	if len(scraped.Pages) < minSurvivingPages {
		return nil, apperr.InsufficientData(fmt.Sprintf(
			"only %d pages survived scraping; at least %d required", len(scraped.Pages), minSurvivingPages))
	}

	raw, err := p.gateway.Call(ctx, llm.EndpointBrandAnalysis, llm.BrandAnalysisPrompt(brandURL, scraped.Pages))
	if err != nil {
		return nil, err
	}

	var brand models.BrandAnalysis
	if err := json.Unmarshal(raw, &brand); err != nil {
		return nil, apperr.OpenAIError(err, "brand analysis has unexpected shape")
	}

	inputDomain := urlutil.Domain(brandURL)
	if brand.Domain == "" {
		brand.Domain = inputDomain
	}

	validation := p.evidence.Validate(ctx, brand.EvidenceRefs, []string{inputDomain})
	adjusted := adjustConfidence(brand.Confidence, validation.ConfidencePenalty)
	logger.Info("brand confidence adjusted",
		"reported", brand.Confidence, "penalty", validation.ConfidencePenalty, "adjusted", adjusted)

	brand.Confidence = adjusted
	brand.Evidence = validation

	if adjusted < confidenceGate {
		return nil, apperr.LowConfidence(adjusted, map[string]any{
			"confidence_0_1":   adjusted,
			"invalid_evidence": validation.Invalid,
		})
	}

	if err := p.runs.SaveBrand(ctx, run.ID, &brand); err != nil {
		return nil, apperr.Internal(err)
	}

	card := BuildBrandCard(&brand)
	return &BrandSummaryResult{
		RunID:     run.ID,
		Brand:     &brand,
		BrandCard: card,
		Files:     map[string]string{"brand_card.md": RenderBrandCardMarkdown(card)},
		Meta: PhaseMeta{
			DurationMS:   time.Since(start).Milliseconds(),
			Timestamp:    time.Now().UTC(),
			PagesScraped: scraped.Meta.PagesKept,
			CacheHit:     scraped.Meta.ScrapedAt.Before(start),
		},
	}, nil
}

// Competitors discovers competitor candidates from the stored brand
// artifact and keeps those at or above the confidence gate.
func (p *Pipeline) Competitors(ctx context.Context, runID string) (*CompetitorsResult, error) {
	start := time.Now()

	run, err := p.loadRun(ctx, runID, "brand")
	if err != nil {
		return nil, err
	}
	if run.Brand == nil {
		return nil, apperr.ArtifactMissing(runID, "brand")
	}

	raw, err := p.gateway.Call(ctx, llm.EndpointCompetitorDiscover, llm.CompetitorDiscoveryPrompt(run.Brand))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Competitors []models.CompetitorCandidate `json:"competitors"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.OpenAIError(err, "competitor discovery has unexpected shape")
	}

	kept := parsed.Competitors[:0]
	for _, c := range parsed.Competitors {
		if c.Confidence >= confidenceGate {
			kept = append(kept, c)
		}
	}

	if err := p.runs.SaveCompetitors(ctx, runID, kept); err != nil {
		return nil, apperr.Internal(err)
	}

	return &CompetitorsResult{
		RunID:       runID,
		Competitors: kept,
		Meta:        PhaseMeta{DurationMS: time.Since(start).Milliseconds(), Timestamp: time.Now().UTC()},
	}, nil
}

// CompetitorsAnalyze deep-analyzes the selected competitor domains in
// parallel. One failing competitor fails the whole phase.
func (p *Pipeline) CompetitorsAnalyze(ctx context.Context, runID string, domains []string) (*AnalyzeResult, error) {
	start := time.Now()

	run, err := p.loadRun(ctx, runID, "competitors")
	if err != nil {
		return nil, err
	}
	if len(run.CompetitorsTen) == 0 {
		return nil, apperr.ArtifactMissing(runID, "competitors")
	}

	analyzed := make([]models.CompetitorAnalysis, len(domains))
	g, gctx := errgroup.WithContext(ctx)
	for i, domain := range domains {
		g.Go(func() error {
			result, err := p.analyzeCompetitor(gctx, domain)
			if err != nil {
				return err
			}
			analyzed[i] = *result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := p.runs.SaveAnalyzed(ctx, runID, analyzed); err != nil {
		return nil, apperr.Internal(err)
	}

	return &AnalyzeResult{
		RunID:       runID,
		Competitors: analyzed,
		Meta:        PhaseMeta{DurationMS: time.Since(start).Milliseconds(), Timestamp: time.Now().UTC()},
	}, nil
}

// analyzeCompetitor scrapes one competitor domain, analyzes the corpus,
// and adjusts confidence by the evidence penalty.
func (p *Pipeline) analyzeCompetitor(ctx context.Context, domain string) (*models.CompetitorAnalysis, error) {
	scraped, err := p.scraper.Scrape(ctx, "https://"+domain)
	if err != nil {
		return nil, err
	}

	raw, err := p.gateway.Call(ctx, llm.EndpointCompetitorAnalysis, llm.CompetitorAnalysisPrompt(domain, scraped.Pages))
	if err != nil {
		return nil, err
	}

	var analysis models.CompetitorAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, apperr.OpenAIError(err, "competitor analysis has unexpected shape")
	}
	if analysis.Domain == "" {
		analysis.Domain = domain
	}

	validation := p.evidence.Validate(ctx, analysis.EvidenceRefs, []string{domain})
	analysis.Confidence = adjustConfidence(analysis.Confidence, validation.ConfidencePenalty)
	analysis.Evidence = validation

	return &analysis, nil
}

// Kernel synthesizes the final competitive-intelligence document from the
// brand and analyzed-competitor artifacts.
func (p *Pipeline) Kernel(ctx context.Context, runID string) (*KernelResult, error) {
	start := time.Now()

	run, err := p.loadRun(ctx, runID, "brand")
	if err != nil {
		return nil, err
	}
	if run.Brand == nil {
		return nil, apperr.ArtifactMissing(runID, "brand")
	}
	if len(run.CompetitorsAnalyzed) == 0 {
		return nil, apperr.ArtifactMissing(runID, "competitors_analyzed")
	}

	raw, err := p.gateway.Call(ctx, llm.EndpointKernelAssembly,
		llm.KernelAssemblyPrompt(run.Brand, run.CompetitorsAnalyzed))
	if err != nil {
		return nil, err
	}

	var kernel models.Kernel
	if err := json.Unmarshal(raw, &kernel); err != nil {
		return nil, apperr.OpenAIError(err, "kernel has unexpected shape")
	}

	if err := p.runs.SaveKernel(ctx, runID, &kernel); err != nil {
		return nil, apperr.Internal(err)
	}

	return &KernelResult{
		RunID:  runID,
		Kernel: &kernel,
		Meta:   PhaseMeta{DurationMS: time.Since(start).Milliseconds(), Timestamp: time.Now().UTC()},
	}, nil
}

// loadRun fetches the run, mapping a missing or expired run to the
// missing-prerequisite error for the given slot.
func (p *Pipeline) loadRun(ctx context.Context, runID, slot string) (*models.Run, error) {
	run, err := p.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ArtifactMissing(runID, slot)
		}
		return nil, apperr.Internal(err)
	}
	return run, nil
}

// adjustConfidence applies the evidence penalty: max(0, reported - penalty).
func adjustConfidence(reported, penalty float64) float64 {
	adjusted := reported - penalty
	if adjusted < 0 {
		return 0
	}
	return adjusted
}

// RenderBrandCardMarkdown renders the brand card as a markdown document.
// Output is deterministic for a given card.
func RenderBrandCardMarkdown(card *models.BrandCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", card.Title)
	if card.Tagline != "" {
		fmt.Fprintf(&b, "> %s\n\n", card.Tagline)
	}
	fmt.Fprintf(&b, "- Domain: %s\n", card.Domain)
	fmt.Fprintf(&b, "- Category: %s\n", card.Category)
	fmt.Fprintf(&b, "- Confidence: %.2f\n", card.Confidence)
	for _, section := range card.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", section.Title)
		for _, item := range section.Items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	return b.String()
}

// BuildBrandCard projects a BrandAnalysis into its stable presentation
// structure with four fixed sections.
func BuildBrandCard(b *models.BrandAnalysis) *models.BrandCard {
	return &models.BrandCard{
		Title:      b.Name,
		Tagline:    b.Tagline,
		Domain:     b.Domain,
		Category:   b.Category,
		Confidence: b.Confidence,
		Sections: []models.CardSection{
			{Title: "Value Propositions", Items: b.ValuePropositions},
			{Title: "Target Audience", Items: []string{b.TargetAudience}},
			{Title: "Key Features", Items: b.KeyFeatures},
			{Title: "Positioning", Items: []string{b.Positioning}},
		},
	}
}
