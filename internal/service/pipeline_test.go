package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brandscope/brandscope-api/internal/apperr"
	"github.com/brandscope/brandscope-api/internal/models"
	"github.com/brandscope/brandscope-api/internal/repository"
)

// memRunRepo is an in-memory RunRepository.
type memRunRepo struct {
	mu     sync.Mutex
	runs   map[string]*models.Run
	writes int
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]*models.Run)}
}

func (r *memRunRepo) Create(_ context.Context, ttl time.Duration) (*models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	run := &models.Run{
		ID:        "run_" + uuid.NewString(),
		Status:    models.RunStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	r.runs[run.ID] = run
	return run, nil
}

func (r *memRunRepo) Get(_ context.Context, runID string) (*models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok || time.Now().After(run.ExpiresAt) || run.Status != models.RunStatusActive {
		return nil, repository.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *memRunRepo) SaveBrand(_ context.Context, runID string, b *models.BrandAnalysis) error {
	return r.save(runID, func(run *models.Run) { run.Brand = b })
}

func (r *memRunRepo) SaveCompetitors(_ context.Context, runID string, c []models.CompetitorCandidate) error {
	return r.save(runID, func(run *models.Run) { run.CompetitorsTen = c })
}

func (r *memRunRepo) SaveAnalyzed(_ context.Context, runID string, a []models.CompetitorAnalysis) error {
	return r.save(runID, func(run *models.Run) { run.CompetitorsAnalyzed = a })
}

func (r *memRunRepo) SaveKernel(_ context.Context, runID string, k *models.Kernel) error {
	return r.save(runID, func(run *models.Run) { run.Kernel = k })
}

func (r *memRunRepo) save(runID string, apply func(*models.Run)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return repository.ErrNotFound
	}
	apply(run)
	run.UpdatedAt = time.Now().UTC()
	r.writes++
	return nil
}

func (r *memRunRepo) CountActive(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs), nil
}

func (r *memRunRepo) Reap(_ context.Context) (int64, error) { return 0, nil }

// fakeScraper returns a fixed page count or error per domain.
type fakeScraper struct {
	pages   int
	err     error
	scraped []string
	mu      sync.Mutex
}

func (s *fakeScraper) Scrape(_ context.Context, url string) (*models.ScrapeResult, error) {
	s.mu.Lock()
	s.scraped = append(s.scraped, url)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	pages := make([]models.Page, s.pages)
	for i := range pages {
		pages[i] = models.Page{
			URL:   fmt.Sprintf("%s/page-%d", url, i),
			Title: fmt.Sprintf("Page %d", i),
			Text:  fmt.Sprintf("distinct content number %d about this brand", i),
		}
	}
	return &models.ScrapeResult{
		Pages: pages,
		Meta:  models.ScrapeMeta{InputURL: url, PagesKept: len(pages)},
	}, nil
}

// fakeLLM returns a scripted JSON payload per endpoint tag.
type fakeLLM struct {
	responses map[string]string
	err       error
}

func (l *fakeLLM) Call(_ context.Context, endpoint, _ string) (json.RawMessage, error) {
	if l.err != nil {
		return nil, l.err
	}
	resp, ok := l.responses[endpoint]
	if !ok {
		return nil, errors.New("unexpected endpoint " + endpoint)
	}
	return json.RawMessage(resp), nil
}

// fakeEvidence returns a fixed penalty.
type fakeEvidence struct {
	penalty float64
	invalid []models.InvalidEvidence
}

func (e *fakeEvidence) Validate(_ context.Context, urls []string, _ []string) *models.EvidenceValidation {
	return &models.EvidenceValidation{
		Valid:             urls,
		Invalid:           e.invalid,
		ConfidencePenalty: e.penalty,
	}
}

const brandJSON = `{
	"name": "Allbirds",
	"domain": "allbirds.com",
	"tagline": "Comfy shoes",
	"category": "footwear",
	"value_propositions": ["comfort", "sustainability"],
	"target_audience": "eco-conscious urbanites",
	"positioning": "premium sustainable",
	"key_features": ["merino wool", "carbon neutral"],
	"summary": "Sustainable footwear brand.",
	"evidence_refs": ["https://allbirds.com/about", "https://allbirds.com/materials"],
	"confidence_0_1": 0.85
}`

func newTestPipeline(scraper *fakeScraper, gateway *fakeLLM, ev *fakeEvidence) (*Pipeline, *memRunRepo) {
	runs := newMemRunRepo()
	return NewPipeline(runs, scraper, gateway, ev, 7*24*time.Hour, nil), runs
}

func TestBrandSummaryHappyPath(t *testing.T) {
	p, runs := newTestPipeline(
		&fakeScraper{pages: 5},
		&fakeLLM{responses: map[string]string{"brand-analysis": brandJSON}},
		&fakeEvidence{penalty: 0.1},
	)

	result, err := p.BrandSummary(context.Background(), "https://allbirds.com")
	if err != nil {
		t.Fatalf("BrandSummary failed: %v", err)
	}

	if result.Brand.Confidence != 0.75 {
		t.Errorf("expected adjusted confidence 0.75, got %f", result.Brand.Confidence)
	}
	if result.Brand.Evidence == nil {
		t.Error("expected embedded evidence validation")
	}
	if result.BrandCard == nil || len(result.BrandCard.Sections) != 4 {
		t.Errorf("expected four-section brand card, got %+v", result.BrandCard)
	}
	if result.Meta.PagesScraped != 5 {
		t.Errorf("expected 5 pages in meta, got %d", result.Meta.PagesScraped)
	}
	if result.Files["brand_card.md"] == "" {
		t.Error("expected rendered brand_card.md in files")
	}

	stored, err := runs.Get(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("stored run not readable: %v", err)
	}
	if stored.Brand == nil || stored.Brand.Name != "Allbirds" {
		t.Errorf("brand artifact not persisted: %+v", stored.Brand)
	}
}

func TestBrandSummaryTooFewPages(t *testing.T) {
	p, _ := newTestPipeline(
		&fakeScraper{pages: 2},
		&fakeLLM{responses: map[string]string{"brand-analysis": brandJSON}},
		&fakeEvidence{},
	)

	_, err := p.BrandSummary(context.Background(), "https://allbirds.com")
	if !apperr.IsCode(err, apperr.CodeInsufficientData) {
		t.Fatalf("expected INSUFFICIENT_DATA for 2 pages, got %v", err)
	}
}

func TestBrandSummaryExactlyThreePages(t *testing.T) {
	p, _ := newTestPipeline(
		&fakeScraper{pages: 3},
		&fakeLLM{responses: map[string]string{"brand-analysis": brandJSON}},
		&fakeEvidence{},
	)

	if _, err := p.BrandSummary(context.Background(), "https://allbirds.com"); err != nil {
		t.Fatalf("3 pages should pass the gate: %v", err)
	}
}

func TestBrandSummaryConfidenceBoundary(t *testing.T) {
	// reported 0.85, penalty 0.25 -> adjusted 0.6: accepted.
	p, _ := newTestPipeline(
		&fakeScraper{pages: 5},
		&fakeLLM{responses: map[string]string{"brand-analysis": brandJSON}},
		&fakeEvidence{penalty: 0.25},
	)
	result, err := p.BrandSummary(context.Background(), "https://allbirds.com")
	if err != nil {
		t.Fatalf("adjusted confidence 0.6 should pass: %v", err)
	}
	if result.Brand.Confidence < 0.599 || result.Brand.Confidence > 0.601 {
		t.Errorf("unexpected adjusted confidence %f", result.Brand.Confidence)
	}

	// penalty 0.26 -> adjusted 0.59: rejected.
	p2, runs2 := newTestPipeline(
		&fakeScraper{pages: 5},
		&fakeLLM{responses: map[string]string{"brand-analysis": brandJSON}},
		&fakeEvidence{penalty: 0.26, invalid: []models.InvalidEvidence{{URL: "x", Reason: "HTTP 404"}}},
	)
	_, err = p2.BrandSummary(context.Background(), "https://allbirds.com")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeLowConfidence {
		t.Fatalf("expected LOW_CONFIDENCE, got %v", err)
	}
	if appErr.Details == nil {
		t.Error("LOW_CONFIDENCE must carry the invalid citations")
	}
	runs2.mu.Lock()
	writes := runs2.writes
	runs2.mu.Unlock()
	if writes != 0 {
		t.Error("rejected brand must not be persisted")
	}
}

func TestCompetitorsFiltersByConfidence(t *testing.T) {
	discovery := `{"competitors": [
		{"name": "A", "domain": "a.com", "confidence_0_1": 0.9, "rationale": "r"},
		{"name": "B", "domain": "b.com", "confidence_0_1": 0.6, "rationale": "r"},
		{"name": "C", "domain": "c.com", "confidence_0_1": 0.59, "rationale": "r"}
	]}`
	p, runs := newTestPipeline(
		&fakeScraper{pages: 5},
		&fakeLLM{responses: map[string]string{
			"brand-analysis":        brandJSON,
			"competitors-discovery": discovery,
		}},
		&fakeEvidence{},
	)
	ctx := context.Background()

	summary, err := p.BrandSummary(ctx, "https://allbirds.com")
	if err != nil {
		t.Fatalf("BrandSummary failed: %v", err)
	}

	result, err := p.Competitors(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("Competitors failed: %v", err)
	}
	if len(result.Competitors) != 2 {
		t.Fatalf("expected 2 retained candidates, got %d", len(result.Competitors))
	}
	for _, c := range result.Competitors {
		if c.Confidence < 0.6 {
			t.Errorf("candidate below gate retained: %+v", c)
		}
	}

	stored, _ := runs.Get(ctx, summary.RunID)
	if len(stored.CompetitorsTen) != 2 {
		t.Errorf("competitors artifact not persisted: %+v", stored.CompetitorsTen)
	}
}

func TestPhaseGateUnknownRun(t *testing.T) {
	p, runs := newTestPipeline(&fakeScraper{pages: 5}, &fakeLLM{}, &fakeEvidence{})
	ctx := context.Background()

	for name, call := range map[string]func() error{
		"competitors": func() error { _, err := p.Competitors(ctx, "run_fake-id"); return err },
		"analyze":     func() error { _, err := p.CompetitorsAnalyze(ctx, "run_fake-id", []string{"a.com"}); return err },
		"kernel":      func() error { _, err := p.Kernel(ctx, "run_fake-id"); return err },
	} {
		err := call()
		if !apperr.IsCode(err, apperr.CodeArtifactMissing) {
			t.Errorf("%s: expected UPSTREAM_ARTIFACT_MISSING, got %v", name, err)
		}
	}

	runs.mu.Lock()
	defer runs.mu.Unlock()
	if runs.writes != 0 {
		t.Error("gated phases must leave the store untouched")
	}
}

func TestCompetitorsRequiresBrandSlot(t *testing.T) {
	p, runs := newTestPipeline(&fakeScraper{pages: 5}, &fakeLLM{}, &fakeEvidence{})
	ctx := context.Background()

	run, _ := runs.Create(ctx, time.Hour)

	_, err := p.Competitors(ctx, run.ID)
	if !apperr.IsCode(err, apperr.CodeArtifactMissing) {
		t.Fatalf("expected UPSTREAM_ARTIFACT_MISSING for empty brand slot, got %v", err)
	}
}

func TestCompetitorsAnalyzeHappyPath(t *testing.T) {
	analysis := `{
		"name": "Rothys", "domain": "rothys.com", "category": "footwear",
		"evidence_refs": ["https://rothys.com/about"], "confidence_0_1": 0.8,
		"pricing_approach": "premium", "strengths": ["recycled materials"],
		"weaknesses": ["price"], "differentiation": "machine washable"
	}`
	scraper := &fakeScraper{pages: 4}
	p, runs := newTestPipeline(
		scraper,
		&fakeLLM{responses: map[string]string{
			"brand-analysis":        brandJSON,
			"competitors-discovery": `{"competitors":[{"name":"Rothys","domain":"rothys.com","confidence_0_1":0.9}]}`,
			"competitor-analysis":   analysis,
		}},
		&fakeEvidence{penalty: 0.1},
	)
	ctx := context.Background()

	summary, _ := p.BrandSummary(ctx, "https://allbirds.com")
	if _, err := p.Competitors(ctx, summary.RunID); err != nil {
		t.Fatalf("Competitors failed: %v", err)
	}

	result, err := p.CompetitorsAnalyze(ctx, summary.RunID, []string{"rothys.com", "vessi.com"})
	if err != nil {
		t.Fatalf("CompetitorsAnalyze failed: %v", err)
	}
	if len(result.Competitors) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(result.Competitors))
	}
	if got := result.Competitors[0].Confidence; got < 0.699 || got > 0.701 {
		t.Errorf("expected adjusted confidence 0.7, got %f", got)
	}

	stored, _ := runs.Get(ctx, summary.RunID)
	if len(stored.CompetitorsAnalyzed) != 2 {
		t.Error("analyzed artifact not persisted")
	}
}

func TestCompetitorsAnalyzeFailFast(t *testing.T) {
	scraper := &fakeScraper{pages: 4, err: apperr.InsufficientData("no pages")}
	p, runs := newTestPipeline(
		scraper,
		&fakeLLM{responses: map[string]string{"competitor-analysis": `{}`}},
		&fakeEvidence{},
	)
	ctx := context.Background()

	run, _ := runs.Create(ctx, time.Hour)
	_ = runs.SaveCompetitors(ctx, run.ID, []models.CompetitorCandidate{{Name: "A", Domain: "a.com", Confidence: 0.9}})
	runs.mu.Lock()
	runs.writes = 0
	runs.mu.Unlock()

	_, err := p.CompetitorsAnalyze(ctx, run.ID, []string{"a.com", "b.com"})
	if !apperr.IsCode(err, apperr.CodeInsufficientData) {
		t.Fatalf("one failing competitor must fail the phase, got %v", err)
	}

	runs.mu.Lock()
	defer runs.mu.Unlock()
	if runs.writes != 0 {
		t.Error("failed phase must not persist partial results")
	}
}

func TestKernelRequiresBothSlots(t *testing.T) {
	kernelJSON := `{
		"keyword_map": {"brand_unique": ["merino"], "shared": ["sustainable"], "white_space": ["repair"]},
		"gap_map": [{"area": "content", "brand_coverage": "low", "competitor_coverage": "high", "opportunity": "blog"}],
		"insights": {"strengths": ["comfort"], "opportunities": ["expansion"], "risks": ["competition"]},
		"recommendations": ["tell the materials story"]
	}`
	p, runs := newTestPipeline(
		&fakeScraper{pages: 5},
		&fakeLLM{responses: map[string]string{"kernel-assembly": kernelJSON}},
		&fakeEvidence{},
	)
	ctx := context.Background()

	run, _ := runs.Create(ctx, time.Hour)
	_ = runs.SaveBrand(ctx, run.ID, &models.BrandAnalysis{Name: "Allbirds", Domain: "allbirds.com"})

	// Analyzed slot still empty.
	_, err := p.Kernel(ctx, run.ID)
	if !apperr.IsCode(err, apperr.CodeArtifactMissing) {
		t.Fatalf("expected UPSTREAM_ARTIFACT_MISSING without analyzed slot, got %v", err)
	}

	_ = runs.SaveAnalyzed(ctx, run.ID, []models.CompetitorAnalysis{{
		BrandAnalysis: models.BrandAnalysis{Name: "Rothys", Domain: "rothys.com"},
	}})

	result, err := p.Kernel(ctx, run.ID)
	if err != nil {
		t.Fatalf("Kernel failed: %v", err)
	}
	if len(result.Kernel.GapMap) != 1 || len(result.Kernel.Recommendations) != 1 {
		t.Errorf("unexpected kernel: %+v", result.Kernel)
	}

	stored, _ := runs.Get(ctx, run.ID)
	if stored.Kernel == nil {
		t.Error("kernel artifact not persisted")
	}
}

func TestBuildBrandCardDeterministic(t *testing.T) {
	b := &models.BrandAnalysis{
		Name: "Allbirds", Tagline: "Comfy", Domain: "allbirds.com",
		Category: "footwear", Confidence: 0.8,
		ValuePropositions: []string{"comfort"},
		TargetAudience:    "urbanites",
		KeyFeatures:       []string{"wool"},
		Positioning:       "premium",
	}

	c1 := BuildBrandCard(b)
	c2 := BuildBrandCard(b)

	j1, _ := json.Marshal(c1)
	j2, _ := json.Marshal(c2)
	if string(j1) != string(j2) {
		t.Error("brand card projection must be deterministic")
	}

	want := []string{"Value Propositions", "Target Audience", "Key Features", "Positioning"}
	for i, section := range c1.Sections {
		if section.Title != want[i] {
			t.Errorf("section %d: got %q, want %q", i, section.Title, want[i])
		}
	}
}

func TestRenderBrandCardMarkdown(t *testing.T) {
	card := BuildBrandCard(&models.BrandAnalysis{
		Name: "Allbirds", Tagline: "Comfy", Domain: "allbirds.com",
		Category: "footwear", Confidence: 0.8,
		ValuePropositions: []string{"comfort"},
		TargetAudience:    "urbanites",
		KeyFeatures:       []string{"wool"},
		Positioning:       "premium",
	})

	md := RenderBrandCardMarkdown(card)
	if md != RenderBrandCardMarkdown(card) {
		t.Error("rendering must be deterministic")
	}
	for _, want := range []string{
		"# Allbirds",
		"> Comfy",
		"## Value Propositions",
		"## Target Audience",
		"## Key Features",
		"## Positioning",
		"- comfort",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}
