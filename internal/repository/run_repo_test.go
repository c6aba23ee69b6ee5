package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/brandscope/brandscope-api/internal/models"
)

func TestRunCreateAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	run, err := repos.Run.Create(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !regexp.MustCompile(`^run_[a-f0-9-]+$`).MatchString(run.ID) {
		t.Errorf("run id %q does not match expected format", run.ID)
	}
	if run.Status != models.RunStatusActive {
		t.Errorf("expected status active, got %q", run.Status)
	}

	got, err := repos.Run.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("expected id %q, got %q", run.ID, got.ID)
	}
	if got.Brand != nil || got.CompetitorsTen != nil || got.Kernel != nil {
		t.Error("fresh run should have no artifacts")
	}
}

func TestRunGetUnknown(t *testing.T) {
	repos := setupTestRepos(t)

	_, err := repos.Run.Get(context.Background(), "run_does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunGetExpired(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	run, err := repos.Run.Create(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = repos.Run.Get(ctx, run.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired run, got %v", err)
	}
}

func TestRunSaveBrandRoundTrip(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	run, err := repos.Run.Create(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	brand := &models.BrandAnalysis{
		Name:              "Allbirds",
		Domain:            "allbirds.com",
		Tagline:           "The world's most comfortable shoes",
		Category:          "sustainable footwear",
		ValuePropositions: []string{"comfort", "sustainability"},
		EvidenceRefs:      []string{"https://allbirds.com/about"},
		Confidence:        0.82,
	}
	if err := repos.Run.SaveBrand(ctx, run.ID, brand); err != nil {
		t.Fatalf("SaveBrand failed: %v", err)
	}

	got, err := repos.Run.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Brand == nil {
		t.Fatal("expected brand artifact to be set")
	}
	if got.Brand.Name != brand.Name || got.Brand.Confidence != brand.Confidence {
		t.Errorf("brand round trip mismatch: got %+v", got.Brand)
	}
	if len(got.Brand.ValuePropositions) != 2 {
		t.Errorf("expected 2 value propositions, got %d", len(got.Brand.ValuePropositions))
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Error("artifact write should bump updated_at")
	}
}

func TestRunSaveSlotOnMissingRun(t *testing.T) {
	repos := setupTestRepos(t)

	err := repos.Run.SaveBrand(context.Background(), "run_missing", &models.BrandAnalysis{Name: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunSaveReplacesAtomically(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	run, _ := repos.Run.Create(ctx, time.Hour)

	first := []models.CompetitorCandidate{{Name: "A", Domain: "a.com", Confidence: 0.7}}
	second := []models.CompetitorCandidate{
		{Name: "B", Domain: "b.com", Confidence: 0.8},
		{Name: "C", Domain: "c.com", Confidence: 0.9},
	}
	if err := repos.Run.SaveCompetitors(ctx, run.ID, first); err != nil {
		t.Fatalf("first SaveCompetitors failed: %v", err)
	}
	if err := repos.Run.SaveCompetitors(ctx, run.ID, second); err != nil {
		t.Fatalf("second SaveCompetitors failed: %v", err)
	}

	got, err := repos.Run.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.CompetitorsTen) != 2 {
		t.Fatalf("expected replacement write, got %d candidates", len(got.CompetitorsTen))
	}
	if got.CompetitorsTen[0].Name != "B" {
		t.Errorf("expected replaced slot, got %+v", got.CompetitorsTen)
	}
}

func TestRunCountActiveAndReap(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	if _, err := repos.Run.Create(ctx, time.Hour); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := repos.Run.Create(ctx, -time.Hour); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	count, err := repos.Run.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 active run, got %d", count)
	}

	reaped, err := repos.Run.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap failed: %v", err)
	}
	if reaped != 1 {
		t.Errorf("expected 1 reaped run, got %d", reaped)
	}

	count, _ = repos.Run.CountActive(ctx)
	if count != 1 {
		t.Errorf("reap should not touch unexpired runs, got count %d", count)
	}
}

func TestRunSaveKernel(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	run, _ := repos.Run.Create(ctx, time.Hour)

	kernel := &models.Kernel{
		KeywordMap: models.KeywordMap{
			BrandUnique: []string{"merino"},
			Shared:      []string{"sustainable"},
			WhiteSpace:  []string{"recycled packaging"},
		},
		GapMap: []models.GapEntry{
			{Area: "content", BrandCoverage: "low", CompetitorCoverage: "high", Opportunity: "blog"},
		},
		Recommendations: []string{"expand materials story"},
	}
	if err := repos.Run.SaveKernel(ctx, run.ID, kernel); err != nil {
		t.Fatalf("SaveKernel failed: %v", err)
	}

	got, err := repos.Run.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Kernel == nil || len(got.Kernel.GapMap) != 1 {
		t.Fatalf("kernel round trip mismatch: %+v", got.Kernel)
	}
	if got.Kernel.KeywordMap.BrandUnique[0] != "merino" {
		t.Errorf("unexpected keyword map: %+v", got.Kernel.KeywordMap)
	}
}
