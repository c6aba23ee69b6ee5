// Package repository defines repository interfaces for data access.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/brandscope/brandscope-api/internal/models"
)

// ErrNotFound is returned when a requested row does not exist or is no
// longer visible (expired, non-active). Callers translate it to the
// missing-prerequisite error at the phase boundary.
var ErrNotFound = errors.New("not found")

// RunRepository defines methods for run data access.
type RunRepository interface {
	// Create inserts a fresh run with a new identifier and an expiration
	// deadline of now + ttl.
	Create(ctx context.Context, ttl time.Duration) (*models.Run, error)
	// Get returns an active, unexpired run or ErrNotFound.
	Get(ctx context.Context, runID string) (*models.Run, error)
	SaveBrand(ctx context.Context, runID string, brand *models.BrandAnalysis) error
	SaveCompetitors(ctx context.Context, runID string, candidates []models.CompetitorCandidate) error
	SaveAnalyzed(ctx context.Context, runID string, analyzed []models.CompetitorAnalysis) error
	SaveKernel(ctx context.Context, runID string, kernel *models.Kernel) error
	// CountActive counts active, unexpired runs.
	CountActive(ctx context.Context) (int, error)
	// Reap deletes expired runs unless archived; returns the number deleted.
	Reap(ctx context.Context) (int64, error)
}

// CacheRepository defines methods for the durable scraping-cache tier.
type CacheRepository interface {
	// Get returns an unexpired entry or ErrNotFound. A hit bumps the
	// entry's access count and last-accessed time.
	Get(ctx context.Context, urlHash string) (*models.CacheEntry, error)
	// Upsert replaces the entry for its hash; a replace increments the
	// existing access count.
	Upsert(ctx context.Context, entry *models.CacheEntry) error
	Delete(ctx context.Context, urlHash string) error
	// DeleteExpired removes entries past their expiry; returns the number
	// deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}

// MetricsRepository defines methods for the api_metrics request log.
type MetricsRepository interface {
	Insert(ctx context.Context, m *models.APIMetric) error
	// DeleteOlderThan removes request-log rows created before the cutoff;
	// returns the number deleted.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Repositories bundles all repository instances.
type Repositories struct {
	Run     RunRepository
	Cache   CacheRepository
	Metrics MetricsRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Run:     NewSQLiteRunRepository(db),
		Cache:   NewSQLiteCacheRepository(db),
		Metrics: NewSQLiteMetricsRepository(db),
	}
}
