package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brandscope/brandscope-api/internal/models"
)

// SQLiteRunRepository implements RunRepository for SQLite/libsql.
type SQLiteRunRepository struct {
	db *sql.DB
}

// NewSQLiteRunRepository creates a new SQLite run repository.
func NewSQLiteRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

func (r *SQLiteRunRepository) Create(ctx context.Context, ttl time.Duration) (*models.Run, error) {
	now := time.Now().UTC()
	run := &models.Run{
		ID:        "run_" + uuid.NewString(),
		Status:    models.RunStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	query := `
		INSERT INTO runs (id, status, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.CreatedAt.Format(time.RFC3339),
		run.UpdatedAt.Format(time.RFC3339),
		run.ExpiresAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (r *SQLiteRunRepository) Get(ctx context.Context, runID string) (*models.Run, error) {
	query := `
		SELECT id, status, brand_json, competitors_json, analyzed_json, kernel_json,
			metadata_json, created_at, updated_at, expires_at
		FROM runs
		WHERE id = ? AND status = 'active' AND expires_at > ?
	`
	row := r.db.QueryRowContext(ctx, query, runID, time.Now().UTC().Format(time.RFC3339))

	var (
		run                                                  models.Run
		brandJSON, competitorsJSON, analyzedJSON, kernelJSON sql.NullString
		metadataJSON                                         sql.NullString
		createdAt, updatedAt, expiresAt                      string
	)
	err := row.Scan(&run.ID, &run.Status, &brandJSON, &competitorsJSON, &analyzedJSON,
		&kernelJSON, &metadataJSON, &createdAt, &updatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	run.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)

	if brandJSON.Valid {
		if err := json.Unmarshal([]byte(brandJSON.String), &run.Brand); err != nil {
			return nil, fmt.Errorf("failed to decode brand artifact: %w", err)
		}
	}
	if competitorsJSON.Valid {
		if err := json.Unmarshal([]byte(competitorsJSON.String), &run.CompetitorsTen); err != nil {
			return nil, fmt.Errorf("failed to decode competitors artifact: %w", err)
		}
	}
	if analyzedJSON.Valid {
		if err := json.Unmarshal([]byte(analyzedJSON.String), &run.CompetitorsAnalyzed); err != nil {
			return nil, fmt.Errorf("failed to decode analyzed artifact: %w", err)
		}
	}
	if kernelJSON.Valid {
		if err := json.Unmarshal([]byte(kernelJSON.String), &run.Kernel); err != nil {
			return nil, fmt.Errorf("failed to decode kernel artifact: %w", err)
		}
	}
	if metadataJSON.Valid {
		if err := json.Unmarshal([]byte(metadataJSON.String), &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode run metadata: %w", err)
		}
	}

	return &run, nil
}

// saveSlot atomically replaces one artifact column and bumps updated_at.
func (r *SQLiteRunRepository) saveSlot(ctx context.Context, runID, column string, artifact any) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	// column is one of a fixed set of identifiers, never user input.
	query := fmt.Sprintf(`
		UPDATE runs SET %s = ?, updated_at = ?
		WHERE id = ? AND status = 'active' AND expires_at > ?
	`, column)

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, query, string(data), now, runID, now)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRunRepository) SaveBrand(ctx context.Context, runID string, brand *models.BrandAnalysis) error {
	return r.saveSlot(ctx, runID, "brand_json", brand)
}

func (r *SQLiteRunRepository) SaveCompetitors(ctx context.Context, runID string, candidates []models.CompetitorCandidate) error {
	return r.saveSlot(ctx, runID, "competitors_json", candidates)
}

func (r *SQLiteRunRepository) SaveAnalyzed(ctx context.Context, runID string, analyzed []models.CompetitorAnalysis) error {
	return r.saveSlot(ctx, runID, "analyzed_json", analyzed)
}

func (r *SQLiteRunRepository) SaveKernel(ctx context.Context, runID string, kernel *models.Kernel) error {
	return r.saveSlot(ctx, runID, "kernel_json", kernel)
}

func (r *SQLiteRunRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM runs WHERE status = 'active' AND expires_at > ?",
		time.Now().UTC().Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

func (r *SQLiteRunRepository) Reap(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM runs WHERE expires_at <= ? AND status != 'archived'",
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reap runs: %w", err)
	}
	return result.RowsAffected()
}
