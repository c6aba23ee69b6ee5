package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/brandscope/brandscope-api/internal/models"
)

// SQLiteMetricsRepository implements MetricsRepository for SQLite/libsql.
type SQLiteMetricsRepository struct {
	db *sql.DB
}

// NewSQLiteMetricsRepository creates a new SQLite metrics repository.
func NewSQLiteMetricsRepository(db *sql.DB) *SQLiteMetricsRepository {
	return &SQLiteMetricsRepository{db: db}
}

func (r *SQLiteMetricsRepository) Insert(ctx context.Context, m *models.APIMetric) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO api_metrics (id, request_id, method, path, status, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.RequestID,
		m.Method,
		m.Path,
		m.Status,
		m.DurationMS,
		m.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert api metric: %w", err)
	}
	return nil
}

func (r *SQLiteMetricsRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM api_metrics WHERE created_at < ?",
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old api metrics: %w", err)
	}
	return result.RowsAffected()
}
