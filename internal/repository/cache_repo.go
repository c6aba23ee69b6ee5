package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brandscope/brandscope-api/internal/models"
)

// SQLiteCacheRepository implements CacheRepository for SQLite/libsql.
type SQLiteCacheRepository struct {
	db *sql.DB
}

// NewSQLiteCacheRepository creates a new SQLite cache repository.
func NewSQLiteCacheRepository(db *sql.DB) *SQLiteCacheRepository {
	return &SQLiteCacheRepository{db: db}
}

func (r *SQLiteCacheRepository) Get(ctx context.Context, urlHash string) (*models.CacheEntry, error) {
	query := `
		SELECT url_hash, url, body_json, scraped_at, expires_at, page_count, access_count, last_accessed_at
		FROM scraping_cache
		WHERE url_hash = ? AND expires_at > ?
	`
	row := r.db.QueryRowContext(ctx, query, urlHash, time.Now().UTC().Format(time.RFC3339))

	var (
		entry                                models.CacheEntry
		bodyJSON                             string
		scrapedAt, expiresAt, lastAccessedAt string
	)
	err := row.Scan(&entry.URLHash, &entry.URL, &bodyJSON, &scrapedAt, &expiresAt,
		&entry.PageCount, &entry.AccessCount, &lastAccessedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(bodyJSON), &entry.Body); err != nil {
		return nil, fmt.Errorf("failed to decode cache body: %w", err)
	}
	entry.ScrapedAt, _ = time.Parse(time.RFC3339, scrapedAt)
	entry.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	entry.LastAccessedAt, _ = time.Parse(time.RFC3339, lastAccessedAt)

	// Hit accounting is best-effort; a failed bump never fails the read.
	now := time.Now().UTC().Format(time.RFC3339)
	_, _ = r.db.ExecContext(ctx,
		"UPDATE scraping_cache SET access_count = access_count + 1, last_accessed_at = ? WHERE url_hash = ?",
		now, urlHash,
	)
	entry.AccessCount++

	return &entry, nil
}

func (r *SQLiteCacheRepository) Upsert(ctx context.Context, entry *models.CacheEntry) error {
	bodyJSON, err := json.Marshal(entry.Body)
	if err != nil {
		return fmt.Errorf("failed to encode cache body: %w", err)
	}

	query := `
		INSERT INTO scraping_cache (url_hash, url, body_json, scraped_at, expires_at, page_count, access_count, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(url_hash) DO UPDATE SET
			url = excluded.url,
			body_json = excluded.body_json,
			scraped_at = excluded.scraped_at,
			expires_at = excluded.expires_at,
			page_count = excluded.page_count,
			access_count = scraping_cache.access_count + 1,
			last_accessed_at = excluded.last_accessed_at
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.URLHash,
		entry.URL,
		string(bodyJSON),
		entry.ScrapedAt.UTC().Format(time.RFC3339),
		entry.ExpiresAt.UTC().Format(time.RFC3339),
		entry.PageCount,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (r *SQLiteCacheRepository) Delete(ctx context.Context, urlHash string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM scraping_cache WHERE url_hash = ?", urlHash); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (r *SQLiteCacheRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM scraping_cache WHERE expires_at <= ?",
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return result.RowsAffected()
}
