package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-000000",
		Description: "Initial schema",
		Up: []string{
			// Runs - one row per pipeline run; artifact slots stored as JSON
			`CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				status TEXT NOT NULL DEFAULT 'active',
				brand_json TEXT,
				competitors_json TEXT,
				analyzed_json TEXT,
				kernel_json TEXT,
				metadata_json TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				expires_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_expires_at ON runs(expires_at)`,

			// Scraping cache - durable tier, keyed by canonical URL hash,
			// shared across runs
			`CREATE TABLE IF NOT EXISTS scraping_cache (
				url_hash TEXT PRIMARY KEY,
				url TEXT NOT NULL,
				body_json TEXT NOT NULL,
				scraped_at TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				page_count INTEGER NOT NULL DEFAULT 0,
				access_count INTEGER NOT NULL DEFAULT 0,
				last_accessed_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_scraping_cache_expires_at ON scraping_cache(expires_at)`,

			// API metrics - request log, 30-day retention
			`CREATE TABLE IF NOT EXISTS api_metrics (
				id TEXT PRIMARY KEY,
				request_id TEXT NOT NULL,
				method TEXT NOT NULL,
				path TEXT NOT NULL,
				status INTEGER NOT NULL,
				duration_ms INTEGER NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_metrics_created_at ON api_metrics(created_at)`,
		},
	})
}
