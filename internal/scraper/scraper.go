// Package scraper converts a brand URL into a ScrapeResult: discover
// candidate pages, probe them, fetch the survivors through the browser
// pool, collapse near-duplicates, and cache the outcome.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/brandscope/brandscope-api/internal/apperr"
	"github.com/brandscope/brandscope-api/internal/browser"
	"github.com/brandscope/brandscope-api/internal/cache"
	"github.com/brandscope/brandscope-api/internal/metrics"
	"github.com/brandscope/brandscope-api/internal/models"
	"github.com/brandscope/brandscope-api/internal/urlutil"
)

const (
	probeTimeout = 5 * time.Second
	pageTimeout  = 15 * time.Second

	// duplicateThreshold is the Jaccard similarity above which a page is
	// considered a near-duplicate of an already-kept one.
	duplicateThreshold = 0.8
)

// commonPaths are the site sections worth sampling for brand analysis.
var commonPaths = []string{
	"/",
	"/about",
	"/about-us",
	"/products",
	"/product",
	"/shop",
	"/collections",
	"/services",
	"/pricing",
	"/features",
	"/how-it-works",
	"/our-story",
	"/story",
	"/mission",
	"/sustainability",
	"/materials",
	"/faq",
	"/blog",
	"/reviews",
	"/contact",
}

// Config tunes the scrape pipeline.
type Config struct {
	// Concurrency caps how many pages are fetched at once.
	Concurrency int
	// AcquireTimeout bounds each fetch's wait for a browser worker.
	AcquireTimeout time.Duration
	// CacheTTL is the lifetime of a written ScrapeResult.
	CacheTTL time.Duration
}

// Scraper runs the discover → probe → fetch → dedupe pipeline with the
// two-tier cache interposed.
type Scraper struct {
	pool    *browser.Pool
	cache   *cache.TwoTier
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

// New creates a scraper. A nil probe client gets a default with the probe
// timeout.
func New(pool *browser.Pool, c *cache.TwoTier, client *http.Client, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 5
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Scraper{pool: pool, cache: c, client: client, metrics: m, logger: logger, cfg: cfg}
}

// Scrape returns the ScrapeResult for a brand URL, from cache when
// possible. Individual probe and fetch failures are absorbed; a pipeline
// that ends with zero pages fails with INSUFFICIENT_DATA.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*models.ScrapeResult, error) {
	canonical, err := urlutil.Canonicalize(rawURL)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	if result, ok := s.cache.Get(ctx, canonical); ok {
		s.logger.Info("scrape served from cache", "url", canonical, "pages", len(result.Pages))
		return result, nil
	}

	start := time.Now()
	domain := urlutil.Domain(canonical)

	candidates := s.discover(canonical)
	probed := s.probe(ctx, candidates)
	if len(probed) == 0 {
		return nil, apperr.InsufficientData(
			fmt.Sprintf("no reachable pages found on %s", domain))
	}

	pages := s.fetch(ctx, probed)
	if len(pages) == 0 {
		return nil, apperr.InsufficientData(
			fmt.Sprintf("no pages could be scraped from %s", domain))
	}

	kept := dedupe(pages)
	duration := time.Since(start)

	result := &models.ScrapeResult{
		Pages: kept,
		Meta: models.ScrapeMeta{
			InputURL:       canonical,
			Domain:         domain,
			URLsDiscovered: len(candidates),
			URLsProbed:     len(probed),
			PagesScraped:   len(pages),
			PagesKept:      len(kept),
			DurationMS:     duration.Milliseconds(),
			ScrapedAt:      time.Now().UTC(),
		},
	}

	s.cache.Put(ctx, canonical, result, s.cfg.CacheTTL)
	s.metrics.ScrapingDurationMS.WithLabelValues(domain).Observe(float64(duration.Milliseconds()))

	s.logger.Info("scrape complete",
		"url", canonical,
		"discovered", len(candidates),
		"probed", len(probed),
		"scraped", len(pages),
		"kept", len(kept),
		"duration_ms", duration.Milliseconds())

	return result, nil
}

// discover combines the site root with the common paths, deduplicated.
func (s *Scraper) discover(canonical string) []string {
	u, err := url.Parse(canonical)
	if err != nil {
		return []string{canonical}
	}
	root := u.Scheme + "://" + u.Host

	seen := make(map[string]bool)
	var out []string
	add := func(candidate string) {
		c, err := urlutil.Canonicalize(candidate)
		if err != nil || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}

	add(canonical)
	for _, p := range commonPaths {
		add(root + p)
	}
	return out
}

// probe HEADs every candidate in parallel and keeps those answering 2xx.
// Order of survivors follows candidate order.
func (s *Scraper) probe(ctx context.Context, candidates []string) []string {
	ok := make([]bool, len(candidates))
	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, candidate string) {
			defer wg.Done()
			ok[i] = s.probeOne(ctx, candidate)
		}(i, candidate)
	}
	wg.Wait()

	var out []string
	for i, candidate := range candidates {
		if ok[i] {
			out = append(out, candidate)
		}
	}
	return out
}

func (s *Scraper) probeOne(ctx context.Context, candidate string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, candidate, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("probe failed", "url", candidate, "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// fetch loads the URLs through the browser pool in batches of the
// configured concurrency. Failed fetches are logged and dropped.
func (s *Scraper) fetch(ctx context.Context, urls []string) []models.Page {
	results := make([]*models.Page, len(urls))

	for batchStart := 0; batchStart < len(urls); batchStart += s.cfg.Concurrency {
		end := batchStart + s.cfg.Concurrency
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for i := batchStart; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				page, err := s.fetchOne(ctx, urls[i])
				if err != nil {
					s.logger.Warn("fetch dropped", "url", urls[i], "error", err)
					return
				}
				results[i] = page
			}(i)
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	var pages []models.Page
	for _, p := range results {
		if p != nil {
			pages = append(pages, *p)
		}
	}
	return pages
}

// fetchOne leases a worker, loads the page, and releases the lease on
// every exit path.
func (s *Scraper) fetchOne(ctx context.Context, pageURL string) (*models.Page, error) {
	lease, err := s.pool.Acquire(ctx, s.cfg.AcquireTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser: %w", err)
	}

	var bctx browser.Context
	defer func() { s.pool.Release(bctx, lease) }()

	bctx, err = lease.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to open browser context: %w", err)
	}

	page, err := bctx.Load(ctx, pageURL, pageTimeout)
	if err != nil {
		return nil, err
	}
	if page.Text == "" {
		return nil, fmt.Errorf("page %s has no extractable text", pageURL)
	}
	return page, nil
}
