// Package worker runs the background maintenance loops: the active-run
// gauge refresh and the hourly expiry sweep over runs, the scrape cache,
// and the request log.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brandscope/brandscope-api/internal/metrics"
	"github.com/brandscope/brandscope-api/internal/repository"
)

// Reaper owns the maintenance loops.
type Reaper struct {
	repos     *repository.Repositories
	m         *metrics.Metrics
	retention time.Duration

	gaugeInterval time.Duration
	sweepInterval time.Duration

	stop   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// Config holds reaper configuration.
type Config struct {
	// GaugeInterval is how often the active-run gauge is refreshed.
	GaugeInterval time.Duration
	// SweepInterval is how often expired rows are deleted.
	SweepInterval time.Duration
	// MetricsRetention is how long api_metrics rows are kept.
	MetricsRetention time.Duration
}

// New creates a reaper.
func New(repos *repository.Repositories, m *metrics.Metrics, cfg Config, logger *slog.Logger) *Reaper {
	if cfg.GaugeInterval == 0 {
		cfg.GaugeInterval = 60 * time.Second
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.MetricsRetention == 0 {
		cfg.MetricsRetention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		repos:         repos,
		m:             m,
		retention:     cfg.MetricsRetention,
		gaugeInterval: cfg.GaugeInterval,
		sweepInterval: cfg.SweepInterval,
		stop:          make(chan struct{}),
		logger:        logger.With("component", "reaper"),
	}
}

// Start launches the maintenance loops. Both run an immediate pass so
// gauges and retention hold from startup, not one interval later.
func (r *Reaper) Start(ctx context.Context) {
	r.logger.Info("starting",
		"gauge_interval", r.gaugeInterval.String(),
		"sweep_interval", r.sweepInterval.String(),
		"metrics_retention", r.retention.String(),
	)

	r.wg.Add(2)
	go r.runGaugeLoop(ctx)
	go r.runSweepLoop(ctx)
}

// Stop gracefully stops the loops.
func (r *Reaper) Stop() {
	r.logger.Info("stopping")
	close(r.stop)
	r.wg.Wait()
	r.logger.Info("stopped")
}

func (r *Reaper) runGaugeLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.gaugeInterval)
	defer ticker.Stop()

	r.refreshGauges(ctx)
	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshGauges(ctx)
		}
	}
}

func (r *Reaper) runSweepLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) refreshGauges(ctx context.Context) {
	count, err := r.repos.Run.CountActive(ctx)
	if err != nil {
		r.logger.Error("failed to count active runs", "error", err)
		return
	}
	r.m.RunsActive.Set(float64(count))
}

func (r *Reaper) sweep(ctx context.Context) {
	runs, err := r.repos.Run.Reap(ctx)
	if err != nil {
		r.logger.Error("failed to reap expired runs", "error", err)
	}

	cacheRows, err := r.repos.Cache.DeleteExpired(ctx)
	if err != nil {
		r.logger.Error("failed to expire cache entries", "error", err)
	}

	metricRows, err := r.repos.Metrics.DeleteOlderThan(ctx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Error("failed to trim request log", "error", err)
	}

	if runs > 0 || cacheRows > 0 || metricRows > 0 {
		r.logger.Info("sweep complete",
			"runs_reaped", runs,
			"cache_entries_expired", cacheRows,
			"metric_rows_trimmed", metricRows,
		)
	}
}
