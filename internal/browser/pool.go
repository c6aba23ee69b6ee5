// Package browser maintains a bounded pool of long-lived headless browser
// workers. Callers lease one worker at a time, open short-lived isolated
// contexts on it, and must release the lease on every exit path.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brandscope/brandscope-api/internal/metrics"
	"github.com/brandscope/brandscope-api/internal/models"
)

var (
	// ErrAcquireTimeout is returned when no worker frees up within the
	// acquire deadline.
	ErrAcquireTimeout = errors.New("browser pool: acquire timed out")

	// ErrPoolClosed is returned to acquirers once Close has been called.
	ErrPoolClosed = errors.New("browser pool: closed")

	// ErrNotInitialized is returned when Acquire is called before Init.
	ErrNotInitialized = errors.New("browser pool: not initialized")
)

// InitError reports a failed pool initialization. Workers launched before
// the failure are torn down before it is returned.
type InitError struct {
	cause error
}

func (e *InitError) Error() string { return fmt.Sprintf("browser pool: init failed: %v", e.cause) }
func (e *InitError) Unwrap() error { return e.cause }

// Worker is one long-lived browser process able to produce isolated
// sessions.
type Worker interface {
	// NewContext allocates a fresh isolated session with the fixed
	// viewport and user agent.
	NewContext() (Context, error)
	Close() error
}

// Context is a short-lived isolated browser session.
type Context interface {
	// Load navigates to the URL, waits for network idle, and extracts the
	// page title plus the main text of the body.
	Load(ctx context.Context, url string, timeout time.Duration) (*models.Page, error)
	Close() error
}

// Factory launches workers. The default factory launches headless Chromium
// through go-rod; tests substitute their own.
type Factory interface {
	NewWorker() (Worker, error)
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Total       int  `json:"total"`
	InUse       int  `json:"in_use"`
	Available   int  `json:"available"`
	Initialized bool `json:"initialized"`
}

// Pool hands out exclusive worker leases, at most size concurrent holders.
// Blocked acquirers are served in arrival order.
type Pool struct {
	factory Factory
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu          sync.Mutex
	size        int
	inUse       int
	initialized bool
	closed      bool
	workers     []Worker
	free        chan Worker
	done        chan struct{}
}

// NewPool creates an uninitialized pool of the given size.
func NewPool(size int, factory Factory, m *metrics.Metrics, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		factory: factory,
		metrics: m,
		logger:  logger,
		size:    size,
		done:    make(chan struct{}),
	}
}

// Init launches all workers. Idempotent after the first success. If any
// worker fails to launch, the ones already launched are closed and an
// *InitError is returned.
func (p *Pool) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.initialized {
		return nil
	}

	free := make(chan Worker, p.size)
	var launched []Worker
	for i := 0; i < p.size; i++ {
		w, err := p.factory.NewWorker()
		if err != nil {
			for _, lw := range launched {
				if cerr := lw.Close(); cerr != nil {
					p.logger.Warn("failed to close worker during init teardown", "error", cerr)
				}
			}
			return &InitError{cause: err}
		}
		launched = append(launched, w)
		free <- w
	}

	p.workers = launched
	p.free = free
	p.initialized = true
	p.publishGaugesLocked()
	p.logger.Info("browser pool initialized", "size", p.size)
	return nil
}

// Lease is a temporary exclusive claim on one worker.
type Lease struct {
	pool     *Pool
	worker   Worker
	released bool
	mu       sync.Mutex
}

// NewContext allocates a fresh isolated session on the leased worker.
func (l *Lease) NewContext() (Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		panic("browser pool: context requested on released lease")
	}
	return l.worker.NewContext()
}

// Acquire leases one worker, waiting up to timeout when none is free.
// Fails with ErrAcquireTimeout on expiry and ErrPoolClosed once the pool is
// shut down; waiters are served in arrival order.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if !p.initialized {
		p.mu.Unlock()
		return nil, ErrNotInitialized
	}
	free := p.free
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case w := <-free:
		p.mu.Lock()
		if p.closed {
			// Lost the race with Close; the worker is already orphaned
			// from the free set, shut it down here.
			p.mu.Unlock()
			_ = w.Close()
			return nil, ErrPoolClosed
		}
		p.inUse++
		p.publishGaugesLocked()
		p.mu.Unlock()
		return &Lease{pool: p, worker: w}, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-timer.C:
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release closes the context (nil is tolerated) and returns the worker to
// the free set. Releasing the same lease twice is a fatal invariant
// violation and panics.
func (p *Pool) Release(bctx Context, lease *Lease) {
	if lease == nil {
		panic("browser pool: release of nil lease")
	}

	lease.mu.Lock()
	if lease.released {
		lease.mu.Unlock()
		panic("browser pool: lease released twice")
	}
	lease.released = true
	lease.mu.Unlock()

	if bctx != nil {
		if err := bctx.Close(); err != nil {
			p.logger.Warn("failed to close browser context", "error", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	if p.closed {
		p.publishGaugesLocked()
		if err := lease.worker.Close(); err != nil {
			p.logger.Warn("failed to close worker after pool shutdown", "error", err)
		}
		return
	}
	p.free <- lease.worker
	p.publishGaugesLocked()
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Total:       p.size,
		InUse:       p.inUse,
		Available:   p.availableLocked(),
		Initialized: p.initialized,
	}
}

// availableLocked derives the free-worker count from the lease count rather
// than the channel length, so in_use + available = total holds for every
// observer even while a worker is in flight between the free channel and its
// lease. Clamped at zero: after Close the size drops to zero while
// outstanding leases are still being returned. p.mu must be held.
func (p *Pool) availableLocked() int {
	if !p.initialized || p.closed {
		return 0
	}
	if a := p.size - p.inUse; a > 0 {
		return a
	}
	return 0
}

// Close tears every worker down. Idempotent; outstanding acquirers fail
// with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)

	var idle []Worker
	if p.free != nil {
		for {
			select {
			case w := <-p.free:
				idle = append(idle, w)
				continue
			default:
			}
			break
		}
	}
	p.size = 0
	p.workers = nil
	p.publishGaugesLocked()
	p.mu.Unlock()

	for _, w := range idle {
		if err := w.Close(); err != nil {
			p.logger.Warn("failed to close worker", "error", err)
		}
	}
	p.logger.Info("browser pool closed")
}

// publishGaugesLocked refreshes the pool gauges; p.mu must be held.
func (p *Pool) publishGaugesLocked() {
	if p.metrics == nil {
		return
	}
	p.metrics.BrowserPoolTotal.Set(float64(p.size))
	p.metrics.BrowserPoolInUse.Set(float64(p.inUse))
	p.metrics.BrowserPoolAvailable.Set(float64(p.availableLocked()))
}
