package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brandscope/brandscope-api/internal/metrics"
	"github.com/brandscope/brandscope-api/internal/models"
)

// fakeWorker implements Worker without launching a real browser.
type fakeWorker struct {
	closed atomic.Bool
}

func (w *fakeWorker) NewContext() (Context, error) { return &fakeContext{}, nil }
func (w *fakeWorker) Close() error {
	w.closed.Store(true)
	return nil
}

type fakeContext struct {
	closed atomic.Bool
}

func (c *fakeContext) Load(_ context.Context, url string, _ time.Duration) (*models.Page, error) {
	return &models.Page{URL: url, Title: "t", Text: "x"}, nil
}

func (c *fakeContext) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	workers []*fakeWorker
	failAt  int // 0 = never fail; n = nth NewWorker call fails
	calls   int
}

func (f *fakeFactory) NewWorker() (Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, errors.New("launch failed")
	}
	w := &fakeWorker{}
	f.workers = append(f.workers, w)
	return w, nil
}

func newTestPool(t *testing.T, size int) (*Pool, *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	p := NewPool(size, f, metrics.NewForTest(), nil)
	if err := p.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(p.Close)
	return p, f
}

func TestInitIdempotent(t *testing.T) {
	p, f := newTestPool(t, 3)

	if err := p.Init(); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	if f.calls != 3 {
		t.Errorf("expected 3 worker launches, got %d", f.calls)
	}

	stats := p.Stats()
	if stats.Total != 3 || stats.Available != 3 || stats.InUse != 0 || !stats.Initialized {
		t.Errorf("unexpected stats after init: %+v", stats)
	}
}

func TestInitFailureTearsDownLaunchedWorkers(t *testing.T) {
	f := &fakeFactory{failAt: 3}
	p := NewPool(3, f, metrics.NewForTest(), nil)

	err := p.Init()
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *InitError, got %v", err)
	}

	for i, w := range f.workers {
		if !w.closed.Load() {
			t.Errorf("worker %d not torn down after init failure", i)
		}
	}
}

func TestAcquireReleaseArithmetic(t *testing.T) {
	p, _ := newTestPool(t, 2)
	ctx := context.Background()

	l1, err := p.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	l2, err := p.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	stats := p.Stats()
	if stats.InUse != 2 || stats.Available != 0 {
		t.Errorf("unexpected stats at full occupancy: %+v", stats)
	}
	if stats.InUse+stats.Available != stats.Total {
		t.Errorf("occupancy invariant violated: %+v", stats)
	}

	p.Release(nil, l1)
	p.Release(nil, l2)

	stats = p.Stats()
	if stats.InUse != 0 || stats.Available != 2 {
		t.Errorf("unexpected stats after release: %+v", stats)
	}
}

func TestAcquireTimeout(t *testing.T) {
	p, _ := newTestPool(t, 1)
	ctx := context.Background()

	lease, err := p.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer p.Release(nil, lease)

	_, err = p.Acquire(ctx, 20*time.Millisecond)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("expected ErrAcquireTimeout, got %v", err)
	}
}

func TestAcquireBeforeInit(t *testing.T) {
	p := NewPool(1, &fakeFactory{}, metrics.NewForTest(), nil)

	_, err := p.Acquire(context.Background(), time.Second)
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	p, _ := newTestPool(t, 1)

	lease, err := p.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	p.Release(nil, lease)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double release")
		}
	}()
	p.Release(nil, lease)
}

func TestReleaseClosesContext(t *testing.T) {
	p, _ := newTestPool(t, 1)

	lease, err := p.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	bctx, err := lease.NewContext()
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}

	p.Release(bctx, lease)

	if !bctx.(*fakeContext).closed.Load() {
		t.Error("Release should close the context")
	}
}

func TestCloseFailsWaiters(t *testing.T) {
	p, f := newTestPool(t, 1)
	ctx := context.Background()

	lease, err := p.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx, 5*time.Second)
		errCh <- err
	}()

	// Give the waiter time to block, then close under contention.
	time.Sleep(20 * time.Millisecond)
	p.Close()

	if err := <-errCh; !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed for blocked waiter, got %v", err)
	}

	stats := p.Stats()
	if stats.Total != 0 {
		t.Errorf("expected zero-size pool after close, got %+v", stats)
	}

	// The leased worker is closed once released.
	p.Release(nil, lease)
	for i, w := range f.workers {
		if !w.closed.Load() {
			t.Errorf("worker %d still open after close+release", i)
		}
	}

	// Idempotent.
	p.Close()
}

func TestAcquireAfterClose(t *testing.T) {
	p, _ := newTestPool(t, 1)
	p.Close()

	_, err := p.Acquire(context.Background(), time.Second)
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestContentionServesAllWaiters(t *testing.T) {
	p, _ := newTestPool(t, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	var served atomic.Int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Acquire(ctx, 5*time.Second)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			served.Add(1)
			stats := p.Stats()
			if stats.InUse+stats.Available != stats.Total {
				t.Errorf("occupancy invariant violated under contention: %+v", stats)
			}
			time.Sleep(time.Millisecond)
			p.Release(nil, lease)
		}()
	}
	wg.Wait()

	if served.Load() != 10 {
		t.Errorf("expected 10 served acquirers, got %d", served.Load())
	}
}

func TestStatsHoldOccupancyInvariantUnderContention(t *testing.T) {
	p, _ := newTestPool(t, 3)
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// Hammer acquire/release from more goroutines than workers while a
	// sampler watches the arithmetic from outside.
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				lease, err := p.Acquire(ctx, time.Second)
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}
				p.Release(nil, lease)
			}
		}()
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	var violations int
	for time.Now().Before(deadline) {
		stats := p.Stats()
		if stats.InUse+stats.Available != stats.Total {
			violations++
		}
		if stats.InUse > stats.Total {
			t.Fatalf("in_use exceeds pool size: %+v", stats)
		}
	}
	close(stop)
	wg.Wait()

	if violations > 0 {
		t.Errorf("in_use + available != total observed %d times", violations)
	}
}
