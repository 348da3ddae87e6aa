// Package worker runs batch items on a bounded pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/okian/exodetect/pkg/logger"
	"github.com/okian/exodetect/pkg/metrics"
)

// Pool evaluates indexed tasks with at most a fixed number of goroutines.
// A Pool holds no goroutines between calls and is safe for concurrent use.
type Pool struct {
	workers int
	name    string
	logger  logger.Logger
}

// NewPool creates a pool. Without WithWorkers it uses runtime.NumCPU().
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		workers: runtime.NumCPU(),
		name:    "worker-pool",
		logger:  logger.Get(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named(p.name)
	return p
}

// Workers returns the pool's concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// Run calls fn for every index in [0, n). A failure at index i cancels the
// context of running calls above i and stops dispatch; calls below i run to
// completion. The returned error is the failure with the lowest index,
// preferring real failures over cancellations.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	r := newRun(n)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(p.workers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.AddWorkerActive(1)
			defer metrics.AddWorkerActive(-1)
			for i := range jobs {
				tctx, ok := r.begin(ctx, i)
				if !ok {
					continue
				}
				r.end(i, p.call(tctx, i, fn))
				metrics.RecordWorkerTask()
			}
		}()
	}

	dispatched := 0
dispatch:
	for ; dispatched < n; dispatched++ {
		select {
		case jobs <- dispatched:
		case <-r.stop:
			break dispatch
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	var canceled error
	for _, err := range r.errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if canceled == nil {
				canceled = err
			}
			continue
		}
		return err
	}
	if canceled != nil {
		return canceled
	}
	if dispatched < n {
		// Parent context ended before every task was dispatched.
		return context.Cause(ctx)
	}
	return nil
}

// run tracks one Run call. failed is the lowest failing index so far, or n.
type run struct {
	mu      sync.Mutex
	failed  int
	running map[int]context.CancelFunc
	errs    []error
	stop    chan struct{}
}

func newRun(n int) *run {
	return &run{
		failed:  n,
		running: make(map[int]context.CancelFunc),
		errs:    make([]error, n),
		stop:    make(chan struct{}),
	}
}

// begin returns the context for task i, or false when a lower index has
// already failed.
func (r *run) begin(ctx context.Context, i int) (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i > r.failed {
		return nil, false
	}
	tctx, cancel := context.WithCancel(ctx)
	r.running[i] = cancel
	return tctx, true
}

func (r *run) end(i int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[i]()
	delete(r.running, i)
	if err == nil {
		return
	}
	r.errs[i] = err
	if i >= r.failed {
		return
	}
	if r.failed == len(r.errs) {
		close(r.stop)
	}
	r.failed = i
	for j, cancel := range r.running {
		if j > i {
			cancel()
		}
	}
}

func (p *Pool) call(ctx context.Context, i int, fn func(ctx context.Context, i int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			p.logger.Error(ctx, "task panicked", logger.Int("index", i), logger.Any("panic", r))
			err = fmt.Errorf("task %d panicked: %v", i, r)
		}
	}()
	return fn(ctx, i)
}
