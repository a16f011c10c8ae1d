package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tidal-mcp/internal/shared"
	"golang.org/x/time/rate"
)

// PoolOpts sizes a [Pool].
type PoolOpts struct {
	Workers   int         // Concurrent workers (default: 8, max 32)
	RateLimit float64     // Jobs started per second across all workers (default: 10)
	Logger    *log.Logger // Defaults to a stderr logger
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool is a fixed set of workers executing submitted jobs.
type Pool struct {
	jobs    chan job
	quit    chan struct{}
	limiter *rate.Limiter
	logger  *log.Logger
	workers int
	wg      sync.WaitGroup
	once    sync.Once

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

// NewPool starts the workers.
func NewPool(opts PoolOpts) *Pool {
	switch {
	case opts.Workers <= 0:
		opts.Workers = shared.DefaultWorkers
	case opts.Workers > shared.MaxWorkers:
		opts.Workers = shared.MaxWorkers
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = shared.DefaultRateLimit
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	p := &Pool{
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		logger:  shared.WithLogger(opts.Logger, "component", "pool"),
		workers: opts.Workers,
	}

	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit runs fn on a worker and returns its error. It fails without running fn if ctx ends before a
// worker is free or the pool is closed.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: context.WithoutCancel(ctx), fn: fn, done: make(chan error, 1)}

	select {
	case <-p.quit:
		return shared.ErrPoolClosed
	default:
	}

	select {
	case <-p.quit:
		return shared.ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- j:
	}
	return <-j.done
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			j.done <- p.run(j)
		}
	}
}

func (p *Pool) run(j job) (err error) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("recovered panic in job", "panic", r)
			err = fmt.Errorf("%w: job panicked", shared.ErrInternal)
		}
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}()

	if err := p.limiter.Wait(j.ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return j.fn(j.ctx)
}

// Stats reports pool activity.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}

// Close stops accepting jobs and waits for in-flight jobs to finish. It is safe to call more than once.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}
