package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/tessera/internal/logging"
)

// Job is one unit of work run by a Pool worker. It reports its result by
// posting to the bridge.
type Job func(ctx context.Context) error

// Pool runs jobs for one category on a fixed set of goroutines fed by a
// bounded queue.
type Pool struct {
	bridge   *Bridge
	category Category
	workers  int
	size     int
	timeout  time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	queue   chan Job
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
	rejected  atomic.Uint64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the job queue capacity.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithJobTimeout bounds every job's context. Zero means no bound.
func WithJobTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.timeout = d
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l *logging.Logger) PoolOption {
	return func(p *Pool) {
		p.log = l
	}
}

// NewPool creates a stopped pool whose failures are reported to b under c.
func NewPool(b *Bridge, c Category, opts ...PoolOption) *Pool {
	p := &Pool{
		bridge:   b,
		category: c,
		workers:  1,
		size:     16,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithComponent("pool").With("category", c)
	return p
}

// Start launches the workers. Jobs see a context derived from ctx that is
// cancelled by Stop.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return ErrAlreadyRunning
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.queue = make(chan Job, p.size)
	p.running.Store(true)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Stop closes the queue and waits for queued jobs to finish or for ctx to
// end, whichever comes first. Jobs still running when ctx ends have their
// context cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.queue)
	cancel := p.cancel
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// TrySubmit queues job without blocking. It returns ErrQueueFull when the
// queue is at capacity.
func (p *Pool) TrySubmit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Load() {
		return ErrNotRunning
	}
	select {
	case p.queue <- job:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		p.bridge.metrics.rejectedJob(p.category)
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	name := fmt.Sprintf("%s-%d", p.category, n)
	for job := range p.queue {
		p.run(ctx, name, job)
	}
}

// run executes one job. A panic marks the category degraded; the worker
// keeps serving the queue.
func (p *Pool) run(ctx context.Context, name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			err := fmt.Errorf("panic: %v", r)
			p.log.Error("job panicked", "worker", name, "err", err, "stack", string(debug.Stack()))
			p.bridge.ReportExit(p.category, name, err)
		}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := job(ctx); err != nil {
		p.failed.Add(1)
		p.log.Debug("job failed", "worker", name, "err", err)
		return
	}
	p.completed.Add(1)
}

// IsRunning reports whether the pool accepts jobs.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// PoolStats contains counters for a pool.
type PoolStats struct {
	Submitted  uint64
	Completed  uint64
	Failed     uint64
	Panicked   uint64
	Rejected   uint64
	QueueDepth int
}

// Stats returns the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	depth := 0
	if p.running.Load() {
		depth = len(p.queue)
	}
	p.mu.Unlock()
	return PoolStats{
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Panicked:   p.panicked.Load(),
		Rejected:   p.rejected.Load(),
		QueueDepth: depth,
	}
}
