// Package pool runs chains of jobs on a bounded number of goroutines. The
// first fatal job outcome cancels the pool and is returned by Wait.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var (
	ErrRejected = errors.New("pool is shut down")
	// ErrPanicked wraps the value of a panic raised by a job.
	ErrPanicked = errors.New("job panicked")
)

type Kind int

const (
	Success Kind = iota
	Suppressed
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Suppressed:
		return "suppressed"
	case Fatal:
		return "fatal"
	}
	return "success"
}

// Outcome is the tagged result of one job.
type Outcome struct {
	Kind Kind
	Err  error
}

func Done() Outcome { return Outcome{Kind: Success} }

func Suppress(err error) Outcome { return Outcome{Kind: Suppressed, Err: err} }

func Fail(err error) Outcome { return Outcome{Kind: Fatal, Err: err} }

type Job func(ctx context.Context) Outcome

type Option func(*Pool)

// WithObserver registers a callback invoked with every outcome other than
// Success.
func WithObserver(fn func(Outcome)) Option {
	return func(p *Pool) { p.observe = fn }
}

type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	sem    *semaphore.Weighted

	mu     sync.Mutex
	closed bool

	suppressed atomic.Int64
	observe    func(Outcome)
}

// New creates a pool running at most workers jobs at once. workers <= 0 means
// one per CPU. Cancelling parent shuts the pool down.
func New(parent context.Context, workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		ctx:    gctx,
		cancel: cancel,
		group:  g,
		sem:    semaphore.NewWeighted(int64(workers)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit schedules job to run once after is closed. A nil after means the job
// may run at once. The returned channel is closed when the job has finished or
// was dropped. After Shutdown every submission fails with ErrRejected.
func (p *Pool) Submit(after <-chan struct{}, job Job) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrRejected
	}
	done := make(chan struct{})
	p.group.Go(func() error {
		defer close(done)
		return p.run(after, job)
	})
	return done, nil
}

func (p *Pool) run(after <-chan struct{}, job Job) error {
	if after != nil {
		select {
		case <-after:
		case <-p.ctx.Done():
			p.record(Suppress(p.ctx.Err()))
			return nil
		}
	}
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		p.record(Suppress(err))
		return nil
	}
	defer p.sem.Release(1)
	if err := p.ctx.Err(); err != nil {
		p.record(Suppress(err))
		return nil
	}

	out := call(p.ctx, job)
	p.record(out)
	if out.Kind == Fatal {
		// Cancel before done is closed so chained jobs never start.
		p.Shutdown()
		if out.Err == nil {
			return errors.New("job failed")
		}
		return out.Err
	}
	return nil
}

// call runs job and turns a panic into a fatal outcome.
func call(ctx context.Context, job Job) (out Outcome) {
	defer func() {
		if v := recover(); v != nil {
			out = Fail(fmt.Errorf("%w: %v\n%s", ErrPanicked, v, debug.Stack()))
		}
	}()
	return job(ctx)
}

func (p *Pool) record(out Outcome) {
	if out.Kind == Success {
		return
	}
	if out.Kind == Suppressed {
		p.suppressed.Add(1)
	}
	if p.observe != nil {
		p.observe(out)
	}
}

// Shutdown rejects further submissions and cancels queued and running jobs.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
}

func (p *Pool) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Wait blocks until every submitted job returned and reports the first fatal
// error.
func (p *Pool) Wait() error {
	err := p.group.Wait()
	p.Shutdown()
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	return nil
}

// Suppressed returns the number of dropped or suppressed jobs.
func (p *Pool) Suppressed() int64 {
	return p.suppressed.Load()
}
