// Package analyzer computes the reached set of a program block by block. Every
// block entry is analyzed by its own executor on a shared worker pool; block
// results are exchanged through a summary cache.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/o2lab/parbam/block"
	"github.com/o2lab/parbam/domain"
	"github.com/o2lab/parbam/explore"
	"github.com/o2lab/parbam/frontier"
	"github.com/o2lab/parbam/pool"
	"github.com/o2lab/parbam/stats"
	"github.com/o2lab/parbam/summary"
	log "github.com/sirupsen/logrus"
)

var (
	ErrConcurrentAccess    = errors.New("frontier accessed by two jobs at once")
	ErrMissingBlockRetries = errors.New("missing block could not be resolved")
	ErrStalled             = errors.New("analysis stalled before the main frontier terminated")

	errNotRegistered = errors.New("frontier is not registered")
)

type Verdict int

const (
	NoTargetFound Verdict = iota
	TargetFound
	Aborted
)

func (v Verdict) String() string {
	switch v {
	case TargetFound:
		return "target found"
	case Aborted:
		return "aborted"
	}
	return "no target found"
}

type Result[S, P comparable] struct {
	Verdict Verdict
	// Target is the target state of the main frontier if Verdict is
	// TargetFound.
	Target    S
	Summaries []summary.Entry[S, P]
	Stats     stats.Snapshot
	// FrontiersCreated counts the executors created for missing blocks.
	FrontiersCreated int
}

type options struct {
	logger  *log.Logger
	workers int
	retries int
	order   frontier.Order
	stats   *stats.Stats
}

type Option func(*options)

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWorkers bounds the number of concurrently running jobs. n <= 0 means
// one per CPU.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithMissingBlockRetries bounds how often in a row an executor may find the
// frontier of a missing block gone.
func WithMissingBlockRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithOrder sets the traversal order of frontiers created for blocks.
func WithOrder(order frontier.Order) Option {
	return func(o *options) { o.order = order }
}

func WithStats(s *stats.Stats) Option {
	return func(o *options) { o.stats = s }
}

type Analyzer[S, P comparable] struct {
	dom  domain.Domain[S, P]
	part *block.Partitioning
	opts options
}

func New[S, P comparable](dom domain.Domain[S, P], part *block.Partitioning, opts ...Option) *Analyzer[S, P] {
	o := options{
		logger:  log.StandardLogger(),
		retries: 3,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Analyzer[S, P]{dom: dom, part: part, opts: o}
}

// MainFrontier creates the frontier of the whole program, rooted at s.
func (a *Analyzer[S, P]) MainFrontier(s S, p P, order frontier.Order) *frontier.Frontier[S, P] {
	return frontier.New(s, p, a.part.Main(), a.dom.Location, order)
}

// Analyze explores main and every block it enters until main terminates. It
// blocks until all jobs have returned. A cancelled ctx yields the Aborted
// verdict, not an error.
func (a *Analyzer[S, P]) Analyze(ctx context.Context, main *frontier.Frontier[S, P]) (Result[S, P], error) {
	r := a.newRun(ctx)
	st := r.stats
	exec := newExecutor(r, main, summary.Key[S, P]{}, true)
	r.log.WithField("blocks", len(a.part.Blocks())).Info("Starting analysis")
	r.reg.mu.Lock()
	r.reg.put(main, exec, closed)
	err := r.reg.chain(main, exec.job(nil))
	r.reg.mu.Unlock()
	if err != nil {
		r.pool.Shutdown()
		return Result[S, P]{}, err
	}
	st.ObserveFrontiers(1)

	err = r.pool.Wait()
	res := Result[S, P]{
		Summaries:        r.cache.Entries(),
		Stats:            st.Snapshot(),
		FrontiersCreated: r.reg.Created(),
	}
	switch {
	case err != nil:
		r.log.WithError(err).Error("Analysis failed")
		return res, err
	case r.mainDone.Load():
		res.Verdict, res.Target = r.verdict, r.target
	case ctx.Err() != nil:
		res.Verdict = Aborted
	default:
		return res, ErrStalled
	}
	r.log.WithFields(log.Fields{"verdict": res.Verdict.String(), "summaries": len(res.Summaries)}).Info("Analysis done")
	return res, nil
}

func (a *Analyzer[S, P]) newRun(ctx context.Context) *run[S, P] {
	st := a.opts.stats
	if st == nil {
		st = stats.New(nil)
	}
	r := &run[S, P]{
		dom:   a.dom,
		part:  a.part,
		opts:  a.opts,
		log:   log.NewEntry(a.opts.logger).WithField("run", uuid.NewString()),
		cache: summary.NewCache[S, P](),
		stats: st,
	}
	r.pool = pool.New(ctx, a.opts.workers, pool.WithObserver(func(o pool.Outcome) {
		if o.Kind == pool.Suppressed {
			st.Suppressed()
		}
	}))
	r.reg = NewRegistry[S, P](r.pool)
	r.alg = explore.New(a.dom, explore.NewTransfer(a.dom, a.part, r.cache, st), st)
	return r
}

// run is the state shared by all executors of one Analyze call.
type run[S, P comparable] struct {
	dom   domain.Domain[S, P]
	part  *block.Partitioning
	opts  options
	log   *log.Entry
	cache *summary.Cache[S, P]
	reg   *Registry[S, P]
	pool  *pool.Pool
	alg   *explore.Algorithm[S, P]
	stats *stats.Stats

	mainDone atomic.Bool
	verdict  Verdict
	target   S
}

// resolve finds the executor computing the block of mb, creating one if
// nobody does. A nil executor means the known frontier already terminated.
// The caller holds r.reg.mu.
func (r *run[S, P]) resolve(mb *explore.MissingBlockError[S, P]) (*Executor[S, P], error) {
	fr := mb.Frontier
	if fr == nil {
		fr, _, _ = r.cache.Lookup(mb.ReducedState, mb.ReducedPrecision, mb.Block)
	}
	if fr == nil {
		return r.create(mb)
	}
	exec, _, ok := r.reg.get(fr)
	if !ok {
		return nil, nil
	}
	return exec, nil
}

func (r *run[S, P]) create(mb *explore.MissingBlockError[S, P]) (*Executor[S, P], error) {
	fr := frontier.New(mb.ReducedState, mb.ReducedPrecision, mb.Block, r.dom.Location, r.opts.order)
	if err := r.cache.Register(mb.ReducedState, mb.ReducedPrecision, mb.Block, fr); err != nil {
		return nil, err
	}
	key := summary.Key[S, P]{State: mb.ReducedState, Precision: mb.ReducedPrecision, Block: mb.Block}
	exec := newExecutor(r, fr, key, false)
	r.reg.put(fr, exec, closed)
	r.reg.created++
	r.stats.FrontierCreated()
	r.stats.ObserveFrontiers(len(r.reg.entries))
	exec.log.WithField("event", "created").Debug("Created frontier")
	return exec, nil
}

func (r *run[S, P]) chainFailed(err error) pool.Outcome {
	if errors.Is(err, pool.ErrRejected) {
		return pool.Suppress(err)
	}
	return pool.Fail(fmt.Errorf("extend job chain: %w", err))
}

func (r *run[S, P]) finish(main *Executor[S, P]) {
	r.verdict = NoTargetFound
	if main.target {
		r.verdict = TargetFound
		r.target = main.fr.Last()
	}
	r.mainDone.Store(true)
	main.log.WithFields(log.Fields{"event": "shutdown", "executions": main.executions}).Info("Main frontier terminated")
	r.pool.Shutdown()
}
