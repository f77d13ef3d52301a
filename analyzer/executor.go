package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/o2lab/parbam/block"
	"github.com/o2lab/parbam/explore"
	"github.com/o2lab/parbam/frontier"
	"github.com/o2lab/parbam/pool"
	"github.com/o2lab/parbam/summary"
	log "github.com/sirupsen/logrus"
)

// Executor drives the analysis of one frontier. Its jobs are chained in the
// registry, so at most one of them runs at any time; running catches any
// violation of that.
type Executor[S, P comparable] struct {
	run  *run[S, P]
	fr   *frontier.Frontier[S, P]
	key  summary.Key[S, P]
	main bool
	log  *log.Entry

	// States of fr that wait for a block summary. Only touched by the
	// executor's own jobs.
	dependsOn map[S]struct{}

	depMu         sync.Mutex
	dependingFrom map[*Executor[S, P]]map[S]struct{}

	running    atomic.Bool
	executions int
	retries    int
	done       bool
	target     bool
}

func newExecutor[S, P comparable](r *run[S, P], fr *frontier.Frontier[S, P], key summary.Key[S, P], main bool) *Executor[S, P] {
	return &Executor[S, P]{
		run:           r,
		fr:            fr,
		key:           key,
		main:          main,
		log:           r.log.WithFields(log.Fields{"frontier": fr.String(), "block": fr.Block().Name()}),
		dependsOn:     make(map[S]struct{}),
		dependingFrom: make(map[*Executor[S, P]]map[S]struct{}),
	}
}

func (e *Executor[S, P]) Frontier() *frontier.Frontier[S, P] {
	return e.fr
}

func (e *Executor[S, P]) job(resolved []S) pool.Job {
	return func(ctx context.Context) pool.Outcome {
		return e.execute(ctx, resolved)
	}
}

func (e *Executor[S, P]) execute(ctx context.Context, resolved []S) pool.Outcome {
	if !e.running.CompareAndSwap(false, true) {
		err := fmt.Errorf("%w: %v", ErrConcurrentAccess, e.fr)
		e.log.Error(err)
		return pool.Fail(err)
	}
	defer e.running.Store(false)
	if err := ctx.Err(); err != nil {
		return pool.Suppress(err)
	}

	e.run.stats.ThreadStarted()
	defer e.run.stats.ThreadFinished()
	e.executions++

	if e.done {
		// The summary of a terminated frontier is final.
		return e.notifyParents()
	}
	e.updateStates(resolved)

	status, err := e.run.alg.Run(ctx, e.fr)
	var mb *explore.MissingBlockError[S, P]
	switch {
	case errors.As(err, &mb):
		return e.missingBlock(mb)
	case err != nil && ctx.Err() != nil:
		return pool.Suppress(err)
	case err != nil:
		e.log.WithError(err).Error("Analysis of frontier failed")
		return pool.Fail(fmt.Errorf("frontier %v: %w", e.fr, err))
	case status.TargetFound:
		e.target = true
		return e.terminate()
	case len(e.dependsOn) == 0:
		return e.terminate()
	}
	e.log.Debugf("Waiting for %d block summaries", len(e.dependsOn))
	return pool.Done()
}

// updateStates puts states whose block summary became available back on the
// waitlist.
func (e *Executor[S, P]) updateStates(resolved []S) {
	for _, s := range resolved {
		delete(e.dependsOn, s)
		e.fr.ReAddToWaitlist(s)
	}
}

func (e *Executor[S, P]) missingBlock(mb *explore.MissingBlockError[S, P]) pool.Outcome {
	r := e.run
	r.stats.MissingBlock()
	e.log.WithFields(log.Fields{"event": "missing-block", "entry": fmt.Sprint(mb.ReducedState), "callee": mb.Block.Name()}).
		Debug("Missing block")

	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	callee, err := r.resolve(mb)
	if err != nil {
		e.log.WithError(err).Error("Resolving missing block failed")
		return pool.Fail(err)
	}
	switch {
	case callee == e:
		return pool.Fail(fmt.Errorf("%w: %s depends on itself", block.ErrRecursion, mb.Block))
	case callee != nil:
		e.retries = 0
		e.fr.RemoveOnlyFromWaitlist(mb.State)
		e.dependsOn[mb.State] = struct{}{}
		callee.addParent(e, mb.State)
		if err := r.reg.chain(callee.fr, callee.job(nil)); err != nil {
			return r.chainFailed(err)
		}
	default:
		// The frontier computing the block terminated in the meantime. The
		// state stays on the waitlist and the next run reads the cache.
		e.retries++
		if e.retries > r.opts.retries {
			return pool.Fail(fmt.Errorf("%w: %v in %s after %d attempts", ErrMissingBlockRetries, mb.ReducedState, mb.Block, e.retries))
		}
		e.log.Debugf("Frontier of block %s is gone, retrying (%d)", mb.Block, e.retries)
	}
	if err := r.reg.chain(e.fr, e.job(nil)); err != nil {
		return r.chainFailed(err)
	}
	return pool.Done()
}

func (e *Executor[S, P]) terminate() pool.Outcome {
	r := e.run
	if !e.main {
		if err := r.cache.Put(e.key.State, e.key.Precision, e.key.Block, e.exits(), e.fr); err != nil {
			e.log.WithError(err).Error("Cache update failed")
			return pool.Fail(err)
		}
	}
	e.done = true
	r.stats.FrontierFinished(e.executions)
	event := "finished"
	if e.target {
		event = "target"
	}
	e.log.WithFields(log.Fields{"event": event, "executions": e.executions, "states": e.fr.Size()}).
		Debug("Frontier terminated")

	out := e.notifyParents()
	if e.main {
		r.finish(e)
	}
	return out
}

// exits returns the states in which the block is left. A frontier that hit
// a target is summarized by the target state alone.
func (e *Executor[S, P]) exits() []S {
	if e.target {
		return []S{e.fr.Last()}
	}
	var out []S
	for _, n := range e.run.part.ReturnNodes(e.fr.Block()) {
		out = append(out, e.fr.StatesAt(n)...)
	}
	return out
}

// notifyParents unregisters e and resubmits every executor waiting for it.
func (e *Executor[S, P]) notifyParents() pool.Outcome {
	r := e.run
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	r.reg.remove(e.fr)
	for parent, states := range e.takeParents() {
		if _, _, ok := r.reg.get(parent.fr); !ok {
			// Terminated on a target while waiting.
			continue
		}
		if err := r.reg.chain(parent.fr, parent.job(states)); err != nil {
			return r.chainFailed(err)
		}
	}
	return pool.Done()
}

func (e *Executor[S, P]) addParent(parent *Executor[S, P], s S) {
	e.depMu.Lock()
	defer e.depMu.Unlock()
	states, ok := e.dependingFrom[parent]
	if !ok {
		states = make(map[S]struct{})
		e.dependingFrom[parent] = states
	}
	states[s] = struct{}{}
}

func (e *Executor[S, P]) takeParents() map[*Executor[S, P]][]S {
	e.depMu.Lock()
	defer e.depMu.Unlock()
	out := make(map[*Executor[S, P]][]S, len(e.dependingFrom))
	for parent, states := range e.dependingFrom {
		for s := range states {
			out[parent] = append(out[parent], s)
		}
	}
	e.dependingFrom = make(map[*Executor[S, P]]map[S]struct{})
	return out
}
