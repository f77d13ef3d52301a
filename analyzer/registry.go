package analyzer

import (
	"fmt"
	"sync"

	"github.com/o2lab/parbam/frontier"
	"github.com/o2lab/parbam/pool"
)

// closed is the pending job of a freshly registered executor.
var closed = func() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type registration[S, P comparable] struct {
	exec    *Executor[S, P]
	pending <-chan struct{}
}

// Registry maps live frontiers to their executors and to the last job
// submitted for them. One mutex guards the table, the create-or-reuse
// decisions of missing-block resolution and the extension of job chains.
type Registry[S, P comparable] struct {
	mu      sync.Mutex
	entries map[*frontier.Frontier[S, P]]*registration[S, P]
	created int
	pool    *pool.Pool
}

func NewRegistry[S, P comparable](p *pool.Pool) *Registry[S, P] {
	return &Registry[S, P]{
		entries: make(map[*frontier.Frontier[S, P]]*registration[S, P]),
		pool:    p,
	}
}

func (r *Registry[S, P]) Get(fr *frontier.Frontier[S, P]) (*Executor[S, P], <-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(fr)
}

func (r *Registry[S, P]) Put(fr *frontier.Frontier[S, P], e *Executor[S, P], pending <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(fr, e, pending)
}

func (r *Registry[S, P]) Remove(fr *frontier.Frontier[S, P]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(fr)
}

func (r *Registry[S, P]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Created returns how many sub-executors were created for missing blocks.
func (r *Registry[S, P]) Created() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

func (r *Registry[S, P]) get(fr *frontier.Frontier[S, P]) (*Executor[S, P], <-chan struct{}, bool) {
	reg, ok := r.entries[fr]
	if !ok {
		return nil, nil, false
	}
	return reg.exec, reg.pending, true
}

func (r *Registry[S, P]) put(fr *frontier.Frontier[S, P], e *Executor[S, P], pending <-chan struct{}) {
	r.entries[fr] = &registration[S, P]{exec: e, pending: pending}
}

func (r *Registry[S, P]) remove(fr *frontier.Frontier[S, P]) {
	delete(r.entries, fr)
}

// chain appends job to the job chain of fr. The caller holds r.mu.
func (r *Registry[S, P]) chain(fr *frontier.Frontier[S, P], job pool.Job) error {
	reg, ok := r.entries[fr]
	if !ok {
		return fmt.Errorf("%w: %v", errNotRegistered, fr)
	}
	done, err := r.pool.Submit(reg.pending, job)
	if err != nil {
		return err
	}
	reg.pending = done
	return nil
}
