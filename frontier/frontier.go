// Package frontier holds the reached set of one block analysis: every state
// found so far with its precision, plus the waitlist of states still to be
// explored.
//
// A Frontier is not safe for concurrent use. The analyzer guarantees that at
// most one job touches a given frontier at any time.
package frontier

import (
	"container/list"
	"fmt"

	"github.com/o2lab/parbam/block"
	"github.com/o2lab/parbam/cfa"
)

type Order int

const (
	DFS Order = iota
	BFS
)

func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "dfs":
		return DFS, nil
	case "bfs":
		return BFS, nil
	}
	return DFS, fmt.Errorf("unknown traversal order %q", s)
}

type Frontier[S, P comparable] struct {
	block  *block.Block
	locate func(S) *cfa.Node
	order  Order

	first S
	last  S

	reached    *list.List
	elems      map[S]*list.Element
	precisions map[S]P
	byLocation map[*cfa.Node][]S

	waitlist *list.List
	waiting  map[S]*list.Element
}

// New creates a frontier rooted at first, the (reduced) entry state of b.
// locate maps states to program locations for partitioned lookups.
func New[S, P comparable](first S, p P, b *block.Block, locate func(S) *cfa.Node, order Order) *Frontier[S, P] {
	f := &Frontier[S, P]{
		block:      b,
		locate:     locate,
		order:      order,
		first:      first,
		reached:    list.New(),
		elems:      make(map[S]*list.Element),
		precisions: make(map[S]P),
		byLocation: make(map[*cfa.Node][]S),
		waitlist:   list.New(),
		waiting:    make(map[S]*list.Element),
	}
	f.Add(first, p)
	return f
}

func (f *Frontier[S, P]) Block() *block.Block { return f.block }
func (f *Frontier[S, P]) First() S            { return f.first }

// Last returns the state added most recently.
func (f *Frontier[S, P]) Last() S { return f.last }

func (f *Frontier[S, P]) Size() int { return len(f.precisions) }

func (f *Frontier[S, P]) Contains(s S) bool {
	_, ok := f.precisions[s]
	return ok
}

// Precision returns the precision s was added with.
func (f *Frontier[S, P]) Precision(s S) (P, bool) {
	p, ok := f.precisions[s]
	return p, ok
}

// Add inserts s into the reached set and the waitlist. Adding a reached state
// only updates its precision.
func (f *Frontier[S, P]) Add(s S, p P) {
	if _, ok := f.precisions[s]; !ok {
		f.elems[s] = f.reached.PushBack(s)
		loc := f.locate(s)
		f.byLocation[loc] = append(f.byLocation[loc], s)
	}
	f.precisions[s] = p
	f.last = s
	f.enqueue(s)
}

// SetPrecision changes the precision of a reached state without scheduling
// it again. Unknown states are ignored.
func (f *Frontier[S, P]) SetPrecision(s S, p P) {
	if f.Contains(s) {
		f.precisions[s] = p
	}
}

// Replace substitutes a reached state by its merge result.
func (f *Frontier[S, P]) Replace(old, s S, p P) {
	f.Remove(old)
	f.Add(s, p)
}

// Remove drops s from the reached set and the waitlist.
func (f *Frontier[S, P]) Remove(s S) {
	if _, ok := f.precisions[s]; !ok {
		return
	}
	delete(f.precisions, s)
	f.reached.Remove(f.elems[s])
	delete(f.elems, s)
	f.RemoveOnlyFromWaitlist(s)
	loc := f.locate(s)
	f.byLocation[loc] = without(f.byLocation[loc], s)
	if len(f.byLocation[loc]) == 0 {
		delete(f.byLocation, loc)
	}
}

// ReAddToWaitlist schedules a reached state for exploration again. States
// already waiting are not duplicated; unknown states are ignored.
func (f *Frontier[S, P]) ReAddToWaitlist(s S) bool {
	if !f.Contains(s) {
		return false
	}
	f.enqueue(s)
	return true
}

// RemoveOnlyFromWaitlist keeps s reached but stops it from being explored.
func (f *Frontier[S, P]) RemoveOnlyFromWaitlist(s S) {
	if e, ok := f.waiting[s]; ok {
		f.waitlist.Remove(e)
		delete(f.waiting, s)
	}
}

func (f *Frontier[S, P]) HasWaiting() bool {
	return f.waitlist.Len() > 0
}

func (f *Frontier[S, P]) Waiting() int {
	return f.waitlist.Len()
}

func (f *Frontier[S, P]) IsWaiting(s S) bool {
	_, ok := f.waiting[s]
	return ok
}

// Pop takes the next state from the waitlist, depth-first or breadth-first
// depending on the frontier's order.
func (f *Frontier[S, P]) Pop() (S, P, bool) {
	var zero S
	var zp P
	e := f.waitlist.Back()
	if f.order == BFS {
		e = f.waitlist.Front()
	}
	if e == nil {
		return zero, zp, false
	}
	s := f.waitlist.Remove(e).(S)
	delete(f.waiting, s)
	return s, f.precisions[s], true
}

// States returns the reached states in insertion order.
func (f *Frontier[S, P]) States() []S {
	out := make([]S, 0, f.reached.Len())
	for e := f.reached.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(S))
	}
	return out
}

// StatesAt returns the reached states located at n.
func (f *Frontier[S, P]) StatesAt(n *cfa.Node) []S {
	return f.byLocation[n]
}

func (f *Frontier[S, P]) String() string {
	return fmt.Sprintf("%v", f.first)
}

func (f *Frontier[S, P]) enqueue(s S) {
	if _, ok := f.waiting[s]; ok {
		return
	}
	f.waiting[s] = f.waitlist.PushBack(s)
}

func without[S comparable](states []S, s S) []S {
	for i, x := range states {
		if x == s {
			return append(states[:i:i], states[i+1:]...)
		}
	}
	return states
}
