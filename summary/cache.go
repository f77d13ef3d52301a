// Package summary caches the results of block analyses. An entry maps a reduced
// block entry to the frontier computing it and, once that frontier is done, to
// the states in which the block can be left.
package summary

import (
	"errors"
	"fmt"
	"sync"

	"github.com/o2lab/parbam/block"
	"github.com/o2lab/parbam/frontier"
)

var (
	// ErrInconsistentSummary reports a second, different result for a key.
	// It means two analyses computed the same block entry, which must never
	// happen.
	ErrInconsistentSummary = errors.New("inconsistent block summary")
	ErrOwnerConflict       = errors.New("block summary owned by another frontier")
)

type Key[S, P comparable] struct {
	State     S
	Precision P
	Block     *block.Block
}

func (k Key[S, P]) String() string {
	return fmt.Sprintf("%v/%v@%s", k.State, k.Precision, k.Block)
}

type Entry[S, P comparable] struct {
	Key   Key[S, P]
	Owner *frontier.Frontier[S, P]
	Exits []S
	Done  bool
}

type Cache[S, P comparable] struct {
	mu      sync.RWMutex
	entries map[Key[S, P]]*Entry[S, P]
}

func NewCache[S, P comparable]() *Cache[S, P] {
	return &Cache[S, P]{entries: make(map[Key[S, P]]*Entry[S, P])}
}

// Lookup returns the owner and, if done, the exit states registered for the
// key. An unknown key yields a nil owner.
func (c *Cache[S, P]) Lookup(s S, p P, b *block.Block) (*frontier.Frontier[S, P], []S, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[Key[S, P]{s, p, b}]
	if !ok {
		return nil, nil, false
	}
	return e.Owner, e.Exits, e.Done
}

// Register records owner as the frontier computing the key. Registering the
// same owner twice is allowed.
func (c *Cache[S, P]) Register(s S, p P, b *block.Block, owner *frontier.Frontier[S, P]) error {
	k := Key[S, P]{s, p, b}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok {
		if e.Owner != owner {
			return fmt.Errorf("%w: %s", ErrOwnerConflict, k)
		}
		return nil
	}
	c.entries[k] = &Entry[S, P]{Key: k, Owner: owner}
	return nil
}

// Put stores the exit states of a finished block analysis. The first result
// wins; putting an equal result again is a no-op and anything else is an
// ErrInconsistentSummary.
func (c *Cache[S, P]) Put(s S, p P, b *block.Block, exits []S, owner *frontier.Frontier[S, P]) error {
	k := Key[S, P]{s, p, b}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		c.entries[k] = &Entry[S, P]{Key: k, Owner: owner, Exits: clone(exits), Done: true}
		return nil
	}
	if e.Owner != owner {
		return fmt.Errorf("%w: %s is owned by %v, not %v", ErrInconsistentSummary, k, e.Owner, owner)
	}
	if e.Done {
		if !sameSet(e.Exits, exits) {
			return fmt.Errorf("%w: %s has exits %v, got %v", ErrInconsistentSummary, k, e.Exits, exits)
		}
		return nil
	}
	e.Exits = clone(exits)
	e.Done = true
	return nil
}

func (c *Cache[S, P]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of all entries.
func (c *Cache[S, P]) Entries() []Entry[S, P] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry[S, P], 0, len(c.entries))
	for _, e := range c.entries {
		cp := *e
		cp.Exits = clone(e.Exits)
		out = append(out, cp)
	}
	return out
}

func clone[S any](states []S) []S {
	out := make([]S, len(states))
	copy(out, states)
	return out
}

func sameSet[S comparable](a, b []S) bool {
	seen := make(map[S]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	other := make(map[S]bool, len(b))
	for _, s := range b {
		if !seen[s] {
			return false
		}
		other[s] = true
	}
	return len(seen) == len(other)
}
