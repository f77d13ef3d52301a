// Package domain declares the operations the reachability engine needs from an
// abstract domain. Implementations are fixed at compile time through the state
// and precision type parameters, so the engine never inspects states itself.
package domain

import (
	"github.com/o2lab/parbam/block"
	"github.com/o2lab/parbam/cfa"
)

// Domain is the capability set of one abstract domain over states S with
// precisions P. Reduced states and precisions must compare equal with == when
// they describe the same block entry, since they key the summary cache.
type Domain[S, P comparable] interface {
	// Location returns the program location of s.
	Location(s S) *cfa.Node
	// IsTarget reports whether s violates the property under analysis.
	IsTarget(s S) bool

	// Successors applies the transfer relation along e.
	Successors(s S, p P, e *cfa.Edge) ([]S, error)
	// Merge combines a new state with a reached one. Returning reached
	// unchanged means the states are kept apart.
	Merge(s, reached S, p P) (S, error)
	// Stop reports whether s is covered by reached.
	Stop(s S, reached []S, p P) (bool, error)
	// AdjustPrecision is applied to every state taken from the waitlist.
	AdjustPrecision(s S, p P) (S, P, error)

	// Reduce abstracts s to the part relevant inside b.
	Reduce(s S, p P, b *block.Block) (S, P)
	// Expand rebuilds the caller's view of an exit state of b, given the
	// state that entered b.
	Expand(entry, exit S, b *block.Block) S
}

// MergeSep never merges.
func MergeSep[S comparable](_, reached S) S {
	return reached
}

// StopSep stops if s is already reached.
func StopSep[S comparable](s S, reached []S) bool {
	for _, r := range reached {
		if r == s {
			return true
		}
	}
	return false
}
