package explore

import (
	"fmt"

	"github.com/o2lab/parbam/block"
	"github.com/o2lab/parbam/domain"
	"github.com/o2lab/parbam/frontier"
	"github.com/o2lab/parbam/stats"
	"github.com/o2lab/parbam/summary"
)

// MissingBlockError is returned when a state enters a block whose summary is
// not available yet. Frontier is the frontier already computing the summary,
// or nil if nobody does.
type MissingBlockError[S, P comparable] struct {
	State            S
	ReducedState     S
	ReducedPrecision P
	Block            *block.Block
	Frontier         *frontier.Frontier[S, P]
}

func (e *MissingBlockError[S, P]) Error() string {
	if e.Frontier != nil {
		return fmt.Sprintf("block %s for %v is being computed by %v", e.Block, e.ReducedState, e.Frontier)
	}
	return fmt.Sprintf("missing block %s for %v", e.Block, e.ReducedState)
}

// Transfer is the successor function under block abstraction. States entering
// a block are answered from the summary cache instead of being followed into
// the block.
type Transfer[S, P comparable] struct {
	dom   domain.Domain[S, P]
	part  *block.Partitioning
	cache *summary.Cache[S, P]
	stats *stats.Stats
}

func NewTransfer[S, P comparable](dom domain.Domain[S, P], part *block.Partitioning, cache *summary.Cache[S, P], st *stats.Stats) *Transfer[S, P] {
	return &Transfer[S, P]{dom: dom, part: part, cache: cache, stats: st}
}

// Successors computes the successors of s inside fr.
func (t *Transfer[S, P]) Successors(fr *frontier.Frontier[S, P], s S, p P) ([]S, error) {
	loc := t.dom.Location(s)
	// A frontier never enters its own block again; partitioning rules out
	// recursion, so its call node is only reached by the root state.
	if b := t.part.BlockForCallNode(loc); b != nil && b != fr.Block() {
		return t.enter(s, p, b)
	}
	if fr.Block() != nil && fr.Block().IsReturnNode(loc) {
		return nil, nil
	}
	var out []S
	for _, e := range loc.Leaving {
		succs, err := t.dom.Successors(s, p, e)
		if err != nil {
			return nil, fmt.Errorf("edge %s: %w", e, err)
		}
		out = append(out, succs...)
	}
	return out, nil
}

func (t *Transfer[S, P]) enter(s S, p P, b *block.Block) ([]S, error) {
	rs, rp := t.dom.Reduce(s, p, b)
	owner, exits, done := t.cache.Lookup(rs, rp, b)
	switch {
	case done:
		t.stats.CacheHit()
		out := make([]S, 0, len(exits))
		for _, exit := range exits {
			out = append(out, t.dom.Expand(s, exit, b))
		}
		return out, nil
	case owner != nil:
		t.stats.CachePending()
	default:
		t.stats.CacheMiss()
	}
	return nil, &MissingBlockError[S, P]{
		State:            s,
		ReducedState:     rs,
		ReducedPrecision: rp,
		Block:            b,
		Frontier:         owner,
	}
}
