// Package location is a reachability domain that tracks the program location
// and the stack of pending call sites.
package location

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/o2lab/parbam/block"
	"github.com/o2lab/parbam/cfa"
	"github.com/o2lab/parbam/domain"
)

// State is a location together with the call sites that are waiting for the
// current function to return, innermost last, encoded as "12/40".
type State struct {
	Node  *cfa.Node
	Stack string
}

func (s State) String() string {
	if s.Stack == "" {
		return fmt.Sprintf("%s@%s", s.Node, s.Node.Function)
	}
	return fmt.Sprintf("%s@%s[%s]", s.Node, s.Node.Function, s.Stack)
}

// Depth is the number of pending call sites.
func (s State) Depth() int {
	if s.Stack == "" {
		return 0
	}
	return strings.Count(s.Stack, "/") + 1
}

func (s State) push(site *cfa.Node) string {
	id := strconv.Itoa(site.ID)
	if s.Stack == "" {
		return id
	}
	return s.Stack + "/" + id
}

func (s State) top() (int, string, bool) {
	if s.Stack == "" {
		return 0, "", false
	}
	rest, last := "", s.Stack
	if i := strings.LastIndexByte(s.Stack, '/'); i >= 0 {
		rest, last = s.Stack[:i], s.Stack[i+1:]
	}
	id, err := strconv.Atoi(last)
	if err != nil {
		return 0, "", false
	}
	return id, rest, true
}

// Precision is the singleton precision; location tracking has nothing to refine.
type Precision struct{}

type Domain struct{}

var _ domain.Domain[State, Precision] = Domain{}

func Initial(n *cfa.Node) (State, Precision) {
	return State{Node: n}, Precision{}
}

func (Domain) Location(s State) *cfa.Node {
	return s.Node
}

func (Domain) IsTarget(s State) bool {
	return s.Node.IsTarget()
}

func (Domain) Successors(s State, _ Precision, e *cfa.Edge) ([]State, error) {
	if e.From != s.Node {
		return nil, fmt.Errorf("edge %s does not leave %s", e, s)
	}
	switch e.Kind {
	case cfa.Call:
		return []State{{Node: e.To, Stack: s.push(e.From)}}, nil
	case cfa.Return:
		id, rest, ok := s.top()
		if !ok || e.CallSite == nil || e.CallSite.ID != id {
			return nil, nil
		}
		return []State{{Node: e.To, Stack: rest}}, nil
	}
	return []State{{Node: e.To, Stack: s.Stack}}, nil
}

func (Domain) Merge(s, reached State, _ Precision) (State, error) {
	return domain.MergeSep(s, reached), nil
}

func (Domain) Stop(s State, reached []State, _ Precision) (bool, error) {
	return domain.StopSep(s, reached), nil
}

func (Domain) AdjustPrecision(s State, p Precision) (State, Precision, error) {
	return s, p, nil
}

// Reduce drops the call stack, so every call of a block from the same location
// shares one summary.
func (Domain) Reduce(s State, p Precision, _ *block.Block) (State, Precision) {
	return State{Node: s.Node}, p
}

func (Domain) Expand(entry, exit State, _ *block.Block) State {
	return State{Node: exit.Node, Stack: joinStacks(entry.Stack, exit.Stack)}
}

func joinStacks(outer, inner string) string {
	switch {
	case outer == "":
		return inner
	case inner == "":
		return outer
	}
	return outer + "/" + inner
}
