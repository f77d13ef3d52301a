package preprocessor

import (
	"errors"

	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/callgraph/static"
	"golang.org/x/tools/go/ssa"
)

// errPrune makes GraphVisitEdgesPreOrder skip the callee of an edge.
var errPrune = errors.New("prune")

// GraphVisitEdgesPreOrder calls edge for every edge reachable from root,
// callers before callees. If edge returns errPrune the callee is not entered;
// any other error stops the walk.
func GraphVisitEdgesPreOrder(root *callgraph.Node, edge func(*callgraph.Edge) error) error {
	seen := make(map[*callgraph.Node]bool)
	var visit func(n *callgraph.Node) error
	visit = func(n *callgraph.Node) error {
		if !seen[n] {
			seen[n] = true
			for _, e := range n.Out {
				err := edge(e)
				if err == errPrune {
					continue
				}
				if err != nil {
					return err
				}
				if err := visit(e.Callee); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return visit(root)
}

// reachableFunctions returns entry and every function with a body it reaches
// through static calls, in visiting order. Callees rejected by follow are
// neither returned nor entered.
func reachableFunctions(prog *ssa.Program, entry *ssa.Function, follow func(*ssa.Function) bool) []*ssa.Function {
	cg := static.CallGraph(prog)
	out := []*ssa.Function{entry}
	root := cg.Nodes[entry]
	if root == nil {
		return out
	}
	seen := map[*ssa.Function]bool{entry: true}
	_ = GraphVisitEdgesPreOrder(root, func(e *callgraph.Edge) error {
		fn := e.Callee.Func
		if fn.Blocks == nil || !follow(fn) {
			return errPrune
		}
		if !seen[fn] {
			seen[fn] = true
			out = append(out, fn)
		}
		return nil
	})
	return out
}
