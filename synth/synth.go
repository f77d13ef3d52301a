// Package synth generates call-tree shaped programs for stress tests and
// benchmarks of the analyzer.
package synth

import (
	"fmt"
	"go/token"

	"github.com/o2lab/parbam/cfa"
)

type Options struct {
	// Depth is the number of call levels below main.
	Depth int
	// Fanout is the number of distinct callees of every inner function.
	Fanout int
	// Calls is how often each callee is called in a row.
	Calls int
	// Target makes the last leaf function reach an error location.
	Target bool
	// Work is the number of plain nodes added to every function body.
	Work int
}

func (o Options) String() string {
	return fmt.Sprintf("depth=%d fanout=%d calls=%d target=%v", o.Depth, o.Fanout, o.Calls, o.Target)
}

// Functions returns how many functions CallTree builds for o, main included.
func (o Options) Functions() int {
	n, level := 1, 1
	for i := 0; i < o.Depth; i++ {
		level *= o.Fanout
		n += level
	}
	return n
}

// CallTree builds a program whose functions form a tree rooted at main.
func CallTree(o Options) (*cfa.Graph, *cfa.Function) {
	if o.Calls < 1 {
		o.Calls = 1
	}
	g := cfa.New()
	line := 0
	pos := func(fn string) token.Position {
		line++
		return token.Position{Filename: fn + ".go", Line: line}
	}

	var leaves []*cfa.Function
	var build func(name string, depth int) *cfa.Function
	build = func(name string, depth int) *cfa.Function {
		f := g.AddFunction(name)
		prev := f.Entry
		for i := 0; i < o.Work; i++ {
			n := f.NewNode(pos(name))
			g.AddEdge(prev, n, "")
			prev = n
		}
		if depth < o.Depth {
			for c := 0; c < o.Fanout; c++ {
				child := build(fmt.Sprintf("%s_%d", name, c), depth+1)
				for k := 0; k < o.Calls; k++ {
					site := f.NewNode(pos(name))
					ret := f.NewNode(pos(name))
					g.AddEdge(prev, site, "")
					g.AddCall(site, child, ret)
					prev = ret
				}
			}
		} else {
			leaves = append(leaves, f)
		}
		g.AddEdge(prev, f.Exit, "")
		return f
	}
	main := build("main", 0)

	if o.Target && len(leaves) > 0 {
		leaf := leaves[len(leaves)-1]
		tgt := leaf.NewTarget(pos(leaf.Name))
		g.AddEdge(leaf.Entry, tgt, "reach_error")
	}
	return g, main
}
