package preprocessor

import (
	"go/token"

	"github.com/o2lab/parbam/cfa"
	log "github.com/sirupsen/logrus"
	"golang.org/x/tools/go/ssa"
)

type builder struct {
	fset      *token.FileSet
	graph     *cfa.Graph
	functions map[*ssa.Function]*cfa.Function
	targets   map[string]bool
	panics    bool
}

// function translates the body of fn. Every basic block starts with its own
// node; every call of a translated function splits the block into a call site
// and a return site.
func (b *builder) function(fn *ssa.Function) {
	f := b.functions[fn]
	log.Debugf("visiting %s: %s", fn, fn.Type())

	starts := make([]*cfa.Node, len(fn.Blocks))
	for i, block := range fn.Blocks {
		starts[i] = f.NewNode(b.blockPos(block))
	}
	if len(starts) > 0 {
		b.graph.AddEdge(f.Entry, starts[0], "")
	}

	for i, block := range fn.Blocks {
		cur := starts[i]
	instrs:
		for _, instr := range block.Instrs {
			switch instr := instr.(type) {
			case *ssa.Call:
				callee := instr.Call.StaticCallee()
				if callee == nil {
					continue
				}
				if b.targets[callee.Name()] {
					b.target(f, cur, instr.Pos(), callee.Name())
					break instrs
				}
				if cf, ok := b.functions[callee]; ok {
					ret := f.NewNode(b.fset.Position(instr.Pos()))
					b.graph.AddCall(cur, cf, ret)
					cur = ret
				}
			case *ssa.Panic:
				if b.panics {
					b.target(f, cur, instr.Pos(), "panic")
				}
				break instrs
			case *ssa.If:
				b.graph.AddEdge(cur, starts[block.Succs[0].Index], "then")
				b.graph.AddEdge(cur, starts[block.Succs[1].Index], "else")
			case *ssa.Jump:
				b.graph.AddEdge(cur, starts[block.Succs[0].Index], "")
			case *ssa.Return:
				b.graph.AddEdge(cur, f.Exit, "return")
			}
		}
	}
}

func (b *builder) target(f *cfa.Function, from *cfa.Node, pos token.Pos, name string) {
	tgt := f.NewTarget(b.fset.Position(pos))
	b.graph.AddEdge(from, tgt, name)
	log.Debugf("Target %s at %s", name, tgt.Pos)
}

func (b *builder) blockPos(block *ssa.BasicBlock) token.Position {
	for _, instr := range block.Instrs {
		if pos := instr.Pos(); pos.IsValid() {
			return b.fset.Position(pos)
		}
	}
	return b.fset.Position(block.Parent().Pos())
}
