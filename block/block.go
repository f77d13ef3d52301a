package block

import (
	"errors"
	"fmt"
	"sort"

	"github.com/o2lab/parbam/cfa"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

var ErrRecursion = errors.New("recursive call graph")

// Block is a region of the program with one entry node and a set of return
// nodes. Blocks are immutable once built.
type Block struct {
	name    string
	entry   *cfa.Node
	returns map[*cfa.Node]bool
	nodes   map[*cfa.Node]bool
}

func New(name string, entry *cfa.Node, returns []*cfa.Node, nodes []*cfa.Node) *Block {
	b := &Block{
		name:    name,
		entry:   entry,
		returns: make(map[*cfa.Node]bool, len(returns)),
		nodes:   make(map[*cfa.Node]bool, len(nodes)),
	}
	for _, n := range returns {
		b.returns[n] = true
	}
	for _, n := range nodes {
		b.nodes[n] = true
	}
	b.nodes[entry] = true
	return b
}

func (b *Block) Name() string        { return b.name }
func (b *Block) CallNode() *cfa.Node { return b.entry }
func (b *Block) Size() int           { return len(b.nodes) }
func (b *Block) String() string      { return b.name }

func (b *Block) Contains(n *cfa.Node) bool {
	return b.nodes[n]
}

func (b *Block) IsReturnNode(n *cfa.Node) bool {
	return b.returns[n]
}

// ReturnNodes lists the return nodes in node ID order.
func (b *Block) ReturnNodes() []*cfa.Node {
	var out []*cfa.Node
	for n := range b.returns {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Partitioning maps block call nodes to their blocks. The main block covers
// the entry function of the analyzed program.
type Partitioning struct {
	blocks     []*Block
	byCallNode map[*cfa.Node]*Block
	main       *Block
}

func NewPartitioning(main *Block, blocks ...*Block) (*Partitioning, error) {
	p := &Partitioning{
		byCallNode: make(map[*cfa.Node]*Block),
		main:       main,
	}
	for _, b := range append([]*Block{main}, blocks...) {
		if other, ok := p.byCallNode[b.entry]; ok {
			if other == b {
				continue
			}
			return nil, fmt.Errorf("blocks %s and %s share call node %s", other, b, b.entry)
		}
		p.byCallNode[b.entry] = b
		p.blocks = append(p.blocks, b)
	}
	return p, nil
}

func (p *Partitioning) IsCallNode(n *cfa.Node) bool {
	_, ok := p.byCallNode[n]
	return ok
}

// BlockForCallNode returns the block entered at n, or nil.
func (p *Partitioning) BlockForCallNode(n *cfa.Node) *Block {
	return p.byCallNode[n]
}

func (p *Partitioning) ReturnNodes(b *Block) []*cfa.Node {
	return b.ReturnNodes()
}

func (p *Partitioning) Blocks() []*Block {
	return p.blocks
}

func (p *Partitioning) Main() *Block {
	return p.main
}

// FunctionPartitioning makes one block per function of g. Functions with fewer
// than minSize nodes are not turned into blocks and get analyzed inline by
// their callers; the entry function is always a block. Recursive programs are
// rejected because a block that (transitively) enters itself can never reach a
// fixed point under block abstraction.
func FunctionPartitioning(g *cfa.Graph, entry *cfa.Function, minSize int) (*Partitioning, error) {
	if err := checkRecursion(g); err != nil {
		return nil, err
	}
	main := functionBlock(entry)
	var blocks []*Block
	for _, f := range g.Functions() {
		if f == entry || len(f.Nodes) < minSize {
			continue
		}
		blocks = append(blocks, functionBlock(f))
	}
	return NewPartitioning(main, blocks...)
}

func functionBlock(f *cfa.Function) *Block {
	return New(f.Name, f.Entry, []*cfa.Node{f.Exit}, f.Nodes)
}

func checkRecursion(g *cfa.Graph) error {
	cg := simple.NewDirectedGraph()
	ids := make(map[*cfa.Function]int64)
	byID := make(map[int64]*cfa.Function)
	for i, f := range g.Functions() {
		ids[f] = int64(i)
		byID[int64(i)] = f
		cg.AddNode(simple.Node(i))
	}
	for _, c := range g.Calls() {
		if c.Caller == c.Callee {
			return fmt.Errorf("%w: %s calls itself", ErrRecursion, c.Caller)
		}
		from, to := cg.Node(ids[c.Caller]), cg.Node(ids[c.Callee])
		if cg.HasEdgeFromTo(from.ID(), to.ID()) {
			continue
		}
		cg.SetEdge(cg.NewEdge(from, to))
	}
	for _, scc := range topo.TarjanSCC(cg) {
		if len(scc) > 1 {
			var names []string
			for _, n := range scc {
				names = append(names, byID[n.ID()].Name)
			}
			return fmt.Errorf("%w: %v", ErrRecursion, names)
		}
	}
	return nil
}
