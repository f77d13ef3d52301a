package block

import (
	"errors"
	"go/token"
	"testing"

	"github.com/o2lab/parbam/cfa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callChain builds main -> f -> g, where g has an extra node.
func callChain(t *testing.T) (*cfa.Graph, *cfa.Function) {
	t.Helper()
	g := cfa.New()
	main := g.AddFunction("main")
	f := g.AddFunction("f")
	h := g.AddFunction("g")

	site := main.NewNode(token.Position{})
	ret := main.NewNode(token.Position{})
	g.AddEdge(main.Entry, site, "")
	g.AddCall(site, f, ret)
	g.AddEdge(ret, main.Exit, "")

	fsite := f.NewNode(token.Position{})
	fret := f.NewNode(token.Position{})
	g.AddEdge(f.Entry, fsite, "")
	g.AddCall(fsite, h, fret)
	g.AddEdge(fret, f.Exit, "")

	g.AddEdge(h.Entry, h.Exit, "")
	return g, main
}

func TestFunctionPartitioning(t *testing.T) {
	g, main := callChain(t)
	p, err := FunctionPartitioning(g, main, 0)
	require.NoError(t, err)
	require.Len(t, p.Blocks(), 3)
	assert.Equal(t, "main", p.Main().Name())

	f, _ := g.Function("f")
	assert.True(t, p.IsCallNode(f.Entry))
	b := p.BlockForCallNode(f.Entry)
	require.NotNil(t, b)
	assert.Same(t, f.Entry, b.CallNode())
	assert.Equal(t, []*cfa.Node{f.Exit}, p.ReturnNodes(b))
	assert.True(t, b.IsReturnNode(f.Exit))
	assert.True(t, b.Contains(f.Nodes[2]))
	assert.False(t, b.Contains(main.Entry))

	assert.False(t, p.IsCallNode(f.Exit))
	assert.Nil(t, p.BlockForCallNode(f.Exit))
}

func TestFunctionPartitioningMinSize(t *testing.T) {
	g, main := callChain(t)
	// g has only entry and exit.
	p, err := FunctionPartitioning(g, main, 3)
	require.NoError(t, err)
	require.Len(t, p.Blocks(), 2)
	h, _ := g.Function("g")
	assert.False(t, p.IsCallNode(h.Entry))
	// The entry function is a block regardless of its size.
	assert.True(t, p.IsCallNode(main.Entry))
}

func TestFunctionPartitioningRejectsRecursion(t *testing.T) {
	g := cfa.New()
	main := g.AddFunction("main")
	a := g.AddFunction("a")
	b := g.AddFunction("b")
	s1 := main.NewNode(token.Position{})
	g.AddCall(s1, a, main.Exit)
	s2 := a.NewNode(token.Position{})
	g.AddCall(s2, b, a.Exit)
	s3 := b.NewNode(token.Position{})
	g.AddCall(s3, a, b.Exit)

	_, err := FunctionPartitioning(g, main, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecursion))
}

func TestFunctionPartitioningRejectsSelfCall(t *testing.T) {
	g := cfa.New()
	main := g.AddFunction("main")
	s := main.NewNode(token.Position{})
	g.AddCall(s, main, main.Exit)

	_, err := FunctionPartitioning(g, main, 0)
	assert.ErrorIs(t, err, ErrRecursion)
}

func TestNewPartitioningSharedCallNode(t *testing.T) {
	g := cfa.New()
	f := g.AddFunction("f")
	b1 := New("b1", f.Entry, []*cfa.Node{f.Exit}, f.Nodes)
	b2 := New("b2", f.Entry, []*cfa.Node{f.Exit}, f.Nodes)
	_, err := NewPartitioning(b1, b2)
	assert.Error(t, err)
}
