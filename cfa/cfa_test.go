package cfa

import (
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFunction(t *testing.T) {
	g := New()
	f := g.AddFunction("main")
	require.NotNil(t, f.Entry)
	require.NotNil(t, f.Exit)
	assert.Equal(t, FunctionEntry, f.Entry.Kind)
	assert.Equal(t, FunctionExit, f.Exit.Kind)
	assert.Same(t, f, g.AddFunction("main"))
	assert.Len(t, g.Functions(), 1)
	assert.Len(t, g.Nodes(), 2)
}

func TestAddCall(t *testing.T) {
	g := New()
	main := g.AddFunction("main")
	callee := g.AddFunction("f")
	site := main.NewNode(token.Position{})
	ret := main.NewNode(token.Position{})
	g.AddEdge(main.Entry, site, "")
	g.AddCall(site, callee, ret)

	require.Len(t, site.Leaving, 1)
	call := site.Leaving[0]
	assert.Equal(t, Call, call.Kind)
	assert.Same(t, callee.Entry, call.To)

	require.Len(t, callee.Exit.Leaving, 1)
	back := callee.Exit.Leaving[0]
	assert.Equal(t, Return, back.Kind)
	assert.Same(t, ret, back.To)
	assert.Same(t, site, back.CallSite)

	require.Len(t, g.Calls(), 1)
	assert.Same(t, main, g.Calls()[0].Caller)
	assert.Same(t, callee, g.Calls()[0].Callee)
}

func TestNodeIDs(t *testing.T) {
	g := New()
	f := g.AddFunction("main")
	n := f.NewNode(token.Position{})
	tgt := f.NewTarget(token.Position{Filename: "a.go", Line: 3})
	assert.Same(t, n, g.Node(n.ID))
	assert.Same(t, tgt, g.Node(tgt.ID))
	assert.True(t, tgt.IsTarget())
	assert.False(t, n.IsTarget())
	assert.Nil(t, g.Node(-1))
	assert.Nil(t, g.Node(100))
	assert.Equal(t, "N2", n.String())
}
