package synth

import (
	"testing"

	"github.com/o2lab/parbam/cfa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallTreeShape(t *testing.T) {
	o := Options{Depth: 2, Fanout: 3, Calls: 2}
	g, main := CallTree(o)
	assert.Equal(t, "main", main.Name)
	assert.Len(t, g.Functions(), o.Functions())
	assert.Equal(t, 13, o.Functions())
	assert.Len(t, g.Calls(), (3+9)*2)

	_, ok := g.Function("main_2_1")
	assert.True(t, ok)
	for _, n := range g.Nodes() {
		assert.False(t, n.IsTarget())
	}
}

func TestCallTreeTarget(t *testing.T) {
	g, _ := CallTree(Options{Depth: 1, Fanout: 2, Target: true})
	leaf, ok := g.Function("main_1")
	require.True(t, ok)
	var targets []*cfa.Node
	for _, n := range g.Nodes() {
		if n.IsTarget() {
			targets = append(targets, n)
		}
	}
	require.Len(t, targets, 1)
	assert.Same(t, leaf, targets[0].Function)
}

func TestCallTreeMainOnly(t *testing.T) {
	g, main := CallTree(Options{Work: 1})
	assert.Len(t, g.Functions(), 1)
	assert.Len(t, main.Nodes, 3)
	require.Len(t, main.Entry.Leaving, 1)
}
