package summary

import (
	"sync"
	"testing"

	"github.com/o2lab/parbam/block"
	"github.com/o2lab/parbam/cfa"
	"github.com/o2lab/parbam/frontier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state struct {
	n  *cfa.Node
	id int
}

func fixture() (*block.Block, func(int) *frontier.Frontier[state, int]) {
	g := cfa.New()
	f := g.AddFunction("f")
	b := block.New("f", f.Entry, []*cfa.Node{f.Exit}, f.Nodes)
	mk := func(id int) *frontier.Frontier[state, int] {
		return frontier.New[state, int](state{n: f.Entry, id: id}, 0, b, func(s state) *cfa.Node { return s.n }, frontier.DFS)
	}
	return b, mk
}

func TestLookupMiss(t *testing.T) {
	b, _ := fixture()
	c := NewCache[state, int]()
	owner, exits, done := c.Lookup(state{}, 0, b)
	assert.Nil(t, owner)
	assert.Nil(t, exits)
	assert.False(t, done)
	assert.Equal(t, 0, c.Len())
}

func TestRegisterThenPut(t *testing.T) {
	b, mk := fixture()
	c := NewCache[state, int]()
	fr := mk(1)
	key := fr.First()

	require.NoError(t, c.Register(key, 0, b, fr))
	require.NoError(t, c.Register(key, 0, b, fr))
	owner, exits, done := c.Lookup(key, 0, b)
	assert.Same(t, fr, owner)
	assert.Nil(t, exits)
	assert.False(t, done, "a registered entry is not computed yet")

	exit := state{id: 7}
	require.NoError(t, c.Put(key, 0, b, []state{exit}, fr))
	owner, exits, done = c.Lookup(key, 0, b)
	assert.Same(t, fr, owner)
	assert.Equal(t, []state{exit}, exits)
	assert.True(t, done)

	// Same result again, in a different order, is fine.
	require.NoError(t, c.Put(key, 0, b, []state{exit, exit}, fr))
}

func TestRegisterOwnerConflict(t *testing.T) {
	b, mk := fixture()
	c := NewCache[state, int]()
	a, other := mk(1), mk(1)
	require.NoError(t, c.Register(a.First(), 0, b, a))
	assert.ErrorIs(t, c.Register(a.First(), 0, b, other), ErrOwnerConflict)
}

func TestConflictingPutIsFatal(t *testing.T) {
	b, mk := fixture()
	c := NewCache[state, int]()
	fr := mk(1)
	require.NoError(t, c.Put(fr.First(), 0, b, []state{{id: 1}}, fr))

	err := c.Put(fr.First(), 0, b, []state{{id: 2}}, fr)
	assert.ErrorIs(t, err, ErrInconsistentSummary)

	err = c.Put(fr.First(), 0, b, []state{{id: 1}}, mk(1))
	assert.ErrorIs(t, err, ErrInconsistentSummary, "a second owner for one key")

	_, exits, _ := c.Lookup(fr.First(), 0, b)
	assert.Equal(t, []state{{id: 1}}, exits, "the first result survives")
}

func TestEmptyExitsAreDone(t *testing.T) {
	b, mk := fixture()
	c := NewCache[state, int]()
	fr := mk(1)
	require.NoError(t, c.Put(fr.First(), 0, b, nil, fr))
	_, exits, done := c.Lookup(fr.First(), 0, b)
	assert.True(t, done)
	assert.Empty(t, exits)
}

func TestEntriesCopy(t *testing.T) {
	b, mk := fixture()
	c := NewCache[state, int]()
	fr := mk(1)
	require.NoError(t, c.Put(fr.First(), 0, b, []state{{id: 1}}, fr))
	entries := c.Entries()
	require.Len(t, entries, 1)
	entries[0].Exits[0] = state{id: 9}
	_, exits, _ := c.Lookup(fr.First(), 0, b)
	assert.Equal(t, []state{{id: 1}}, exits)
}

func TestConcurrentRegister(t *testing.T) {
	b, mk := fixture()
	c := NewCache[state, int]()
	owner := mk(1)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Register(owner.First(), 0, b, owner)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, c.Len())
}
