package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newDb(self NodeId) (*LinkStateDb, *Graph) {
	g := NewGraph()
	return NewLinkStateDb(self, g), g
}

func TestLinkStateDb_Staleness(t *testing.T) {
	db, g := newDb("S")
	assert.Equal(t, Accepted, db.Offer("X", map[NodeId]Cost{"Y": 3}, 7))
	assert.Equal(t, Stale, db.Offer("X", map[NodeId]Cost{"Y": 9}, 7))
	assert.Equal(t, Stale, db.Offer("X", map[NodeId]Cost{}, 5))

	c, ok := g.Cost("X", "Y")
	assert.True(t, ok)
	assert.Equal(t, Cost(3), c)
	assert.Equal(t, uint64(7), db.Get("X").Seqno)
}

func TestLinkStateDb_CostChange(t *testing.T) {
	db, g := newDb("S")
	db.Offer("X", map[NodeId]Cost{"Y": 3}, 1)
	db.Offer("X", map[NodeId]Cost{"Y": 7}, 2)
	c, _ := g.Cost("X", "Y")
	assert.Equal(t, Cost(7), c)
}

func TestLinkStateDb_Retraction(t *testing.T) {
	db, g := newDb("S")
	db.Offer("X", map[NodeId]Cost{"Y": 3, "Z": 1}, 1)
	db.Offer("Y", map[NodeId]Cost{"X": 3}, 1)

	// X withdraws both. Y's older assertion of X-Y does not keep the edge alive
	db.Offer("X", map[NodeId]Cost{}, 2)
	_, ok := g.Cost("X", "Z")
	assert.False(t, ok)
	_, ok = g.Cost("X", "Y")
	assert.False(t, ok)

	// a newer advertisement from Y asserting the same link restores it
	db.Offer("Y", map[NodeId]Cost{"X": 3}, 2)
	c, ok := g.Cost("X", "Y")
	assert.True(t, ok)
	assert.Equal(t, Cost(3), c)

	db.Offer("Y", map[NodeId]Cost{}, 3)
	_, ok = g.Cost("X", "Y")
	assert.False(t, ok)
	assert.Empty(t, g.Edges())
}

func TestLinkStateDb_SameSizeSwap(t *testing.T) {
	db, g := newDb("S")
	db.Offer("X", map[NodeId]Cost{"Y": 1, "Z": 2}, 1)
	db.Offer("X", map[NodeId]Cost{"Y": 1, "W": 2}, 2)

	_, ok := g.Cost("X", "Z")
	assert.False(t, ok)
	c, ok := g.Cost("X", "W")
	assert.True(t, ok)
	assert.Equal(t, Cost(2), c)
	c, ok = g.Cost("X", "Y")
	assert.True(t, ok)
	assert.Equal(t, Cost(1), c)
}

func TestLinkStateDb_IgnoresSelfEdges(t *testing.T) {
	db, g := newDb("S")
	db.Offer("X", map[NodeId]Cost{"S": 4, "X": 1, "Y": 2}, 1)

	_, ok := g.Cost("S", "X")
	assert.False(t, ok, "edges incident to self come from the neighbour table")
	assert.Equal(t, map[NodeId]Cost{"S": 4, "Y": 2}, db.Get("X").Neighbours)

	db.Offer("X", map[NodeId]Cost{}, 2)
	assert.Empty(t, g.Edges())
}

func TestLinkStateDb_CopiesInput(t *testing.T) {
	db, _ := newDb("S")
	in := map[NodeId]Cost{"Y": 1}
	db.Offer("X", in, 1)
	in["Z"] = 2
	assert.Len(t, db.Get("X").Neighbours, 1)
	assert.Nil(t, db.Get("Q"))
	assert.Equal(t, []NodeId{"X"}, db.Origins())
}
