package state

import (
	"maps"
	"slices"
)

type OfferResult int

const (
	Accepted OfferResult = iota
	Stale
)

func (r OfferResult) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "stale"
}

// LinkState is the latest accepted advertisement of one origin.
type LinkState struct {
	Seqno      uint64
	Neighbours map[NodeId]Cost
}

// LinkStateDb stores one LinkState per origin and keeps the topology graph consistent with it.
// Entries are never deleted.
type LinkStateDb struct {
	self    NodeId
	graph   *Graph
	entries map[NodeId]*LinkState
}

func NewLinkStateDb(self NodeId, g *Graph) *LinkStateDb {
	return &LinkStateDb{
		self:    self,
		graph:   g,
		entries: make(map[NodeId]*LinkState),
	}
}

// Offer accepts the advertisement iff seqno is strictly newer than the stored one for origin.
// On acceptance the graph is reconciled against the previous neighbour set by set difference.
func (db *LinkStateDb) Offer(origin NodeId, neighbours map[NodeId]Cost, seqno uint64) OfferResult {
	prev, ok := db.entries[origin]
	if ok && seqno <= prev.Seqno {
		return Stale
	}
	next := &LinkState{
		Seqno:      seqno,
		Neighbours: maps.Clone(neighbours),
	}
	if next.Neighbours == nil {
		next.Neighbours = make(map[NodeId]Cost)
	}
	delete(next.Neighbours, origin)
	db.entries[origin] = next

	var old map[NodeId]Cost
	if ok {
		old = prev.Neighbours
	}
	db.reconcile(origin, old, next.Neighbours)
	return Accepted
}

func (db *LinkStateDb) reconcile(origin NodeId, old, cur map[NodeId]Cost) {
	for n, c := range cur {
		if n == db.self {
			continue // our own links come from the neighbour table only
		}
		// also re-adds links that an advertisement of n retracted since origin last asserted them
		db.graph.AddEdge(origin, n, c)
	}
	for n := range old {
		if _, still := cur[n]; still || n == db.self {
			continue
		}
		// the latest advertisement wins, even if n asserted the link earlier
		db.graph.RemoveEdge(origin, n)
	}
}

// Asserts reports whether origin's accepted state lists neigh, and at what cost.
func (db *LinkStateDb) Asserts(origin, neigh NodeId) (Cost, bool) {
	ls, ok := db.entries[origin]
	if !ok {
		return 0, false
	}
	c, ok := ls.Neighbours[neigh]
	return c, ok
}

// Get returns the accepted state for origin, or nil if none was ever accepted.
func (db *LinkStateDb) Get(origin NodeId) *LinkState {
	return db.entries[origin]
}

func (db *LinkStateDb) Origins() []NodeId {
	return slices.Sorted(maps.Keys(db.entries))
}
