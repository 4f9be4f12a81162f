package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Route is a forwarding decision for one destination.
type Route struct {
	Nh   NodeId // next hop node
	Cost Cost   // total path cost
}

func (r Route) String() string {
	return fmt.Sprintf("(nh: %s, cost: %d)", r.Nh, r.Cost)
}

type RouteChangeKind int

const (
	RouteNew RouteChangeKind = iota
	RouteUpdated
	RouteRemoved
)

type RouteChange struct {
	Kind RouteChangeKind
	Dst  NodeId
	Old  Route
	New  Route
}

// ForwardTable maps destinations to next hops. It holds no state of its own beyond the last
// computed result, which is a function of the graph and the source.
type ForwardTable struct {
	routes map[NodeId]Route
}

func NewForwardTable() *ForwardTable {
	return &ForwardTable{routes: make(map[NodeId]Route)}
}

// Recompute rebuilds the table from a single shortest path tree rooted at source. Destinations that
// became unreachable are dropped. The returned changes are sorted by destination.
func (t *ForwardTable) Recompute(source NodeId, g *Graph) []RouteChange {
	tree := g.ShortestPathTree(source)
	next := make(map[NodeId]Route)
	for _, dst := range tree.Reachable() {
		nh, cost, ok := tree.FirstHop(dst)
		if !ok {
			continue
		}
		next[dst] = Route{Nh: nh, Cost: cost}
	}

	changes := make([]RouteChange, 0)
	for dst, nr := range next {
		or, ok := t.routes[dst]
		if !ok {
			changes = append(changes, RouteChange{Kind: RouteNew, Dst: dst, New: nr})
		} else if or != nr {
			changes = append(changes, RouteChange{Kind: RouteUpdated, Dst: dst, Old: or, New: nr})
		}
	}
	for dst, or := range t.routes {
		if _, ok := next[dst]; !ok {
			changes = append(changes, RouteChange{Kind: RouteRemoved, Dst: dst, Old: or})
		}
	}
	slices.SortFunc(changes, func(a, b RouteChange) int {
		return strings.Compare(string(a.Dst), string(b.Dst))
	})
	t.routes = next
	return changes
}

func (t *ForwardTable) Lookup(dst NodeId) (Route, bool) {
	r, ok := t.routes[dst]
	return r, ok
}

// Snapshot copies the table.
func (t *ForwardTable) Snapshot() map[NodeId]Route {
	return maps.Clone(t.routes)
}

func (t *ForwardTable) Len() int {
	return len(t.routes)
}

func (t *ForwardTable) String() string {
	sb := strings.Builder{}
	for _, dst := range slices.Sorted(maps.Keys(t.routes)) {
		sb.WriteString(fmt.Sprintf("%s via %s\n", dst, t.routes[dst]))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
