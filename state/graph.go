package state

import (
	"cmp"
	"container/heap"
	"maps"
	"slices"
)

// Graph is the undirected weighted topology this node believes in. One cost is held per unordered pair.
type Graph struct {
	adj map[NodeId]map[NodeId]Cost
}

type Edge struct {
	Pair[NodeId, NodeId]
	Cost Cost
}

func NewGraph() *Graph {
	return &Graph{adj: make(map[NodeId]map[NodeId]Cost)}
}

// AddEdge inserts or overwrites the cost of {a, b}. It reports whether the graph changed.
func (g *Graph) AddEdge(a, b NodeId, cost Cost) bool {
	if a == b {
		return false // self loops carry no routing information
	}
	if old, ok := g.Cost(a, b); ok && old == cost {
		return false
	}
	g.half(a)[b] = cost
	g.half(b)[a] = cost
	return true
}

// RemoveEdge deletes {a, b} if present. It reports whether the graph changed.
func (g *Graph) RemoveEdge(a, b NodeId) bool {
	if _, ok := g.Cost(a, b); !ok {
		return false
	}
	g.drop(a, b)
	g.drop(b, a)
	return true
}

func (g *Graph) half(n NodeId) map[NodeId]Cost {
	m, ok := g.adj[n]
	if !ok {
		m = make(map[NodeId]Cost)
		g.adj[n] = m
	}
	return m
}

func (g *Graph) drop(a, b NodeId) {
	delete(g.adj[a], b)
	if len(g.adj[a]) == 0 {
		delete(g.adj, a)
	}
}

func (g *Graph) Cost(a, b NodeId) (Cost, bool) {
	c, ok := g.adj[a][b]
	return c, ok
}

// Nodes returns every node with at least one edge, sorted.
func (g *Graph) Nodes() []NodeId {
	return slices.Sorted(maps.Keys(g.adj))
}

func (g *Graph) Neighbours(n NodeId) []NodeId {
	return slices.Sorted(maps.Keys(g.adj[n]))
}

// Edges lists every undirected edge once, sorted by endpoints.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0)
	for a, m := range g.adj {
		for b, c := range m {
			if a < b {
				edges = append(edges, Edge{Pair: Pair[NodeId, NodeId]{a, b}, Cost: c})
			}
		}
	}
	slices.SortFunc(edges, func(x, y Edge) int {
		if c := cmp.Compare(x.V1, y.V1); c != 0 {
			return c
		}
		return cmp.Compare(x.V2, y.V2)
	})
	return edges
}

// Path is a minimum cost node sequence, source first.
type Path struct {
	Nodes []NodeId
	Cost  Cost
}

// NextHop is the node after the source, or the source itself for a zero length path. It reports
// false for the empty Path that stands for "no path".
func (p Path) NextHop() (NodeId, bool) {
	switch len(p.Nodes) {
	case 0:
		return "", false
	case 1:
		return p.Nodes[0], true
	}
	return p.Nodes[1], true
}

// ShortestPath returns the minimum cost path from src to dst. The boolean is false when dst cannot be reached.
func (g *Graph) ShortestPath(src, dst NodeId) (Path, bool) {
	return g.ShortestPathTree(src).PathTo(dst)
}

// SpfTree is the result of a single source shortest path run.
type SpfTree struct {
	Source NodeId
	dist   map[NodeId]spfKey
	parent map[NodeId]NodeId
}

// spfKey orders candidate paths by cost, then by hop count. Preferring fewer hops on equal cost
// makes every hop strictly closer to the destination, so zero cost edges cannot form loops.
type spfKey struct {
	cost Cost
	hops int
}

func (k spfKey) compare(o spfKey) int {
	if c := cmp.Compare(k.cost, o.cost); c != 0 {
		return c
	}
	return cmp.Compare(k.hops, o.hops)
}

type spfItem struct {
	node NodeId
	key  spfKey
}

type spfQueue []spfItem

func (q spfQueue) Len() int { return len(q) }
func (q spfQueue) Less(i, j int) bool {
	if c := q[i].key.compare(q[j].key); c != 0 {
		return c < 0
	}
	return q[i].node < q[j].node
}
func (q spfQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *spfQueue) Push(x any)   { *q = append(*q, x.(spfItem)) }
func (q *spfQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// ShortestPathTree runs Dijkstra from src. Ties on (cost, hops) go to the smaller parent id so the
// tree is identical no matter how the adjacency maps iterate.
func (g *Graph) ShortestPathTree(src NodeId) *SpfTree {
	t := &SpfTree{
		Source: src,
		dist:   map[NodeId]spfKey{src: {}},
		parent: make(map[NodeId]NodeId),
	}
	settled := make(map[NodeId]bool)
	q := &spfQueue{{node: src}}
	for q.Len() > 0 {
		it := heap.Pop(q).(spfItem)
		if settled[it.node] {
			continue // stale queue entry
		}
		settled[it.node] = true
		for v, w := range g.adj[it.node] {
			if settled[v] {
				continue
			}
			cand := spfKey{cost: it.key.cost + w, hops: it.key.hops + 1}
			cur, seen := t.dist[v]
			c := 0
			if seen {
				c = cand.compare(cur)
			}
			if !seen || c < 0 || (c == 0 && it.node < t.parent[v]) {
				t.dist[v] = cand
				t.parent[v] = it.node
				heap.Push(q, spfItem{node: v, key: cand})
			}
		}
	}
	return t
}

// PathTo reconstructs the path to dst, or reports that there is none.
func (t *SpfTree) PathTo(dst NodeId) (Path, bool) {
	k, ok := t.dist[dst]
	if !ok {
		return Path{}, false
	}
	nodes := []NodeId{dst}
	for cur := dst; cur != t.Source; {
		cur = t.parent[cur]
		nodes = append(nodes, cur)
	}
	slices.Reverse(nodes)
	return Path{Nodes: nodes, Cost: k.cost}, true
}

// Reachable lists every node with a path from the source, excluding the source, sorted.
func (t *SpfTree) Reachable() []NodeId {
	out := make([]NodeId, 0, len(t.dist))
	for n := range t.dist {
		if n != t.Source {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// FirstHop walks the parent chain back to the node adjacent to the source.
func (t *SpfTree) FirstHop(dst NodeId) (NodeId, Cost, bool) {
	k, ok := t.dist[dst]
	if !ok || dst == t.Source {
		return "", 0, false
	}
	cur := dst
	for t.parent[cur] != t.Source {
		cur = t.parent[cur]
	}
	return cur, k.cost, true
}
