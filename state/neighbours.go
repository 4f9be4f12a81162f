package state

import (
	"maps"
	"slices"
)

type Neighbour struct {
	Id   NodeId
	Cost Cost
	Port Port
}

// NeighbourTable holds the links physically attached to this node. It is the only source of edges
// incident to the local node.
type NeighbourTable struct {
	self   NodeId
	graph  *Graph
	byId   map[NodeId]Neighbour
	byPort map[Port]NodeId
}

func NewNeighbourTable(self NodeId, g *Graph) *NeighbourTable {
	return &NeighbourTable{
		self:   self,
		graph:  g,
		byId:   make(map[NodeId]Neighbour),
		byPort: make(map[Port]NodeId),
	}
}

// LinkUp inserts or overwrites the link to neigh and asserts the edge in the graph.
func (t *NeighbourTable) LinkUp(neigh NodeId, cost Cost, port Port) {
	if old, ok := t.byPort[port]; ok && old != neigh {
		t.remove(old)
	}
	if old, ok := t.byId[neigh]; ok && old.Port != port {
		delete(t.byPort, old.Port)
	}
	t.byId[neigh] = Neighbour{Id: neigh, Cost: cost, Port: port}
	t.byPort[port] = neigh
	t.graph.AddEdge(t.self, neigh, cost)
}

// LinkDown removes the link on port. It returns false, changing nothing, if no link uses the port.
func (t *NeighbourTable) LinkDown(port Port) (NodeId, bool) {
	neigh, ok := t.byPort[port]
	if !ok {
		return "", false
	}
	t.remove(neigh)
	return neigh, true
}

func (t *NeighbourTable) remove(neigh NodeId) {
	n := t.byId[neigh]
	delete(t.byId, neigh)
	delete(t.byPort, n.Port)
	t.graph.RemoveEdge(t.self, neigh)
}

func (t *NeighbourTable) Get(neigh NodeId) (Neighbour, bool) {
	n, ok := t.byId[neigh]
	return n, ok
}

func (t *NeighbourTable) ByPort(port Port) (Neighbour, bool) {
	id, ok := t.byPort[port]
	if !ok {
		return Neighbour{}, false
	}
	return t.byId[id], true
}

// PortOf returns the port towards neigh, or NoPort.
func (t *NeighbourTable) PortOf(neigh NodeId) Port {
	if n, ok := t.byId[neigh]; ok {
		return n.Port
	}
	return NoPort
}

// All returns the neighbours sorted by id.
func (t *NeighbourTable) All() []Neighbour {
	out := make([]Neighbour, 0, len(t.byId))
	for _, id := range slices.Sorted(maps.Keys(t.byId)) {
		out = append(out, t.byId[id])
	}
	return out
}

func (t *NeighbourTable) Len() int {
	return len(t.byId)
}
