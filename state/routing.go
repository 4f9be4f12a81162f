package state

import (
	"fmt"
	"time"
)

// NodeId names a router. No two routers share an id.
type NodeId string

// Port is a local egress port, unique per attached link on one node.
type Port int

// Cost is a link or path weight.
type Cost uint64

// RouterState is everything one node knows. It must only be touched from the node's dispatch goroutine.
type RouterState struct {
	Id            NodeId
	Seqno         uint64
	Heartbeat     time.Duration
	LastAdvertise time.Time
	Graph         *Graph
	Db            *LinkStateDb
	Neighbours    *NeighbourTable
	Table         *ForwardTable
}

func NewRouterState(id NodeId, heartbeat time.Duration) *RouterState {
	g := NewGraph()
	return &RouterState{
		Id:         id,
		Heartbeat:  heartbeat,
		Graph:      g,
		Db:         NewLinkStateDb(id, g),
		Neighbours: NewNeighbourTable(id, g),
		Table:      NewForwardTable(),
	}
}

// KnownNodes returns every node this router has heard of, whether or not it is reachable.
func (s *RouterState) KnownNodes() []NodeId {
	seen := make(map[NodeId]struct{})
	seen[s.Id] = struct{}{}
	for _, n := range s.Graph.Nodes() {
		seen[n] = struct{}{}
	}
	for _, o := range s.Db.Origins() {
		seen[o] = struct{}{}
		for n := range s.Db.Get(o).Neighbours {
			seen[n] = struct{}{}
		}
	}
	out := make([]NodeId, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	SortIds(out)
	return out
}

func (c Cost) String() string {
	return fmt.Sprintf("%d", uint64(c))
}
