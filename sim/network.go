package sim

import (
	"container/heap"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/encodeous/lsr/core"
	"github.com/encodeous/lsr/perf"
	"github.com/encodeous/lsr/protocol"
	"github.com/encodeous/lsr/state"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrUnknownLink = errors.New("unknown link")
)

// Network is a discrete event simulation of routers joined by links. Time only moves inside
// RunUntil, so a run is fully determined by the scenario and the seed.
type Network struct {
	Heartbeat state.Millis
	Tick      state.Millis

	now    state.Millis
	seq    uint64
	queue  eventQueue
	rng    *rand.Rand
	log    *slog.Logger
	nodes  map[state.NodeId]*node
	order  []state.NodeId
	links  map[state.Pair[state.NodeId, state.NodeId]]*link
	specs  []state.NodeSpec
	book   *state.AddressBook
	traces []*TraceResult
	probes map[uint64]*TraceResult
}

type link struct {
	spec state.LinkSpec // PortA and PortB are always assigned
	up   bool
}

func (l *link) latency() state.Millis {
	if l.spec.Latency == 0 {
		return state.ToMillis(state.DefaultLatency)
	}
	return l.spec.Latency
}

func NewNetwork(heartbeat, tick state.Millis, seed uint64, log *slog.Logger) *Network {
	return &Network{
		Heartbeat: heartbeat,
		Tick:      tick,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:       log,
		nodes:     make(map[state.NodeId]*node),
		links:     make(map[state.Pair[state.NodeId, state.NodeId]]*link),
		book:      state.NewAddressBook(nil),
		probes:    make(map[uint64]*TraceResult),
	}
}

// FromScenario builds the network of sc. Its links come up at time 0 and its events are queued.
func FromScenario(sc *state.Scenario, log *slog.Logger) (*Network, error) {
	n := NewNetwork(sc.Heartbeat, sc.Tick, sc.Seed, log)
	for _, spec := range sc.Nodes {
		if err := n.AddNode(spec); err != nil {
			return nil, err
		}
	}
	for _, l := range sc.Links {
		if err := n.AddLink(l); err != nil {
			return nil, err
		}
	}
	for _, ev := range sc.Events {
		n.At(ev.At, func() {
			if err := n.apply(ev); err != nil {
				n.log.Warn("scenario event failed", "at", ev.At, "kind", ev.Kind, "error", err)
			}
		})
	}
	return n, nil
}

func (n *Network) apply(ev state.EventSpec) error {
	switch ev.Kind {
	case state.EventLinkUp:
		return n.AddLink(state.LinkSpec{A: ev.A, B: ev.B, Cost: ev.Cost})
	case state.EventLinkDown:
		return n.RemoveLink(ev.A, ev.B)
	case state.EventTrace:
		_, err := n.Trace(ev.From, ev.To)
		return err
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func (n *Network) Now() state.Millis {
	return n.now
}

// At queues fn to run at time t, or now if t has already passed.
func (n *Network) At(t state.Millis, fn func()) {
	n.seq++
	heap.Push(&n.queue, &event{at: max(t, n.now), seq: n.seq, fn: fn})
}

// RunUntil processes every event up to and including time t.
func (n *Network) RunUntil(t state.Millis) {
	for n.queue.Len() > 0 && n.queue.peek().at <= t {
		ev := heap.Pop(&n.queue).(*event)
		n.now = ev.at
		ev.fn()
	}
	n.now = max(n.now, t)
}

func (n *Network) AddNode(spec state.NodeSpec) error {
	if err := state.NameValidator(string(spec.Id)); err != nil {
		return err
	}
	if _, ok := n.nodes[spec.Id]; ok {
		return fmt.Errorf("duplicate node: %s", spec.Id)
	}
	nd := &node{
		net:   n,
		rs:    state.NewRouterState(spec.Id, n.Heartbeat.Duration()),
		ports: make(map[state.Port]*link),
		log:   n.log.With("node", spec.Id),
	}
	n.nodes[spec.Id] = nd
	n.order = append(n.order, spec.Id)
	n.specs = append(n.specs, spec)
	n.book = state.NewAddressBook(n.specs)
	n.scheduleTick(nd, n.now)
	return nil
}

func (n *Network) scheduleTick(nd *node, at state.Millis) {
	n.At(at, func() {
		core.HandleTime(nd.rs, nd, time.UnixMilli(int64(n.now)))
		n.scheduleTick(nd, n.now+n.Tick)
	})
}

// AddLink brings a link up at the current time. Bringing up an existing link changes its cost.
func (n *Network) AddLink(spec state.LinkSpec) error {
	a, ok := n.nodes[spec.A]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, spec.A)
	}
	b, ok := n.nodes[spec.B]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, spec.B)
	}
	if spec.A == spec.B {
		return fmt.Errorf("link %s, %s: a node cannot link to itself", spec.A, spec.B)
	}
	if err := state.CostValidator(spec.Cost); err != nil {
		return err
	}
	key := state.MakeSortedPair(spec.A, spec.B)
	l, ok := n.links[key]
	if ok {
		l.spec.Cost = spec.Cost
		l.up = true
	} else {
		l = &link{spec: spec, up: true}
		var err error
		if l.spec.PortA, err = a.allocPort(spec.PortA); err != nil {
			return err
		}
		if l.spec.PortB, err = b.allocPort(spec.PortB); err != nil {
			return err
		}
		n.links[key] = l
	}
	a.ports[l.spec.PortA] = l
	b.ports[l.spec.PortB] = l
	n.At(n.now, func() {
		core.HandleNewLink(a.rs, a, l.spec.PortA, b.rs.Id, l.spec.Cost)
	})
	n.At(n.now, func() {
		core.HandleNewLink(b.rs, b, l.spec.PortB, a.rs.Id, l.spec.Cost)
	})
	return nil
}

// RemoveLink takes a link down. Packets still in flight on it are lost. The ports stay reserved
// so the link comes back on the same ports.
func (n *Network) RemoveLink(a, b state.NodeId) error {
	l, ok := n.links[state.MakeSortedPair(a, b)]
	if !ok || !l.up {
		return fmt.Errorf("%w: %s, %s", ErrUnknownLink, a, b)
	}
	l.up = false
	na, nb := n.nodes[l.spec.A], n.nodes[l.spec.B]
	n.At(n.now, func() {
		core.HandleRemoveLink(na.rs, na, l.spec.PortA)
	})
	n.At(n.now, func() {
		core.HandleRemoveLink(nb.rs, nb, l.spec.PortB)
	})
	return nil
}

// Trace injects a probe at from. to is a node id or an address inside a node prefix.
func (n *Network) Trace(from state.NodeId, to string) (*TraceResult, error) {
	src, ok := n.nodes[from]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	dst, ok := n.book.Resolve(to)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not resolve to a node", ErrUnknownNode, to)
	}
	res := &TraceResult{
		Id:     uint64(len(n.traces) + 1),
		From:   from,
		To:     to,
		Dst:    dst,
		SentAt: n.now,
	}
	n.traces = append(n.traces, res)
	n.probes[res.Id] = res
	pkt := protocol.NewTrace(res.Id, from, dst)
	n.At(n.now, func() {
		core.HandlePacket(src.rs, src, state.NoPort, pkt)
	})
	return res, nil
}

func (n *Network) finishTrace(id uint64, status TraceStatus, hops []state.NodeId, reason string) {
	res, ok := n.probes[id]
	if !ok {
		return
	}
	delete(n.probes, id)
	res.Status = status
	res.DoneAt = n.now
	res.Hops = hops
	res.Reason = reason
}

func (n *Network) Traces() []*TraceResult {
	return n.traces
}

// Router exposes the state of a node for inspection. It must not be modified.
func (n *Network) Router(id state.NodeId) (*state.RouterState, bool) {
	nd, ok := n.nodes[id]
	if !ok {
		return nil, false
	}
	return nd.rs, true
}

func (n *Network) Routes(id state.NodeId) map[state.NodeId]state.Route {
	nd, ok := n.nodes[id]
	if !ok {
		return nil
	}
	return nd.rs.Table.Snapshot()
}

// Nodes returns the node ids in the order they were added.
func (n *Network) Nodes() []state.NodeId {
	return n.order
}

// Topology is the graph of links that are currently up.
func (n *Network) Topology() *state.Graph {
	g := state.NewGraph()
	for _, l := range n.links {
		if l.up {
			g.AddEdge(l.spec.A, l.spec.B, l.spec.Cost)
		}
	}
	return g
}

func (n *Network) DebugString(id state.NodeId) string {
	nd, ok := n.nodes[id]
	if !ok {
		return ""
	}
	return core.DebugString(nd.rs)
}

func (n *Network) send(from *node, port state.Port, pkt *protocol.Packet) {
	l, ok := from.ports[port]
	if !ok || !l.up {
		n.lose(pkt, "link down")
		return
	}
	if l.spec.Loss > 0 && n.rng.Float64() < l.spec.Loss {
		perf.PacketsLost.Add(1)
		n.lose(pkt, "lost on link")
		return
	}
	to, toPort := n.nodes[l.spec.B], l.spec.PortB
	if from.rs.Id == l.spec.B {
		to, toPort = n.nodes[l.spec.A], l.spec.PortA
	}
	pkt = pkt.Clone()
	n.At(n.now+l.latency(), func() {
		if !l.up || to.ports[toPort] != l {
			n.lose(pkt, "link down")
			return
		}
		core.HandlePacket(to.rs, to, toPort, pkt)
	})
}

func (n *Network) lose(pkt *protocol.Packet, reason string) {
	if pkt.IsTrace() {
		n.finishTrace(pkt.Id, TraceLost, pkt.Hops, reason)
	}
}
