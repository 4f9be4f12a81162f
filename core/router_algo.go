package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/encodeous/lsr/perf"
	"github.com/encodeous/lsr/protocol"
	"github.com/encodeous/lsr/state"
)

type RouterEvent int

// trace events

const (
	RouteAdded RouterEvent = iota
	RouteChanged
	RouteRetracted
	AdvertAccepted
	StaleAdvertDropped
	SelfAdvertDropped
	TableRecomputed
	PacketForwarded
	PacketDelivered
	Flooded
)

// warn events

const (
	MalformedAdvert RouterEvent = iota + 1000
	NoRoute
	UnknownPort
	TtlExceeded
	InconsistentState
)

func (e RouterEvent) String() string {
	switch e {
	case RouteAdded:
		return "RouteAdded"
	case RouteChanged:
		return "RouteChanged"
	case RouteRetracted:
		return "RouteRetracted"
	case AdvertAccepted:
		return "AdvertAccepted"
	case StaleAdvertDropped:
		return "StaleAdvertDropped"
	case SelfAdvertDropped:
		return "SelfAdvertDropped"
	case TableRecomputed:
		return "TableRecomputed"
	case PacketForwarded:
		return "PacketForwarded"
	case PacketDelivered:
		return "PacketDelivered"
	case Flooded:
		return "Flooded"
	case MalformedAdvert:
		return "MalformedAdvert"
	case NoRoute:
		return "NoRoute"
	case UnknownPort:
		return "UnknownPort"
	case TtlExceeded:
		return "TtlExceeded"
	case InconsistentState:
		return "InconsistentState"
	default:
		return fmt.Sprintf("RouterEvent(%d)", int(e))
	}
}

func (e RouterEvent) IsWarning() bool {
	return e >= MalformedAdvert
}

// Router is an interface that defines the operations the host provides to the routing algorithm
type Router interface {
	// Send hands pkt to the link attached at port. Delivery is best effort and must not block.
	Send(port state.Port, pkt *protocol.Packet)
	// Deliver hands a trace addressed to this node back to the host.
	Deliver(pkt *protocol.Packet)
	Log(event RouterEvent, desc string, args ...any)
}

// RouteObserver is implemented by routers that want every forwarding table change.
type RouteObserver interface {
	RouteChanged(c state.RouteChange)
}

// HandleNewLink attaches neigh at port and advertises the new neighbour set.
func HandleNewLink(s *state.RouterState, r Router, port state.Port, neigh state.NodeId, cost state.Cost) {
	s.Neighbours.LinkUp(neigh, cost, port)
	s.Seqno++
	ComputeRoutes(s, r)
	Flood(s, r)
}

// HandleRemoveLink detaches whatever is at port. Unknown ports are ignored without advertising.
func HandleRemoveLink(s *state.RouterState, r Router, port state.Port) {
	if _, ok := s.Neighbours.LinkDown(port); !ok {
		r.Log(UnknownPort, "link down on unknown port", "port", port)
		return
	}
	s.Seqno++
	ComputeRoutes(s, r)
	Flood(s, r)
}

// HandleTime re-advertises once every heartbeat. The first call always advertises.
func HandleTime(s *state.RouterState, r Router, now time.Time) {
	if !s.LastAdvertise.IsZero() && now.Sub(s.LastAdvertise) < s.Heartbeat {
		return
	}
	s.Seqno++
	Flood(s, r)
	s.LastAdvertise = now
}

// HandlePacket processes a packet that arrived on port. Locally originated traces use state.NoPort.
func HandlePacket(s *state.RouterState, r Router, port state.Port, pkt *protocol.Packet) {
	switch pkt.Kind {
	case protocol.Routing:
		handleAdvert(s, r, port, pkt)
	case protocol.Trace:
		handleTrace(s, r, pkt)
	default:
		r.Log(InconsistentState, "unknown packet kind", "port", port, "kind", pkt.Kind)
	}
}

func handleAdvert(s *state.RouterState, r Router, port state.Port, pkt *protocol.Packet) {
	adv, err := protocol.DecodeAdvertisement(pkt.Content)
	if err != nil {
		r.Log(MalformedAdvert, "dropped malformed advertisement", "port", port, "error", err)
		return
	}
	if adv.Origin == s.Id {
		r.Log(SelfAdvertDropped, "dropped own advertisement", "port", port, "seqno", adv.Seqno)
		return
	}
	if s.Db.Offer(adv.Origin, adv.Costs(), adv.Seqno) == state.Stale {
		r.Log(StaleAdvertDropped, "stale advertisement dropped", "origin", adv.Origin, "seqno", adv.Seqno)
		return
	}
	r.Log(AdvertAccepted, "advertisement accepted", "origin", adv.Origin, "seqno", adv.Seqno)
	ComputeRoutes(s, r)

	// reverse path flooding, the database staleness check is what terminates the flood
	for _, n := range s.Neighbours.All() {
		if n.Port == port {
			continue
		}
		r.Send(n.Port, pkt)
	}
}

func handleTrace(s *state.RouterState, r Router, pkt *protocol.Packet) {
	pkt.Hops = append(pkt.Hops, s.Id)
	if pkt.Dst == s.Id {
		r.Log(PacketDelivered, "trace delivered", "pkt", pkt)
		r.Deliver(pkt)
		return
	}
	route, ok := s.Table.Lookup(pkt.Dst)
	if !ok {
		r.Log(NoRoute, "no route to destination", "pkt", pkt)
		return
	}
	if pkt.TTL <= 1 {
		r.Log(TtlExceeded, "trace ttl exceeded", "pkt", pkt)
		return
	}
	port := s.Neighbours.PortOf(route.Nh)
	if port == state.NoPort {
		r.Log(InconsistentState, "next hop is not a neighbour", "pkt", pkt, "nh", route.Nh)
		return
	}
	pkt.TTL--
	r.Log(PacketForwarded, "trace forwarded", "pkt", pkt, "nh", route.Nh)
	r.Send(port, pkt)
}

// LocalAdvertisement describes the current neighbour set of s under its current seqno.
func LocalAdvertisement(s *state.RouterState) *protocol.Advertisement {
	adv := &protocol.Advertisement{
		Origin:     s.Id,
		Neighbours: make(map[state.NodeId]protocol.AdvertLink, s.Neighbours.Len()),
		Seqno:      s.Seqno,
	}
	for _, n := range s.Neighbours.All() {
		adv.Neighbours[n.Id] = protocol.AdvertLink{Cost: n.Cost, Port: n.Port}
	}
	return adv
}

// Flood sends the local advertisement to every neighbour.
func Flood(s *state.RouterState, r Router) {
	adv := LocalAdvertisement(s)
	content, err := protocol.EncodeAdvertisement(adv)
	if err != nil {
		r.Log(InconsistentState, "failed to encode local advertisement", "error", err)
		return
	}
	for _, n := range s.Neighbours.All() {
		r.Send(n.Port, protocol.NewRouting(s.Id, n.Id, content))
	}
	r.Log(Flooded, "flooded local advertisement", "seqno", s.Seqno, "neighbours", s.Neighbours.Len())
}

// ComputeRoutes rebuilds the forwarding table from the graph and logs every change.
func ComputeRoutes(s *state.RouterState, r Router) {
	changes := s.Table.Recompute(s.Id, s.Graph)
	perf.RecomputeChanges.Add(float64(len(changes)))
	obs, _ := r.(RouteObserver)
	for _, c := range changes {
		if obs != nil {
			obs.RouteChanged(c)
		}
		switch c.Kind {
		case state.RouteNew:
			r.Log(RouteAdded, "new route", "dst", c.Dst, "route", c.New)
		case state.RouteUpdated:
			r.Log(RouteChanged, "route changed", "dst", c.Dst, "old", c.Old, "new", c.New)
		case state.RouteRemoved:
			r.Log(RouteRetracted, "route retracted", "dst", c.Dst, "old", c.Old)
		}
	}
	r.Log(TableRecomputed, "table recomputed", "routes", s.Table.Len(), "changes", len(changes))
}

// DebugString renders the neighbours, the link state database and the forwarding table of s.
func DebugString(s *state.RouterState) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("node %s (seqno %d)\n", s.Id, s.Seqno))
	sb.WriteString("neighbours:\n")
	for _, n := range s.Neighbours.All() {
		sb.WriteString(fmt.Sprintf("  %s port %d cost %d\n", n.Id, n.Port, n.Cost))
	}
	sb.WriteString("lsdb:\n")
	for _, origin := range s.Db.Origins() {
		ls := s.Db.Get(origin)
		ids := make([]state.NodeId, 0, len(ls.Neighbours))
		for id := range ls.Neighbours {
			ids = append(ids, id)
		}
		state.SortIds(ids)
		links := make([]string, 0, len(ids))
		for _, id := range ids {
			links = append(links, fmt.Sprintf("%s: %d", id, ls.Neighbours[id]))
		}
		sb.WriteString(fmt.Sprintf("  %s seqno %d: {%s}\n", origin, ls.Seqno, strings.Join(links, ", ")))
	}
	sb.WriteString("routes:\n")
	for _, line := range strings.Split(s.Table.String(), "\n") {
		if line != "" {
			sb.WriteString("  " + line + "\n")
		}
	}
	var unreachable []string
	for _, id := range s.KnownNodes() {
		if _, ok := s.Table.Lookup(id); !ok && id != s.Id {
			unreachable = append(unreachable, string(id))
		}
	}
	if len(unreachable) != 0 {
		sb.WriteString("unreachable: " + strings.Join(unreachable, ", ") + "\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
