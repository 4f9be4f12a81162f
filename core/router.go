package core

import (
	"log/slog"
	"time"

	"github.com/encodeous/lsr/perf"
	"github.com/encodeous/lsr/protocol"
	"github.com/encodeous/lsr/state"
)

// Transport moves packets between routers. It is implemented by the host network and must not block.
type Transport interface {
	Send(from state.NodeId, port state.Port, pkt *protocol.Packet)
	Deliver(at state.NodeId, pkt *protocol.Packet)
}

// LinkStateRouter runs the routing algorithm on the dispatch goroutine of one node.
type LinkStateRouter struct {
	*state.State
	Transport Transport
}

func (r *LinkStateRouter) Send(port state.Port, pkt *protocol.Packet) {
	perf.PacketsSent.Add(1)
	if state.DBG_log_packets {
		r.Env.Log.Debug("send", "port", port, "pkt", pkt)
	}
	r.Transport.Send(r.Id, port, pkt)
}

func (r *LinkStateRouter) Deliver(pkt *protocol.Packet) {
	r.Transport.Deliver(r.Id, pkt)
}

func (r *LinkStateRouter) RouteChanged(c state.RouteChange) {
	Get[*RouteTrace](r.State).Submit(RouteUpdate{Node: r.Id, RouteChange: c})
}

func (r *LinkStateRouter) Log(event RouterEvent, desc string, args ...any) {
	LogEvent(r.Env.Log, event, desc, args...)
}

// LogEvent counts the event and writes it to l at the level the debug flags select.
func LogEvent(l *slog.Logger, event RouterEvent, desc string, args ...any) {
	countEvent(event)
	x := make([]any, 0, len(args)+2)
	x = append(x, "event", event)
	x = append(x, args...)
	switch {
	case event.IsWarning():
		l.Warn(desc, x...)
	case event == RouteAdded || event == RouteChanged || event == RouteRetracted:
		if state.DBG_log_route_changes || state.DBG_log_router {
			l.Info(desc, x...)
		}
	case state.DBG_log_router:
		l.Debug(desc, x...)
	}
}

func countEvent(event RouterEvent) {
	switch event {
	case AdvertAccepted:
		perf.AdvertsAccepted.Add(1)
	case StaleAdvertDropped, SelfAdvertDropped:
		perf.AdvertsStale.Add(1)
	case MalformedAdvert:
		perf.AdvertsMalformed.Add(1)
	case Flooded:
		perf.Floods.Add(1)
	case PacketForwarded:
		perf.TracesForwarded.Add(1)
	case PacketDelivered:
		perf.TracesDelivered.Add(1)
	case NoRoute, TtlExceeded:
		perf.TracesDropped.Add(1)
	}
}

func (r *LinkStateRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	s.RouterState = state.NewRouterState(s.NodeCfg.Id, s.NodeCfg.Heartbeat.Duration())

	s.Log.Debug("schedule router tasks")
	s.Env.RepeatTask(func(s *state.State) error {
		HandleTime(s.RouterState, r, time.Now())
		return nil
	}, s.NodeCfg.Tick.Duration())
	if state.DBG_log_route_table {
		s.Env.RepeatTask(func(s *state.State) error {
			s.Log.Info("route table\n" + s.Table.String())
			return nil
		}, s.NodeCfg.Heartbeat.Duration())
	}
	return nil
}

func (r *LinkStateRouter) Cleanup(s *state.State) error {
	s.Log.Debug("router stopped", "seqno", s.Seqno, "routes", s.Table.Len(), "origins", len(s.Db.Origins()))
	return nil
}

// The methods below may be called from any goroutine, they queue work onto the dispatch goroutine.

func (r *LinkStateRouter) LinkUp(port state.Port, neigh state.NodeId, cost state.Cost) {
	r.Dispatch(func(s *state.State) error {
		HandleNewLink(s.RouterState, r, port, neigh, cost)
		return nil
	})
}

func (r *LinkStateRouter) LinkDown(port state.Port) {
	r.Dispatch(func(s *state.State) error {
		HandleRemoveLink(s.RouterState, r, port)
		return nil
	})
}

func (r *LinkStateRouter) Receive(port state.Port, pkt *protocol.Packet) {
	r.Dispatch(func(s *state.State) error {
		if state.DBG_log_packets {
			s.Log.Debug("recv", "port", port, "pkt", pkt)
		}
		HandlePacket(s.RouterState, r, port, pkt)
		return nil
	})
}

// Table returns a copy of the forwarding table.
func (r *LinkStateRouter) Table() (map[state.NodeId]state.Route, error) {
	res, err := r.DispatchWait(func(s *state.State) (any, error) {
		return s.Table.Snapshot(), nil
	})
	if err != nil {
		return nil, err
	}
	return res.(map[state.NodeId]state.Route), nil
}

func (r *LinkStateRouter) Debug() (string, error) {
	res, err := r.DispatchWait(func(s *state.State) (any, error) {
		return DebugString(s.RouterState), nil
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}
