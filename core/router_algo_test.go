package core

import (
	"strings"
	"testing"
	"time"

	"github.com/encodeous/lsr/protocol"
	"github.com/encodeous/lsr/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouterState(id state.NodeId) *state.RouterState {
	return state.NewRouterState(id, time.Second)
}

func TestHandleNewLink_Floods(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 3)

	assert.Equal(t, uint64(1), rs.Seqno)
	out := h.GetActions()
	assert.Len(t, out, 1)
	adv := out.SentAdverts(t)[1]
	want := &protocol.Advertisement{
		Origin:     "A",
		Neighbours: map[state.NodeId]protocol.AdvertLink{"B": {Cost: 3, Port: 1}},
		Seqno:      1,
	}
	if diff := cmp.Diff(want, adv); diff != "" {
		t.Fatalf("unexpected advertisement (-want +got):\n%s", diff)
	}

	r, ok := rs.Table.Lookup("B")
	assert.True(t, ok)
	assert.Equal(t, state.Route{Nh: "B", Cost: 3}, r)
}

func TestNet1A(t *testing.T) {
	// This test is for the following network with our router being A:
	//       B
	//    1 / \ 1
	//     A---C
	//       5
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	HandleNewLink(rs, h, 2, "C", 5)
	h.GetActions()

	r, _ := rs.Table.Lookup("C")
	assert.Equal(t, state.Route{Nh: "C", Cost: 5}, r)

	fromB := MakeAdvertPacket(t, "B", 1, map[state.NodeId]state.Cost{"A": 1, "C": 1})
	HandlePacket(rs, h, 1, fromB)

	r, ok := rs.Table.Lookup("C")
	assert.True(t, ok)
	assert.Equal(t, state.Route{Nh: "B", Cost: 2}, r)

	// re-flooded unchanged to everyone except B
	sent := h.GetActions().Sent()
	assert.Empty(t, sent[1])
	require.Len(t, sent[2], 1)
	assert.Equal(t, fromB.Content, sent[2][0].Content)

	fromC := MakeAdvertPacket(t, "C", 1, map[state.NodeId]state.Cost{"A": 5, "B": 1})
	HandlePacket(rs, h, 2, fromC)
	r, _ = rs.Table.Lookup("C")
	assert.Equal(t, state.Route{Nh: "B", Cost: 2}, r)
	sent = h.GetActions().Sent()
	assert.Len(t, sent[1], 1)
	assert.Empty(t, sent[2])
}

func TestStaleAdvertRejected(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	h.GetActions()

	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "X", 7, map[state.NodeId]state.Cost{"Y": 2, "B": 1}))
	h.GetActions()
	h.GetLogs()

	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "X", 5, map[state.NodeId]state.Cost{"Z": 1}))
	assert.Empty(t, h.GetActions())
	logs := h.GetLogs()
	assert.True(t, containsEvent(logs, StaleAdvertDropped))
	assert.False(t, containsEvent(logs, TableRecomputed))

	ls := rs.Db.Get("X")
	require.NotNil(t, ls)
	assert.Equal(t, uint64(7), ls.Seqno)
	assert.Equal(t, map[state.NodeId]state.Cost{"Y": 2, "B": 1}, ls.Neighbours)
	_, ok := rs.Graph.Cost("X", "Z")
	assert.False(t, ok)
	_, ok = rs.Graph.Cost("X", "Y")
	assert.True(t, ok)
}

func TestStaleDropIsIdempotent(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	HandleNewLink(rs, h, 2, "C", 1)
	pkt := MakeAdvertPacket(t, "B", 3, map[state.NodeId]state.Cost{"A": 1, "D": 4})
	HandlePacket(rs, h, 1, pkt)
	h.GetActions()
	h.GetLogs()

	edges := rs.Graph.Edges()
	table := rs.Table.Snapshot()
	seqno := rs.Seqno

	HandlePacket(rs, h, 2, pkt)
	assert.Empty(t, h.GetActions())
	assert.Equal(t, []RouterEvent{StaleAdvertDropped}, h.GetLogs())
	assert.Equal(t, edges, rs.Graph.Edges())
	assert.Equal(t, table, rs.Table.Snapshot())
	assert.Equal(t, seqno, rs.Seqno)
}

func TestHeartbeat(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	h.GetActions()

	base := time.UnixMilli(0)
	floods := make([]int, 0)
	for ms := 0; ms <= 2500; ms += 100 {
		HandleTime(rs, h, base.Add(time.Duration(ms)*time.Millisecond))
		if len(h.GetActions().Sent()[1]) != 0 {
			floods = append(floods, ms)
		}
	}
	assert.Equal(t, []int{0, 1000, 2000}, floods)
	assert.Equal(t, uint64(4), rs.Seqno)
}

func TestHeartbeat_NoNeighbours(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleTime(rs, h, time.UnixMilli(5))
	assert.Empty(t, h.GetActions())
	assert.Equal(t, uint64(1), rs.Seqno)
	assert.Equal(t, time.UnixMilli(5), rs.LastAdvertise)
}

func TestMalformedAdvert(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	h.GetActions()
	h.GetLogs()

	for _, payload := range []string{"{not json", `["B", {"A": [1, 0]}]`, `["B", {"A": ["x", 0]}, 1]`} {
		HandlePacket(rs, h, 1, protocol.NewRouting("B", "A", []byte(payload)))
		assert.Empty(t, h.GetActions())
		assert.Equal(t, []RouterEvent{MalformedAdvert}, h.GetLogs())
	}
	assert.Empty(t, rs.Db.Origins())
	assert.Equal(t, uint64(1), rs.Seqno)
}

func TestSelfAdvertDropped(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	h.GetActions()
	h.GetLogs()

	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "A", 100, map[state.NodeId]state.Cost{"Q": 1}))
	assert.Empty(t, h.GetActions())
	assert.Equal(t, []RouterEvent{SelfAdvertDropped}, h.GetLogs())
	assert.Nil(t, rs.Db.Get("A"))
	_, ok := rs.Table.Lookup("Q")
	assert.False(t, ok)
}

func TestRemoveLink_UnknownPort(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	h.GetActions()
	h.GetLogs()

	HandleRemoveLink(rs, h, 42)
	assert.Empty(t, h.GetActions())
	assert.Equal(t, []RouterEvent{UnknownPort}, h.GetLogs())
	assert.Equal(t, uint64(1), rs.Seqno)
}

func TestRemoveLink(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	HandleNewLink(rs, h, 2, "C", 1)
	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "B", 1, map[state.NodeId]state.Cost{"A": 1, "C": 1}))
	h.GetActions()

	HandleRemoveLink(rs, h, 1)
	assert.Equal(t, uint64(3), rs.Seqno)

	r, ok := rs.Table.Lookup("B")
	assert.True(t, ok)
	assert.Equal(t, state.Route{Nh: "C", Cost: 2}, r)

	out := h.GetActions()
	adverts := out.SentAdverts(t)
	assert.NotContains(t, adverts, state.Port(1))
	require.Contains(t, adverts, state.Port(2))
	assert.Equal(t, map[state.NodeId]state.Cost{"C": 1}, adverts[2].Costs())
	assert.Equal(t, uint64(3), adverts[2].Seqno)
}

func TestTraceForwarding(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "B", 1, map[state.NodeId]state.Cost{"A": 1, "C": 1}))
	h.GetActions()

	HandlePacket(rs, h, state.NoPort, protocol.NewTrace(1, "A", "C"))
	sent := h.GetActions().Sent()
	require.Len(t, sent[1], 1)
	fwd := sent[1][0]
	assert.Equal(t, state.NodeId("C"), fwd.Dst)
	assert.Equal(t, state.DefaultTTL-1, fwd.TTL)
	assert.Equal(t, []state.NodeId{"A"}, fwd.Hops)
}

func TestTraceDelivered(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	h.GetActions()

	pkt := protocol.NewTrace(2, "B", "A")
	pkt.Hops = []state.NodeId{"B"}
	HandlePacket(rs, h, 1, pkt)
	out := h.GetActions()
	require.Len(t, out, 1)
	assert.Equal(t, "DELIVER", out[0].Message)
	assert.Equal(t, []state.NodeId{"B", "A"}, out[0].Args[0].(*protocol.Packet).Hops)
}

func TestTraceDropped(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "B", 1, map[state.NodeId]state.Cost{"A": 1, "C": 1}))
	h.GetActions()
	h.GetLogs()

	HandlePacket(rs, h, state.NoPort, protocol.NewTrace(3, "A", "Q"))
	assert.Empty(t, h.GetActions())
	assert.Equal(t, []RouterEvent{NoRoute}, h.GetLogs())

	pkt := protocol.NewTrace(4, "A", "C")
	pkt.TTL = 1
	HandlePacket(rs, h, state.NoPort, pkt)
	assert.Empty(t, h.GetActions())
	assert.Equal(t, []RouterEvent{TtlExceeded}, h.GetLogs())
}

func TestNoSelfNextHop(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 0)
	HandleNewLink(rs, h, 2, "C", 0)
	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "B", 1, map[state.NodeId]state.Cost{"A": 0, "C": 0, "D": 0}))
	HandlePacket(rs, h, 2, MakeAdvertPacket(t, "C", 1, map[state.NodeId]state.Cost{"A": 0, "B": 0, "E": 2}))
	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "D", 1, map[state.NodeId]state.Cost{"B": 0, "E": 0}))

	table := rs.Table.Snapshot()
	assert.Len(t, table, 4)
	for dst, r := range table {
		assert.NotEqual(t, rs.Id, r.Nh, "route to %s", dst)
		_, ok := rs.Neighbours.Get(r.Nh)
		assert.True(t, ok, "next hop of %s must be a neighbour", dst)
	}
}

func TestDebugString(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "B", 1, map[state.NodeId]state.Cost{"A": 1, "C": 2}))

	assert.Equal(t, `node A (seqno 1)
neighbours:
  B port 1 cost 1
lsdb:
  B seqno 1: {A: 1, C: 2}
routes:
  B via (nh: B, cost: 1)
  C via (nh: B, cost: 3)`, DebugString(rs))
}

func TestDebugString_Unreachable(t *testing.T) {
	h := &RouterHarness{}
	rs := newRouterState("A")
	HandleNewLink(rs, h, 1, "B", 1)
	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "C", 1, map[state.NodeId]state.Cost{"B": 2}))
	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "B", 1, map[state.NodeId]state.Cost{"A": 1, "C": 2}))
	_, ok := rs.Table.Lookup("C")
	require.True(t, ok)

	// B drops C, C's older advertisement does not keep B-C alive
	HandlePacket(rs, h, 1, MakeAdvertPacket(t, "B", 2, map[state.NodeId]state.Cost{"A": 1}))
	_, ok = rs.Table.Lookup("C")
	assert.False(t, ok)
	assert.Equal(t, []state.NodeId{"A", "B", "C"}, rs.KnownNodes())
	assert.True(t, strings.HasSuffix(DebugString(rs), "\nunreachable: C"), DebugString(rs))
}

func TestRouterEvent_String(t *testing.T) {
	assert.Equal(t, "StaleAdvertDropped", StaleAdvertDropped.String())
	assert.Equal(t, "RouterEvent(77)", RouterEvent(77).String())
	assert.True(t, NoRoute.IsWarning())
	assert.False(t, Flooded.IsWarning())
}
