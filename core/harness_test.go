package core

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/lsr/protocol"
	"github.com/encodeous/lsr/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// RouterHarness records everything the algorithm asks of its host.
type RouterHarness struct {
	actions []HarnessEvent
}

func (h *RouterHarness) Send(port state.Port, pkt *protocol.Packet) {
	h.actions = append(h.actions, MakeEvent("SEND", port, pkt.Clone()))
}

func (h *RouterHarness) Deliver(pkt *protocol.Packet) {
	h.actions = append(h.actions, MakeEvent("DELIVER", pkt.Clone()))
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns and clears everything except log events, which stay for GetLogs.
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	logs := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		} else {
			logs = append(logs, action)
		}
	}
	h.actions = logs
	return x
}

// GetLogs returns and clears the recorded router events.
func (h *RouterHarness) GetLogs() []RouterEvent {
	x := make([]RouterEvent, 0)
	rest := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action.Args[0].(RouterEvent))
		} else {
			rest = append(rest, action)
		}
	}
	h.actions = rest
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// Sent groups the packets sent in e by port.
func (e HarnessEvents) Sent() map[state.Port][]*protocol.Packet {
	out := make(map[state.Port][]*protocol.Packet)
	for _, event := range e {
		if event.Message == "SEND" {
			port := event.Args[0].(state.Port)
			out[port] = append(out[port], event.Args[1].(*protocol.Packet))
		}
	}
	return out
}

// SentAdverts decodes every advertisement sent in e, by port.
func (e HarnessEvents) SentAdverts(t *testing.T) map[state.Port]*protocol.Advertisement {
	out := make(map[state.Port]*protocol.Advertisement)
	for port, pkts := range e.Sent() {
		for _, pkt := range pkts {
			if !pkt.IsRouting() {
				continue
			}
			adv, err := protocol.DecodeAdvertisement(pkt.Content)
			require.NoError(t, err)
			out[port] = adv
		}
	}
	return out
}

func MakeAdvertPacket(t *testing.T, origin state.NodeId, seqno uint64, neighs map[state.NodeId]state.Cost) *protocol.Packet {
	adv := &protocol.Advertisement{
		Origin:     origin,
		Neighbours: make(map[state.NodeId]protocol.AdvertLink),
		Seqno:      seqno,
	}
	for id, c := range neighs {
		adv.Neighbours[id] = protocol.AdvertLink{Cost: c, Port: 99}
	}
	content, err := protocol.EncodeAdvertisement(adv)
	require.NoError(t, err)
	return protocol.NewRouting(origin, "", content)
}

func containsEvent(events []RouterEvent, ev RouterEvent) bool {
	return slices.Contains(events, ev)
}
