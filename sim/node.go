package sim

import (
	"fmt"
	"log/slog"

	"github.com/encodeous/lsr/core"
	"github.com/encodeous/lsr/protocol"
	"github.com/encodeous/lsr/state"
)

// node is the host side of one simulated router.
type node struct {
	net   *Network
	rs    *state.RouterState
	ports map[state.Port]*link
	log   *slog.Logger
}

func (nd *node) allocPort(want state.Port) (state.Port, error) {
	if want != 0 {
		if _, used := nd.ports[want]; used {
			return 0, fmt.Errorf("node %s: port %d is already in use", nd.rs.Id, want)
		}
		return want, nil
	}
	p := state.Port(1)
	for {
		if _, used := nd.ports[p]; !used {
			return p, nil
		}
		p++
	}
}

func (nd *node) Send(port state.Port, pkt *protocol.Packet) {
	nd.net.send(nd, port, pkt)
}

func (nd *node) Deliver(pkt *protocol.Packet) {
	nd.net.finishTrace(pkt.Id, TraceDelivered, pkt.Hops, "")
}

func (nd *node) Log(event core.RouterEvent, desc string, args ...any) {
	switch event {
	case core.NoRoute, core.TtlExceeded, core.InconsistentState:
		for i := 0; i+1 < len(args); i += 2 {
			if pkt, ok := args[i+1].(*protocol.Packet); ok && pkt.IsTrace() {
				nd.net.finishTrace(pkt.Id, TraceDropped, pkt.Hops, event.String())
			}
		}
	}
	core.LogEvent(nd.log, event, desc, append(args, "at", nd.net.now)...)
}
