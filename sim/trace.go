package sim

import (
	"fmt"

	"github.com/encodeous/lsr/state"
)

type TraceStatus int

const (
	TracePending TraceStatus = iota
	TraceDelivered
	TraceDropped
	TraceLost
)

func (s TraceStatus) String() string {
	switch s {
	case TracePending:
		return "pending"
	case TraceDelivered:
		return "delivered"
	case TraceDropped:
		return "dropped"
	case TraceLost:
		return "lost"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TraceResult follows one probe from injection to delivery or loss.
type TraceResult struct {
	Id     uint64
	From   state.NodeId
	To     string // as requested, a node id or an address
	Dst    state.NodeId
	SentAt state.Millis
	DoneAt state.Millis
	Status TraceStatus
	Hops   []state.NodeId
	Reason string
}

func (t *TraceResult) String() string {
	switch t.Status {
	case TraceDelivered:
		return fmt.Sprintf("[%dms] trace %d %s -> %s: delivered in %dms via %v", t.SentAt, t.Id, t.From, t.To, t.DoneAt-t.SentAt, t.Hops)
	case TracePending:
		return fmt.Sprintf("[%dms] trace %d %s -> %s: pending", t.SentAt, t.Id, t.From, t.To)
	default:
		return fmt.Sprintf("[%dms] trace %d %s -> %s: %s at %s after %v (%s)", t.SentAt, t.Id, t.From, t.To, t.Status, t.last(), t.Hops, t.Reason)
	}
}

func (t *TraceResult) last() state.NodeId {
	if len(t.Hops) == 0 {
		return t.From
	}
	return t.Hops[len(t.Hops)-1]
}
