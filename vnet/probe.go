package vnet

import (
	"fmt"
	"time"

	"github.com/encodeous/lsr/state"
)

type ProbeStatus int

const (
	ProbePending ProbeStatus = iota
	ProbeDelivered
	ProbeLost
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbePending:
		return "pending"
	case ProbeDelivered:
		return "delivered"
	case ProbeLost:
		return "lost"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Probe is published once a trace reaches its destination, or once it times out.
type Probe struct {
	Id      uint64
	From    state.NodeId
	To      string
	Dst     state.NodeId
	SentAt  time.Time
	Elapsed time.Duration
	Status  ProbeStatus
	Hops    []state.NodeId // only known for delivered probes
}

func (p Probe) String() string {
	if p.Status == ProbeDelivered {
		return fmt.Sprintf("trace %d %s -> %s: delivered in %s via %v", p.Id, p.From, p.To, p.Elapsed.Round(time.Microsecond), p.Hops)
	}
	return fmt.Sprintf("trace %d %s -> %s: %s after %s", p.Id, p.From, p.To, p.Status, p.Elapsed.Round(time.Millisecond))
}
