package protocol

import (
	"fmt"
	"slices"

	"github.com/encodeous/lsr/state"
)

type Kind int

const (
	// Trace packets are routed hop by hop through the forwarding tables.
	Trace Kind = iota
	// Routing packets carry an encoded Advertisement and are only ever sent to neighbours.
	Routing
)

func (k Kind) String() string {
	switch k {
	case Trace:
		return "trace"
	case Routing:
		return "routing"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Packet struct {
	Kind    Kind
	Id      uint64 // probe id, set on traces by the host
	Src     state.NodeId
	Dst     state.NodeId
	TTL     int
	Hops    []state.NodeId // routers that handled a trace, in order
	Content []byte
}

func NewTrace(id uint64, src, dst state.NodeId) *Packet {
	return &Packet{
		Kind: Trace,
		Id:   id,
		Src:  src,
		Dst:  dst,
		TTL:  state.DefaultTTL,
	}
}

func NewRouting(src, dst state.NodeId, content []byte) *Packet {
	return &Packet{
		Kind:    Routing,
		Src:     src,
		Dst:     dst,
		Content: content,
	}
}

func (p *Packet) IsTrace() bool {
	return p.Kind == Trace
}

func (p *Packet) IsRouting() bool {
	return p.Kind == Routing
}

// Clone copies the packet so that hosts can hand each receiver its own instance.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Hops = slices.Clone(p.Hops)
	c.Content = slices.Clone(p.Content)
	return &c
}

func (p *Packet) String() string {
	if p.IsTrace() {
		return fmt.Sprintf("(trace %d: %s -> %s, ttl: %d, hops: %v)", p.Id, p.Src, p.Dst, p.TTL, p.Hops)
	}
	return fmt.Sprintf("(routing: %s -> %s, %d bytes)", p.Src, p.Dst, len(p.Content))
}
