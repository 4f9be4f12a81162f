//go:build integration

package integration

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/encodeous/lsr/state"
	"github.com/encodeous/lsr/vnet"
	"go.uber.org/goleak"
)

// ants starts a package level pool when it is imported, its workers live for the whole process
var ignoreAnts = []goleak.Option{
	goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).purgeStaleWorkers"),
	goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).ticktock"),
}

type Signal chan bool

func NewSignal() Signal {
	return make(chan bool)
}
func (s Signal) Trigger() {
	select {
	case <-s:
	default:
		close(s)
	}
}
func (s Signal) Triggered() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}
func (s Signal) Wait() {
	<-s
}
func (s Signal) WaitFor(d time.Duration) bool {
	select {
	case <-s:
		return true
	case <-time.After(d):
		return false
	}
}

type VirtualLink struct {
	state.LinkSpec
}

func (v *VirtualLink) WithLatency(lat time.Duration) *VirtualLink {
	v.Latency = state.ToMillis(lat)
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.Loss = loss
	return v
}

// VirtualHarness runs a set of routers on a vnet.Network and records probe outcomes.
type VirtualHarness struct {
	Heartbeat    time.Duration
	Tick         time.Duration
	ProbeTimeout time.Duration
	Seed         uint64
	Nodes        []state.NodeSpec
	Links        []*VirtualLink
	Net          *vnet.Network

	mu      sync.Mutex
	results map[uint64]vnet.Probe
	signals map[uint64]Signal
	unsub   func()
	stop    Signal
	done    chan struct{}
}

func (v *VirtualHarness) NewNode(id state.NodeId, prefixes ...string) {
	spec := state.NodeSpec{Id: id}
	for _, p := range prefixes {
		spec.Prefixes = append(spec.Prefixes, netip.MustParsePrefix(p))
	}
	v.Nodes = append(v.Nodes, spec)
}

func (v *VirtualHarness) AddLink(a, b state.NodeId, cost state.Cost) *VirtualLink {
	link := &VirtualLink{state.LinkSpec{A: a, B: b, Cost: cost}}
	v.Links = append(v.Links, link)
	return link
}

func (v *VirtualHarness) Start() error {
	if v.Heartbeat == 0 {
		v.Heartbeat = 200 * time.Millisecond
	}
	if v.Tick == 0 {
		v.Tick = 20 * time.Millisecond
	}
	n, err := vnet.New(vnet.Options{
		Heartbeat:    state.ToMillis(v.Heartbeat),
		Tick:         state.ToMillis(v.Tick),
		Seed:         v.Seed,
		Level:        slog.LevelInfo,
		ProbeTimeout: v.ProbeTimeout,
	})
	if err != nil {
		return err
	}
	v.Net = n
	v.results = make(map[uint64]vnet.Probe)
	v.signals = make(map[uint64]Signal)
	v.stop = NewSignal()
	v.done = make(chan struct{})

	ch, unsub := n.Subscribe()
	v.unsub = unsub
	go v.collect(ch)

	for _, spec := range v.Nodes {
		if err = n.AddNode(spec); err != nil {
			return err
		}
	}
	for _, l := range v.Links {
		if err = n.AddLink(l.LinkSpec); err != nil {
			return err
		}
	}
	return nil
}

func (v *VirtualHarness) collect(ch <-chan any) {
	defer close(v.done)
	for {
		select {
		case m := <-ch:
			p := m.(vnet.Probe)
			v.mu.Lock()
			v.results[p.Id] = p
			sig := v.signal(p.Id)
			v.mu.Unlock()
			sig.Trigger()
		case <-v.stop:
			return
		}
	}
}

func (v *VirtualHarness) signal(id uint64) Signal {
	sig, ok := v.signals[id]
	if !ok {
		sig = NewSignal()
		v.signals[id] = sig
	}
	return sig
}

// Probe sends a trace and waits for its outcome.
func (v *VirtualHarness) Probe(from state.NodeId, to string, timeout time.Duration) (vnet.Probe, error) {
	id, err := v.Net.Trace(from, to)
	if err != nil {
		return vnet.Probe{}, err
	}
	v.mu.Lock()
	sig := v.signal(id)
	v.mu.Unlock()
	if !sig.WaitFor(timeout) {
		return vnet.Probe{}, fmt.Errorf("probe %d from %s to %s: no outcome after %s", id, from, to, timeout)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.results[id], nil
}

// Converged reports whether every router forwards along a shortest path of the links that are up.
func (v *VirtualHarness) Converged() bool {
	truth := v.Net.Topology()
	for _, id := range v.Net.Nodes() {
		tree := truth.ShortestPathTree(id)
		want := make(map[state.NodeId]state.Route)
		for _, dst := range tree.Reachable() {
			nh, cost, _ := tree.FirstHop(dst)
			want[dst] = state.Route{Nh: nh, Cost: cost}
		}
		got, err := v.Net.Table(id)
		if err != nil || len(got) != len(want) {
			return false
		}
		for dst, r := range want {
			if got[dst] != r {
				return false
			}
		}
	}
	return true
}

func (v *VirtualHarness) WaitConverged(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if v.Converged() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return v.Converged()
}

func (v *VirtualHarness) Stop() {
	v.stop.Trigger()
	<-v.done
	v.unsub()
	v.Net.Stop()
}
