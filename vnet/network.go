package vnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/lsr/core"
	"github.com/encodeous/lsr/perf"
	"github.com/encodeous/lsr/protocol"
	"github.com/encodeous/lsr/state"
	"github.com/jellydator/ttlcache/v3"
	"github.com/panjf2000/ants/v2"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrUnknownLink = errors.New("unknown link")
	ErrStopped     = errors.New("network stopped")
)

type Options struct {
	Heartbeat    state.Millis
	Tick         state.Millis
	Seed         uint64
	Level        slog.Level
	LogFile      io.Writer // shared by every node when set
	LogDir       string    // when set, every node also logs to <LogDir>/<id>.log
	ProbeTimeout time.Duration
	Workers      int
}

func (o *Options) fill() {
	if o.Heartbeat == 0 {
		o.Heartbeat = state.ToMillis(state.DefaultHeartbeat)
	}
	if o.Tick == 0 {
		o.Tick = state.ToMillis(state.TickDelay)
	}
	if o.ProbeTimeout == 0 {
		o.ProbeTimeout = state.ProbeTimeout
	}
	if o.Workers == 0 {
		o.Workers = state.DeliveryWorkers
	}
}

// Network runs every router on its own dispatch loop and moves packets between them in real time.
type Network struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelCauseFunc
	pool   *ants.Pool
	nextId atomic.Uint64

	probes      *ttlcache.Cache[uint64, *Probe]
	unsubscribe func()
	expiryDone  chan struct{}

	results *core.Feed

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.RWMutex
	nodes map[state.NodeId]*core.Node
	specs []state.NodeSpec
	book  *state.AddressBook
	links map[state.Pair[state.NodeId, state.NodeId]]*link
	ports map[endpoint]*link
	used  map[endpoint]struct{}
	files []io.Closer
}

type endpoint = state.Pair[state.NodeId, state.Port]

type link struct {
	spec state.LinkSpec
	up   bool
}

func New(opts Options) (*Network, error) {
	opts.fill()
	pool, err := ants.NewPool(opts.Workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create delivery pool: %w", err)
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	n := &Network{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		pool:   pool,
		probes: ttlcache.New[uint64, *Probe](
			ttlcache.WithTTL[uint64, *Probe](opts.ProbeTimeout),
			ttlcache.WithDisableTouchOnHit[uint64, *Probe](),
		),
		expiryDone: make(chan struct{}),
		results:    core.NewFeed(1024),
		rng:        rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		nodes:      make(map[state.NodeId]*core.Node),
		book:       state.NewAddressBook(nil),
		links:      make(map[state.Pair[state.NodeId, state.NodeId]]*link),
		ports:      make(map[endpoint]*link),
		used:       make(map[endpoint]struct{}),
	}
	n.unsubscribe = n.probes.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[uint64, *Probe]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		p := *item.Value()
		p.Status = ProbeLost
		p.Elapsed = time.Since(p.SentAt)
		n.publish(p)
	})
	go n.expireProbes()
	return n, nil
}

func (n *Network) expireProbes() {
	defer close(n.expiryDone)
	ticker := time.NewTicker(max(n.opts.ProbeTimeout/10, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.probes.DeleteExpired()
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Network) publish(p Probe) {
	if n.ctx.Err() != nil {
		return
	}
	n.results.Submit(p)
}

// FromScenario starts the nodes and links of sc. Scenario events are applied by Run.
func FromScenario(sc *state.Scenario, opts Options) (*Network, error) {
	opts.Heartbeat = sc.Heartbeat
	opts.Tick = sc.Tick
	opts.Seed = sc.Seed
	n, err := New(opts)
	if err != nil {
		return nil, err
	}
	for _, spec := range sc.Nodes {
		if err = n.AddNode(spec); err != nil {
			n.Stop()
			return nil, err
		}
	}
	for _, l := range sc.Links {
		if err = n.AddLink(l); err != nil {
			n.Stop()
			return nil, err
		}
	}
	return n, nil
}

// Run applies the events of sc at their offsets from now. It returns after sc.Duration, or once
// ctx is cancelled when the duration is 0. Failed events are logged and skipped.
func (n *Network) Run(ctx context.Context, sc *state.Scenario, log *slog.Logger) error {
	start := time.Now()
	wait := func(at state.Millis) error {
		timer := time.NewTimer(time.Until(start.Add(at.Duration())))
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-n.ctx.Done():
			return ErrStopped
		}
	}
	for _, ev := range sc.Events {
		if err := wait(ev.At); err != nil {
			return err
		}
		if err := n.apply(ev); err != nil {
			log.Warn("scenario event failed", "at", ev.At, "kind", ev.Kind, "error", err)
		}
	}
	if sc.Duration == 0 {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-n.ctx.Done():
			return ErrStopped
		}
	}
	return wait(sc.Duration)
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

// AddNode starts a router. Its prefixes become trace destinations.
func (n *Network) AddNode(spec state.NodeSpec) error {
	if n.ctx.Err() != nil {
		return ErrStopped
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.nodes[spec.Id]; ok {
		return fmt.Errorf("duplicate node: %s", spec.Id)
	}
	cfg := state.NodeCfg{
		Id:        spec.Id,
		Heartbeat: n.opts.Heartbeat,
		Tick:      n.opts.Tick,
	}
	out := n.opts.LogFile
	if n.opts.LogDir != "" {
		cfg.LogPath = filepath.Join(n.opts.LogDir, string(spec.Id)+".log")
		file, err := core.OpenLogFile(cfg.LogPath)
		if err != nil {
			return err
		}
		n.files = append(n.files, file)
		if out != nil {
			out = io.MultiWriter(out, file)
		} else {
			out = file
		}
	}
	node, err := core.Start(n.ctx, cfg, n, core.NewLogger(string(spec.Id), n.opts.Level, out))
	if err != nil {
		return err
	}
	n.nodes[spec.Id] = node
	n.specs = append(n.specs, spec)
	n.book = state.NewAddressBook(n.specs)
	return nil
}

func (n *Network) allocPort(id state.NodeId, want state.Port) (state.Port, error) {
	if want != 0 {
		if _, ok := n.used[endpoint{V1: id, V2: want}]; ok {
			return 0, fmt.Errorf("node %s: port %d is already in use", id, want)
		}
		return want, nil
	}
	for p := state.Port(1); ; p++ {
		if _, ok := n.used[endpoint{V1: id, V2: p}]; !ok {
			return p, nil
		}
	}
}

// AddLink brings a link up, or changes the cost of one that already exists.
func (n *Network) AddLink(spec state.LinkSpec) error {
	a, b, l, err := n.attach(spec)
	if err != nil {
		return err
	}
	// outside the lock, dispatch loops take it to send
	a.Router.LinkUp(l.PortA, l.B, l.Cost)
	b.Router.LinkUp(l.PortB, l.A, l.Cost)
	return nil
}

func (n *Network) attach(spec state.LinkSpec) (*core.Node, *core.Node, state.LinkSpec, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	a, ok := n.nodes[spec.A]
	if !ok {
		return nil, nil, spec, fmt.Errorf("%w: %s", ErrUnknownNode, spec.A)
	}
	b, ok := n.nodes[spec.B]
	if !ok {
		return nil, nil, spec, fmt.Errorf("%w: %s", ErrUnknownNode, spec.B)
	}
	if spec.A == spec.B {
		return nil, nil, spec, fmt.Errorf("link %s, %s: a node cannot link to itself", spec.A, spec.B)
	}
	if err := state.CostValidator(spec.Cost); err != nil {
		return nil, nil, spec, err
	}
	key := state.MakeSortedPair(spec.A, spec.B)
	l, ok := n.links[key]
	if ok {
		l.spec.Cost = spec.Cost
		l.up = true
	} else {
		l = &link{spec: spec, up: true}
		var err error
		if l.spec.PortA, err = n.allocPort(spec.A, spec.PortA); err != nil {
			return nil, nil, spec, err
		}
		if l.spec.PortB, err = n.allocPort(spec.B, spec.PortB); err != nil {
			return nil, nil, spec, err
		}
		n.used[endpoint{V1: spec.A, V2: l.spec.PortA}] = struct{}{}
		n.used[endpoint{V1: spec.B, V2: l.spec.PortB}] = struct{}{}
		n.links[key] = l
	}
	n.ports[endpoint{V1: l.spec.A, V2: l.spec.PortA}] = l
	n.ports[endpoint{V1: l.spec.B, V2: l.spec.PortB}] = l
	if l.spec.A != spec.A {
		a, b = b, a
	}
	return a, b, l.spec, nil
}

// RemoveLink takes a link down. Packets in flight on it are lost, its ports stay reserved.
func (n *Network) RemoveLink(a, b state.NodeId) error {
	n.mu.Lock()
	l, ok := n.links[state.MakeSortedPair(a, b)]
	if !ok || !l.up {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s, %s", ErrUnknownLink, a, b)
	}
	l.up = false
	delete(n.ports, endpoint{V1: l.spec.A, V2: l.spec.PortA})
	delete(n.ports, endpoint{V1: l.spec.B, V2: l.spec.PortB})
	na, nb := n.nodes[l.spec.A], n.nodes[l.spec.B]
	spec := l.spec
	n.mu.Unlock()

	na.Router.LinkDown(spec.PortA)
	nb.Router.LinkDown(spec.PortB)
	return nil
}

func (n *Network) drop(loss float64) bool {
	if loss <= 0 {
		return false
	}
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Float64() < loss
}

// Send implements core.Transport. A pool worker waits out the link latency so the calling
// dispatch loop never blocks.
func (n *Network) Send(from state.NodeId, port state.Port, pkt *protocol.Packet) {
	n.mu.RLock()
	l, ok := n.ports[endpoint{V1: from, V2: port}]
	var spec state.LinkSpec
	if ok {
		spec = l.spec
	}
	n.mu.RUnlock()
	if !ok {
		return
	}
	if n.drop(spec.Loss) {
		perf.PacketsLost.Add(1)
		return
	}

	to := endpoint{V1: spec.B, V2: spec.PortB}
	if from == spec.B && port == spec.PortB {
		to = endpoint{V1: spec.A, V2: spec.PortA}
	}
	latency := spec.Latency.Duration()
	if latency == 0 {
		latency = state.DefaultLatency
	}
	pkt = pkt.Clone()
	sent := time.Now()
	err := n.pool.Submit(func() {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-n.ctx.Done():
			return
		}
		n.mu.RLock()
		cur := n.ports[to]
		node := n.nodes[to.V1]
		n.mu.RUnlock()
		if cur != l {
			// the link went down while the packet was in flight
			perf.PacketsLost.Add(1)
			return
		}
		perf.LinkDeliveryDelay.Add(float64(time.Since(sent).Microseconds()))
		node.Router.Receive(to.V2, pkt)
	})
	if err != nil {
		perf.PacketsLost.Add(1)
	}
}

// Deliver implements core.Transport.
func (n *Network) Deliver(at state.NodeId, pkt *protocol.Packet) {
	item, ok := n.probes.GetAndDelete(pkt.Id)
	if !ok {
		return // expired already
	}
	p := *item.Value()
	p.Status = ProbeDelivered
	p.Hops = pkt.Hops
	p.Elapsed = time.Since(p.SentAt)
	n.publish(p)
}

// Trace sends a probe from a node towards a node id or an address. The outcome is published to
// subscribers once the probe is delivered, or as lost once ProbeTimeout passes.
func (n *Network) Trace(from state.NodeId, to string) (uint64, error) {
	n.mu.RLock()
	src, ok := n.nodes[from]
	dst, resolved := n.book.Resolve(to)
	n.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	if !resolved {
		return 0, fmt.Errorf("%w: %s does not resolve to a node", ErrUnknownNode, to)
	}
	id := n.nextId.Add(1)
	n.probes.Set(id, &Probe{
		Id:     id,
		From:   from,
		To:     to,
		Dst:    dst,
		SentAt: time.Now(),
	}, ttlcache.DefaultTTL)
	src.Router.Receive(state.NoPort, protocol.NewTrace(id, from, dst))
	return id, nil
}

// Subscribe returns a channel receiving every Probe outcome. Subscribers must keep reading until
// they unsubscribe.
func (n *Network) Subscribe() (<-chan any, func()) {
	return n.results.Subscribe()
}

// SubscribeRoutes returns a channel receiving a core.RouteUpdate for every forwarding table change
// of a node. The subscriber must keep reading until it unsubscribes, or the node stalls.
func (n *Network) SubscribeRoutes(id state.NodeId) (<-chan any, func(), error) {
	node, err := n.node(id)
	if err != nil {
		return nil, nil, err
	}
	ch, unsub := node.Routes.Subscribe()
	return ch, unsub, nil
}

func (n *Network) node(id state.NodeId) (*core.Node, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return node, nil
}

func (n *Network) Table(id state.NodeId) (map[state.NodeId]state.Route, error) {
	node, err := n.node(id)
	if err != nil {
		return nil, err
	}
	return node.Router.Table()
}

func (n *Network) Debug(id state.NodeId) (string, error) {
	node, err := n.node(id)
	if err != nil {
		return "", err
	}
	return node.Router.Debug()
}

// Topology is the graph of links that are currently up.
func (n *Network) Topology() *state.Graph {
	n.mu.RLock()
	defer n.mu.RUnlock()
	g := state.NewGraph()
	for _, l := range n.links {
		if l.up {
			g.AddEdge(l.spec.A, l.spec.B, l.spec.Cost)
		}
	}
	return g
}

// Nodes returns the node ids in the order they were added.
func (n *Network) Nodes() []state.NodeId {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]state.NodeId, 0, len(n.specs))
	for _, s := range n.specs {
		ids = append(ids, s.Id)
	}
	return ids
}

// Stop shuts every node down and waits for the background goroutines to exit. Pending probes are
// not published.
func (n *Network) Stop() {
	if n.ctx.Err() != nil {
		return
	}
	n.cancel(ErrStopped)
	n.mu.RLock()
	nodes := make([]*core.Node, 0, len(n.nodes))
	for _, node := range n.nodes {
		nodes = append(nodes, node)
	}
	n.mu.RUnlock()
	for _, node := range nodes {
		node.Stop()
	}
	_ = n.pool.ReleaseTimeout(time.Second)
	<-n.expiryDone
	n.unsubscribe()
	for _, f := range n.files {
		_ = f.Close()
	}
	_ = n.results.Close()
}
