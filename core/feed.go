package core

import (
	"sync"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/lsr/state"
)

// Feed fans messages out to subscribers. Messages submitted after Close are dropped.
// Subscribers must keep reading until they unsubscribe, a stalled subscriber stalls Submit.
type Feed struct {
	mu     sync.Mutex
	b      broadcast.Broadcaster
	closed bool
}

func NewFeed(buf int) *Feed {
	return &Feed{b: broadcast.NewBroadcaster(buf)}
}

func (f *Feed) Submit(m any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.b.Submit(m)
}

// Subscribe registers a channel for every future message. The returned function unregisters it,
// and may be called after Close.
func (f *Feed) Subscribe() (<-chan any, func()) {
	ch := make(chan any, 64)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ch, func() {}
	}
	f.b.Register(ch)
	return ch, func() {
		// keep the broadcaster moving while we wait for the lock
		stop := make(chan struct{})
		go func() {
			for {
				select {
				case <-ch:
				case <-stop:
					return
				}
			}
		}()
		f.mu.Lock()
		if !f.closed {
			f.b.Unregister(ch)
		}
		f.mu.Unlock()
		close(stop)
	}
}

func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.b.Close()
}

// RouteTrace publishes every forwarding table change of a node as a RouteUpdate.
type RouteTrace struct {
	*Feed
}

type RouteUpdate struct {
	Node state.NodeId
	state.RouteChange
}

func (n *RouteTrace) Init(s *state.State) error {
	n.Feed = NewFeed(1024)
	return nil
}

func (n *RouteTrace) Cleanup(s *state.State) error {
	return n.Feed.Close()
}
