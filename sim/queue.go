package sim

import (
	"container/heap"

	"github.com/encodeous/lsr/state"
)

type event struct {
	at  state.Millis
	seq uint64
	fn  func()
}

// eventQueue orders events by time, then by the order they were scheduled in.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*event)) }
func (q *eventQueue) Pop() any {
	old := *q
	ev := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return ev
}

func (q *eventQueue) peek() *event {
	return (*q)[0]
}

var _ heap.Interface = (*eventQueue)(nil)
