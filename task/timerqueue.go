package task

import (
	"container/heap"
	"time"
)

// timerEntry is a (deadline, task) pair in the sleep queue.
type timerEntry struct {
	task     *Task
	deadline time.Duration
	seq      uint64 // insertion order, breaks deadline ties
	index    int    // heap index, -1 once removed
}

// timerHeap is a min-heap of timer entries, by (deadline, seq).
type timerHeap []*timerEntry

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[:n-1]
	return x
}

// timerQueue is the sleep queue: deadline ordered, FIFO among equal
// deadlines.
type timerQueue struct {
	heap timerHeap
	seq  uint64
}

func (x *timerQueue) Len() int {
	return len(x.heap)
}

func (x *timerQueue) add(t *Task, deadline time.Duration) *timerEntry {
	if t.timer != nil {
		panic(invariantf(`sleep queue add: %s already has a timer`, t))
	}
	x.seq++
	e := &timerEntry{task: t, deadline: deadline, seq: x.seq}
	heap.Push(&x.heap, e)
	t.timer = e
	return e
}

func (x *timerQueue) remove(e *timerEntry) {
	if e.index < 0 || e.index >= len(x.heap) || x.heap[e.index] != e {
		panic(invariantf(`sleep queue remove: %s not queued`, e.task))
	}
	heap.Remove(&x.heap, e.index)
	e.task.timer = nil
}

func (x *timerQueue) peek() *timerEntry {
	if len(x.heap) == 0 {
		return nil
	}
	return x.heap[0]
}

// popExpired removes and returns the earliest entry if its deadline is at or
// before now.
func (x *timerQueue) popExpired(now time.Duration) *timerEntry {
	if e := x.peek(); e == nil || e.deadline > now {
		return nil
	}
	e := heap.Pop(&x.heap).(*timerEntry)
	e.task.timer = nil
	return e
}

// next returns the earliest deadline, if any.
func (x *timerQueue) next() (time.Duration, bool) {
	if e := x.peek(); e != nil {
		return e.deadline, true
	}
	return 0, false
}
