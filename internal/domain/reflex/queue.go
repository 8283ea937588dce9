// Task 4.1: Bounded priority queue for flushed reflex tasks.
// Ordering is by score descending with stable insertion-order tie-break, so
// two tasks with equal priority dispatch first-in first-out. The queue is
// capped: pushing over capacity evicts the current lowest-priority entry
// (or refuses the newcomer when it is itself the lowest).
package reflex

import (
	"container/heap"
	"time"

	"github.com/synapselabs/synapse/internal/infra/eventbus"
)

// Task is one prioritized unit of reflex work.
type Task struct {
	ID         string
	Key        string
	Payload    eventbus.Payload
	Score      int
	Attempts   int
	EnqueuedAt time.Time

	seq uint64 // insertion order, tie-break
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// taskQueue is not goroutine-safe; the processor guards it with its own lock.
type taskQueue struct {
	h       taskHeap
	max     int
	nextSeq uint64
	dropped uint64
}

func newTaskQueue(max int) *taskQueue {
	return &taskQueue{max: max}
}

func (q *taskQueue) Len() int { return q.h.Len() }

// Push inserts t, evicting the lowest-priority entry when over capacity.
// Returns false if t itself was refused or an entry was evicted.
func (q *taskQueue) Push(t *Task) bool {
	q.nextSeq++
	t.seq = q.nextSeq

	if q.h.Len() < q.max {
		heap.Push(&q.h, t)
		return true
	}

	low := q.lowestIndex()
	// At equal scores the newcomer is the newest and therefore the tail:
	// refuse it rather than evicting an older equal-priority entry.
	if t.Score <= q.h[low].Score {
		q.dropped++
		return false
	}
	heap.Remove(&q.h, low)
	heap.Push(&q.h, t)
	q.dropped++
	return true
}

// PopMax removes and returns the highest-priority task, nil when empty.
func (q *taskQueue) PopMax() *Task {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*Task)
}

// lowestIndex scans for the lowest-priority entry. Linear, but the queue is
// small (MaxQueueSize) and eviction only happens at capacity.
func (q *taskQueue) lowestIndex() int {
	low := 0
	for i := 1; i < q.h.Len(); i++ {
		if q.h.Less(low, i) {
			low = i
		}
	}
	return low
}
