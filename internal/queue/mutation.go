package queue

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// mutationHeap is a container/heap.Interface over TestCase pointers,
// ordered by ascending Priority() (= -score), so the root is the highest
// scoring test case.
type mutationHeap struct {
	items []*testcase.TestCase
	index map[*testcase.TestCase]int
}

func (h *mutationHeap) Len() int { return len(h.items) }

func (h *mutationHeap) Less(i, j int) bool {
	return h.items[i].Priority() < h.items[j].Priority()
}

func (h *mutationHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i]] = i
	h.index[h.items[j]] = j
}

func (h *mutationHeap) Push(x any) {
	tc := x.(*testcase.TestCase)
	h.index[tc] = len(h.items)
	h.items = append(h.items, tc)
}

func (h *mutationHeap) Pop() any {
	old := h.items
	n := len(old)
	tc := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	delete(h.index, tc)

	return tc
}

// MutationQueue is an unbounded blocking priority queue keyed by
// -score (highest score first), with support for removing an arbitrary
// element (used by the 10%-random-parent-selection path in the mutation
// worker, and by corpus eviction).
type MutationQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	heap     *mutationHeap
	closed   bool
}

// NewMutationQueue builds an empty MutationQueue.
func NewMutationQueue() *MutationQueue {
	q := &MutationQueue{
		heap: &mutationHeap{index: make(map[*testcase.TestCase]int)},
	}
	q.notEmpty = sync.NewCond(&q.mu)

	return q
}

// Push inserts tc, keyed by its current Priority(). Re-push after a
// score change to refresh its position.
func (q *MutationQueue) Push(tc *testcase.TestCase) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	heap.Push(q.heap, tc)
	q.notEmpty.Signal()
}

// Pop blocks until the highest-priority (highest score) element is
// available, or returns false once closed and drained.
func (q *MutationQueue) Pop() (*testcase.TestCase, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.heap.Len() == 0 && !q.closed {
		q.notEmpty.Wait()
	}

	if q.heap.Len() == 0 {
		return nil, false
	}

	return heap.Pop(q.heap).(*testcase.TestCase), true
}

// Remove deletes tc from the queue if present, returning whether it was
// found. Used when a random-selected parent (§4.4 step 2) must be pulled
// out of its heap position, and when the corpus evicts an entry still
// sitting in the queue.
func (q *MutationQueue) Remove(tc *testcase.TestCase) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.heap.index[tc]
	if !ok {
		return false
	}

	heap.Remove(q.heap, i)

	return true
}

// RandomElement returns a uniformly random element currently queued,
// without removing it, for the mutation worker's 10%-probability random
// selection path (snapshot-then-pick). Returns false if empty.
func (q *MutationQueue) RandomElement(intn func(n int) int) (*testcase.TestCase, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil, false
	}

	return q.heap.items[intn(q.heap.Len())], true
}

// Snapshot returns a copy of every currently-queued test case, sorted by
// descending score (highest first), without removing anything. Used for
// the end-of-run mutation-queue report.
func (q *MutationQueue) Snapshot() []*testcase.TestCase {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*testcase.TestCase, len(q.heap.items))
	copy(out, q.heap.items)

	sort.Slice(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })

	return out
}

// Size returns the current element count.
func (q *MutationQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.heap.Len()
}

// Close marks the queue closed and wakes all blocked waiters.
func (q *MutationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.notEmpty.Broadcast()
}
