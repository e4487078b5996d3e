// Package queue provides the FIFO buffer of pending work items shared between
// submitting producers and the single processing worker.
package queue

import (
	"sync"

	"github.com/smaq/smaq/internal/model"
)

// Queue is an unbounded FIFO of work items. Enqueue is safe for any number of
// concurrent producers and never blocks. TryDequeue is intended for a single
// consumer.
//
// Every Enqueue raises the Ready signal, so a consumer that parks on Ready
// after observing an empty queue cannot miss an item.
type Queue struct {
	mu    sync.Mutex
	items []*model.WorkItem
	head  int
	ready chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends an item at the tail.
func (q *Queue) Enqueue(item *model.WorkItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
		// A wakeup is already pending.
	}
}

// TryDequeue removes and returns the head item. ok is false when the queue is empty.
func (q *Queue) TryDequeue() (item *model.WorkItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return nil, false
	}
	item = q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Ready returns a channel that receives a value after items were enqueued.
// Receiving from it does not guarantee the queue is non-empty.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
