// Package queue holds pending alert events between producers and the dispatcher.
package queue

import (
	"sync"

	"dockwatch/internal/models"
)

// Queue is an unbounded FIFO of alert events guarded by a single mutex.
// It never reorders or drops events.
type Queue struct {
	mu    sync.Mutex
	items []models.AlertEvent
}

func New() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(ev models.AlertEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
}

// DrainAll removes and returns every queued event in enqueue order.
func (q *Queue) DrainAll() []models.AlertEvent {
	q.mu.Lock()
	out := q.items
	q.items = nil
	q.mu.Unlock()
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Locked runs fn with the queue lock held. push appends without re-locking;
// it must not be retained after fn returns.
func (q *Queue) Locked(fn func(push func(models.AlertEvent))) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(func(ev models.AlertEvent) {
		q.items = append(q.items, ev)
	})
}
