package queue

import (
	"sync"

	"github.com/subradiance/daqlog/internal/domain"
)

// Ring is a bounded FIFO of snapshots. When full, Push evicts the oldest
// entry instead of blocking the producer.
type Ring struct {
	mu      sync.Mutex
	data    []domain.Snapshot
	cap     int
	dropped uint64
	ready   chan struct{}
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		data:  make([]domain.Snapshot, 0, capacity),
		cap:   capacity,
		ready: make(chan struct{}, 1),
	}
}

// Push appends s and reports whether an older snapshot was evicted.
func (q *Ring) Push(s domain.Snapshot) bool {
	q.mu.Lock()
	evicted := false
	if len(q.data) >= q.cap {
		q.data = append(q.data[:0], q.data[1:]...)
		q.dropped++
		evicted = true
	}
	q.data = append(q.data, s)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted
}

// PopBatch removes up to max snapshots in FIFO order. max <= 0 drains all.
func (q *Ring) PopBatch(max int) []domain.Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]domain.Snapshot, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

// Ready is signalled after a Push.
func (q *Ring) Ready() <-chan struct{} { return q.ready }

func (q *Ring) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// Dropped counts evictions since creation.
func (q *Ring) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
