package queue

import (
	"testing"

	"github.com/subradiance/daqlog/internal/domain"
)

func TestRingDropsOldest(t *testing.T) {
	q := NewRing(2)
	if q.Push(domain.Snapshot{Cycle: 1}) || q.Push(domain.Snapshot{Cycle: 2}) {
		t.Fatalf("no eviction expected below capacity")
	}
	if !q.Push(domain.Snapshot{Cycle: 3}) {
		t.Fatalf("expected eviction when full")
	}
	if q.Len() != 2 || q.Dropped() != 1 {
		t.Fatalf("len=%d dropped=%d", q.Len(), q.Dropped())
	}

	batch := q.PopBatch(0)
	if len(batch) != 2 || batch[0].Cycle != 2 || batch[1].Cycle != 3 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if q.PopBatch(1) != nil {
		t.Fatalf("expected empty queue")
	}
}

func TestRingPopBatchLimit(t *testing.T) {
	q := NewRing(5)
	for i := 0; i < 4; i++ {
		q.Push(domain.Snapshot{Cycle: uint64(i)})
	}
	first := q.PopBatch(3)
	if len(first) != 3 || first[2].Cycle != 2 {
		t.Fatalf("unexpected first batch %+v", first)
	}
	if rest := q.PopBatch(3); len(rest) != 1 || rest[0].Cycle != 3 {
		t.Fatalf("unexpected remainder %+v", rest)
	}
}

func TestRingSignalsReady(t *testing.T) {
	q := NewRing(1)
	q.Push(domain.Snapshot{})
	q.Push(domain.Snapshot{})
	select {
	case <-q.Ready():
	default:
		t.Fatalf("expected ready signal")
	}
}
