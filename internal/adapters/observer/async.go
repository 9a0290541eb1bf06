// Package observer holds the snapshot sinks: console, Redis, HTTP status and
// the asynchronous front that keeps them off the acquisition loop.
package observer

import (
	"fmt"
	"sync"

	"github.com/subradiance/daqlog/internal/adapters/observability"
	"github.com/subradiance/daqlog/internal/adapters/queue"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// Async hands snapshots to next on its own goroutine. Observe never blocks;
// when next falls behind the oldest pending snapshot is dropped.
type Async struct {
	next ports.Observer
	q    *queue.Ring
	obs  ports.Observability

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

var _ ports.Observer = (*Async)(nil)

func NewAsync(next ports.Observer, size int, obs ports.Observability) *Async {
	if obs == nil {
		obs = observability.Nop{}
	}
	a := &Async{
		next: next,
		q:    queue.NewRing(size),
		obs:  obs,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) Observe(s domain.Snapshot) {
	if a.q.Push(s) {
		a.obs.IncCounter(ports.MetricSnapshotsDrop, 1)
	}
}

// Close delivers what is still queued and stops the worker.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.stop) })
	<-a.done
	return nil
}

// Dropped counts snapshots evicted before delivery.
func (a *Async) Dropped() uint64 { return a.q.Dropped() }

func (a *Async) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.q.Ready():
			a.drain()
		case <-a.stop:
			a.drain()
			return
		}
	}
}

func (a *Async) drain() {
	for _, s := range a.q.PopBatch(0) {
		a.deliver(s)
	}
}

func (a *Async) deliver(s domain.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			a.obs.LogError("observer panic", fmt.Errorf("%v", r), ports.F("cycle", s.Cycle))
		}
	}()
	a.next.Observe(s)
}
