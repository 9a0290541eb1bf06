// Package pipeline batches snapshots from the acquisition loop into slower
// stores such as TimescaleDB.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/subradiance/daqlog/internal/adapters/observability"
	"github.com/subradiance/daqlog/internal/adapters/queue"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// Defaults for NewIngest.
const (
	DefaultMaxBatch     = 32
	DefaultWriteTimeout = 5 * time.Second
)

// BatchWriter stores several snapshots in one round trip.
type BatchWriter interface {
	Name() string
	WriteBatch(ctx context.Context, snaps []domain.Snapshot) error
}

// Ingest queues snapshots and writes them in batches on its own goroutine.
// A failed batch is logged and dropped; the log file stays the record of
// truth.
type Ingest struct {
	sink     BatchWriter
	q        *queue.Ring
	maxBatch int
	timeout  time.Duration
	obs      ports.Observability

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

var _ ports.Observer = (*Ingest)(nil)

func NewIngest(sink BatchWriter, capacity, maxBatch int, obs ports.Observability) *Ingest {
	if obs == nil {
		obs = observability.Nop{}
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	in := &Ingest{
		sink:     sink,
		q:        queue.NewRing(capacity),
		maxBatch: maxBatch,
		timeout:  DefaultWriteTimeout,
		obs:      obs,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go in.run()
	return in
}

func (in *Ingest) Observe(s domain.Snapshot) {
	if in.q.Push(s) {
		in.obs.IncCounter(ports.MetricSnapshotsDrop, 1)
	}
}

// Close writes whatever is still queued and stops the worker.
func (in *Ingest) Close() error {
	in.once.Do(func() { close(in.stop) })
	<-in.done
	return nil
}

func (in *Ingest) run() {
	defer close(in.done)
	for {
		select {
		case <-in.q.Ready():
			in.flush()
		case <-in.stop:
			in.flush()
			return
		}
	}
}

func (in *Ingest) flush() {
	for {
		batch := in.q.PopBatch(in.maxBatch)
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), in.timeout)
		start := time.Now()
		err := in.sink.WriteBatch(ctx, batch)
		cancel()
		if err != nil {
			in.obs.LogError("sink write failed", err,
				ports.F("sink", in.sink.Name()),
				ports.F("snapshots", len(batch)),
				ports.F("first_cycle", batch[0].Cycle))
			in.obs.IncCounter(ports.MetricSinkFailures, 1)
			continue
		}
		in.obs.ObserveLatency(ports.MetricSinkLatency, time.Since(start).Seconds())
		in.obs.IncCounter(ports.MetricSnapshotsStored, float64(len(batch)))
	}
}
