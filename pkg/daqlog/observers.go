package daqlog

import (
	"sync"
	"sync/atomic"

	"github.com/subradiance/daqlog/internal/domain"
)

// NewChannelObserver exposes snapshots on a channel. Observe never blocks:
// when the buffer is full the snapshot is dropped and counted. The returned
// close function must be called once the runtime has finished.
func NewChannelObserver(buffer int) (*ChannelObserver, <-chan Snapshot, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan domain.Snapshot, buffer)
	o := &ChannelObserver{ch: ch}
	return o, ch, o.close
}

// ChannelObserver forwards snapshots to a channel without blocking.
type ChannelObserver struct {
	mu      sync.RWMutex
	ch      chan domain.Snapshot
	closed  bool
	dropped atomic.Uint64
}

func (o *ChannelObserver) Observe(s domain.Snapshot) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.dropped.Add(1)
		return
	}
	select {
	case o.ch <- s:
	default:
		o.dropped.Add(1)
	}
}

// Dropped counts snapshots that found the channel full or closed.
func (o *ChannelObserver) Dropped() uint64 { return o.dropped.Load() }

func (o *ChannelObserver) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
