package acquisition

import (
	"context"
	"time"
)

// Cadence holds a best-effort interval between cycle starts. Overrun shrinks
// the sleep to zero; cycles are never skipped and lost time is never caught up.
type Cadence struct {
	interval time.Duration
	start    time.Time
}

func NewCadence(interval time.Duration) *Cadence {
	return &Cadence{interval: interval}
}

// Begin marks the start of a cycle.
func (c *Cadence) Begin() time.Time {
	c.start = time.Now()
	return c.start
}

// Remaining is the sleep still owed for the current cycle.
func (c *Cadence) Remaining() time.Duration {
	d := c.interval - time.Since(c.start)
	if d < 0 {
		return 0
	}
	return d
}

// Wait sleeps out the rest of the interval. It returns ctx.Err() if cancelled first.
func (c *Cadence) Wait(ctx context.Context) error {
	d := c.Remaining()
	if d == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Rate is the achieved cadence in Hz.
func Rate(cycles uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(cycles) / elapsed.Seconds()
}
