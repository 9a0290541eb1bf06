package acquisition

import (
	"context"
	"testing"
	"time"
)

func TestCadenceSleepsRemainderOfInterval(t *testing.T) {
	c := NewCadence(60 * time.Millisecond)
	start := c.Begin()
	time.Sleep(20 * time.Millisecond)
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := time.Since(start); got < 60*time.Millisecond {
		t.Fatalf("cycle shorter than interval: %s", got)
	}
}

func TestCadenceNoSleepOnOverrun(t *testing.T) {
	c := NewCadence(5 * time.Millisecond)
	c.Begin()
	time.Sleep(15 * time.Millisecond)
	if c.Remaining() != 0 {
		t.Fatalf("expected no remaining sleep, got %s", c.Remaining())
	}
	before := time.Now()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if time.Since(before) > 5*time.Millisecond {
		t.Fatalf("overrun cycle should not sleep")
	}
}

func TestCadenceWaitCancelled(t *testing.T) {
	c := NewCadence(time.Hour)
	c.Begin()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestRate(t *testing.T) {
	if got := Rate(10, 2*time.Second); got != 5 {
		t.Fatalf("expected 5 Hz, got %v", got)
	}
	if Rate(3, 0) != 0 {
		t.Fatalf("expected 0 for zero elapsed")
	}
}
