package domain

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestFailureMatchesKindAndCause(t *testing.T) {
	f := NewFailure(ProtocolFailure, "Pressure", io.ErrUnexpectedEOF)
	if !errors.Is(f, ErrProtocol) || !errors.Is(f, io.ErrUnexpectedEOF) {
		t.Fatalf("failure should match kind and cause")
	}
	if errors.Is(f, ErrTransport) {
		t.Fatalf("failure matched the wrong kind")
	}
	if f.Error() != "Pressure protocol: unexpected EOF" {
		t.Fatalf("unexpected message %q", f.Error())
	}

	var got *Failure
	if !errors.As(error(Transportf("", "timeout after %s", time.Second)), &got) || got.Kind != TransportFailure {
		t.Fatalf("errors.As failed")
	}
}

func TestResultAndReading(t *testing.T) {
	now := time.Now()
	r := &Reading{Scalar: &Scalar{Value: 12.3, Unit: "mbar"}, Issued: now, Completed: now.Add(5 * time.Millisecond)}
	res := Success(r)
	if !res.OK() || r.Latency() != 5*time.Millisecond {
		t.Fatalf("unexpected result %+v", res)
	}
	if c := r.Cells(); len(c) != 2 || c[0] != "12.3" || c[1] != "mbar" {
		t.Fatalf("unexpected cells %q", c)
	}
	if Failed(Transportf("x", "boom")).OK() {
		t.Fatalf("failure reported OK")
	}
	if (Result{}).OK() {
		t.Fatalf("empty result reported OK")
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateInitializing, StateRunning, StateStopping} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	if !StateStopped.Terminal() || !StateFaulted.Terminal() {
		t.Fatalf("stopped and faulted are terminal")
	}
	if StateFaulted.String() != "faulted" {
		t.Fatalf("unexpected state name %q", StateFaulted.String())
	}
}
