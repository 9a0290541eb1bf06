package simulated

import (
	"context"
	"errors"
	"testing"

	"github.com/subradiance/daqlog/internal/domain"
)

func TestGaugeRampsToFloor(t *testing.T) {
	g := NewGauge("", 1000, 1, 0.1, 0)
	want := []float64{1000, 100, 10, 1, 1}
	for i, w := range want {
		res := g.Read(context.Background())
		if !res.OK() {
			t.Fatalf("read %d: %v", i, res.Failure)
		}
		if got := res.Reading.Scalar.Value; got < w*0.999 || got > w*1.001 {
			t.Fatalf("read %d = %v, want %v", i, got, w)
		}
	}
}

func TestSpectrumIsDeterministic(t *testing.T) {
	axis := []float64{1, 2, 3, 4, 5}
	a := NewSpectrum("", axis, 0, 7)
	b := NewSpectrum("", axis, 0, 7)

	ra, rb := a.Read(context.Background()), b.Read(context.Background())
	if !ra.OK() || !rb.OK() {
		t.Fatalf("reads failed")
	}
	if len(ra.Reading.Vector) != len(axis) || len(a.Columns()) != len(axis) {
		t.Fatalf("width mismatch")
	}
	for i := range axis {
		if ra.Reading.Vector[i] != rb.Reading.Vector[i] {
			t.Fatalf("same seed produced different traces")
		}
	}
	if a.Columns()[0] != "1 Hz" {
		t.Fatalf("unexpected column %q", a.Columns()[0])
	}
}

func TestReadHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewSpectrum("", []float64{1}, 0, 1).Read(ctx)
	if res.OK() || !errors.Is(res.Failure, domain.ErrTransport) {
		t.Fatalf("expected transport failure, got %+v", res)
	}
}
