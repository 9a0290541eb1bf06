// Package simulated provides stand-in devices for dry runs without hardware.
package simulated

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// Gauge ramps pressure down geometrically toward a floor.
type Gauge struct {
	mu      sync.Mutex
	name    string
	unit    string
	value   float64
	floor   float64
	factor  float64
	latency time.Duration
}

var _ ports.Device = (*Gauge)(nil)

// NewGauge starts at start and multiplies by factor each read, never below floor.
func NewGauge(name string, start, floor, factor float64, latency time.Duration) *Gauge {
	if name == "" {
		name = "Pressure"
	}
	return &Gauge{name: name, unit: "mbar", value: start, floor: floor, factor: factor, latency: latency}
}

func (g *Gauge) Name() string      { return g.name }
func (g *Gauge) Columns() []string { return []string{"Pressure", "Pressure_Unit"} }
func (g *Gauge) Close() error      { return nil }

func (g *Gauge) Read(ctx context.Context) domain.Result {
	issued := time.Now()
	if err := wait(ctx, g.latency); err != nil {
		return domain.Failed(domain.NewFailure(domain.TransportFailure, g.name, err))
	}
	g.mu.Lock()
	v := g.value
	g.value = math.Max(g.floor, g.value*g.factor)
	g.mu.Unlock()
	return domain.Success(&domain.Reading{
		Device:    g.name,
		Scalar:    &domain.Scalar{Value: v, Unit: g.unit},
		Issued:    issued,
		Completed: time.Now(),
	})
}

// Spectrum emits a Gaussian line on a noisy floor.
type Spectrum struct {
	mu      sync.Mutex
	name    string
	axis    []float64
	columns []string
	rng     *rand.Rand
	floor   float64
	noise   float64
	peak    float64
	sweep   time.Duration
}

var (
	_ ports.Device  = (*Spectrum)(nil)
	_ ports.Sweeper = (*Spectrum)(nil)
)

// NewSpectrum builds a trace over axis with a deterministic noise seed.
// The call blocks for sweep on every read.
func NewSpectrum(name string, axis []float64, sweep time.Duration, seed int64) *Spectrum {
	if name == "" {
		name = "Spectrum"
	}
	cols := make([]string, len(axis))
	for i, f := range axis {
		cols[i] = strconv.FormatFloat(f, 'f', -1, 64) + " Hz"
	}
	return &Spectrum{
		name:    name,
		axis:    axis,
		columns: cols,
		rng:     rand.New(rand.NewSource(seed)),
		floor:   -90,
		noise:   1.5,
		peak:    40,
		sweep:   sweep,
	}
}

func (s *Spectrum) Name() string             { return s.name }
func (s *Spectrum) Columns() []string        { return append([]string(nil), s.columns...) }
func (s *Spectrum) SweepTime() time.Duration { return s.sweep }
func (s *Spectrum) Close() error             { return nil }

func (s *Spectrum) Read(ctx context.Context) domain.Result {
	issued := time.Now()
	if err := wait(ctx, s.sweep); err != nil {
		return domain.Failed(domain.NewFailure(domain.TransportFailure, s.name, err))
	}

	n := len(s.axis)
	out := make([]float64, n)
	center, width := float64(n-1)/2, float64(n)/20+1
	s.mu.Lock()
	for i := range out {
		d := (float64(i) - center) / width
		out[i] = s.floor + s.peak*math.Exp(-d*d/2) + s.noise*s.rng.NormFloat64()
	}
	s.mu.Unlock()
	return domain.Success(&domain.Reading{
		Device:    s.name,
		Vector:    out,
		Issued:    issued,
		Completed: time.Now(),
	})
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
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
