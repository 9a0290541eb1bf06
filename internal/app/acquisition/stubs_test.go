package acquisition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

type scalarDevice struct {
	name   string
	value  float64
	unit   string
	delay  time.Duration
	closed atomic.Bool
}

func (d *scalarDevice) Name() string      { return d.name }
func (d *scalarDevice) Columns() []string { return []string{"Pressure", "Pressure_Unit"} }
func (d *scalarDevice) Close() error      { d.closed.Store(true); return nil }

func (d *scalarDevice) Read(ctx context.Context) domain.Result {
	issued := time.Now()
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return domain.Success(&domain.Reading{
		Device:    d.name,
		Scalar:    &domain.Scalar{Value: d.value, Unit: d.unit},
		Issued:    issued,
		Completed: time.Now(),
	})
}

type vectorDevice struct {
	name   string
	cols   []string
	values []float64
	sweep  time.Duration
	delay  time.Duration
}

func (d *vectorDevice) Name() string             { return d.name }
func (d *vectorDevice) Columns() []string        { return d.cols }
func (d *vectorDevice) Close() error             { return nil }
func (d *vectorDevice) SweepTime() time.Duration { return d.sweep }

func (d *vectorDevice) Read(ctx context.Context) domain.Result {
	issued := time.Now()
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return domain.Success(&domain.Reading{
		Device:    d.name,
		Vector:    append([]float64(nil), d.values...),
		Issued:    issued,
		Completed: time.Now(),
	})
}

type failingDevice struct {
	name string
	cols []string
}

func (d *failingDevice) Name() string      { return d.name }
func (d *failingDevice) Columns() []string { return d.cols }
func (d *failingDevice) Close() error      { return errors.New("port already gone") }

func (d *failingDevice) Read(context.Context) domain.Result {
	return domain.Failed(domain.Transportf(d.name, "no response"))
}

type panickyDevice struct{ failingDevice }

type failingSweeper struct {
	failingDevice
	sweep time.Duration
}

func (d *failingSweeper) SweepTime() time.Duration { return d.sweep }

func (d *panickyDevice) Read(context.Context) domain.Result { panic("serial driver exploded") }

type memWriter struct {
	mu        sync.Mutex
	header    domain.Header
	schema    domain.Schema
	rows      [][]string
	size      int64
	failAfter int
	closed    bool
}

var _ ports.RowWriter = (*memWriter)(nil)

func (w *memWriter) WriteHeader(h domain.Header, s domain.Schema) error {
	w.header, w.schema = h, s
	return nil
}

func (w *memWriter) WriteRow(cells []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAfter > 0 && len(w.rows) >= w.failAfter {
		return errors.New("no space left on device")
	}
	w.rows = append(w.rows, append([]string(nil), cells...))
	for _, c := range cells {
		w.size += int64(len(c)) + 1
	}
	return nil
}

func (w *memWriter) SizeBytes() int64 { return w.size }
func (w *memWriter) Path() string     { return "mem" }
func (w *memWriter) Close() error     { w.closed = true; return nil }

type recordingObserver struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
}

func (o *recordingObserver) Observe(s domain.Snapshot) {
	o.mu.Lock()
	o.snaps = append(o.snaps, s)
	o.mu.Unlock()
}

type countingObs struct {
	mu       sync.Mutex
	errors   []error
	counters map[string]float64
	gauges   map[string]float64
}

func newCountingObs() *countingObs {
	return &countingObs{counters: map[string]float64{}, gauges: map[string]float64{}}
}

func (o *countingObs) LogInfo(string, ...ports.Field)  {}
func (o *countingObs) LogDebug(string, ...ports.Field) {}
func (o *countingObs) LogError(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	o.errors = append(o.errors, err)
	o.mu.Unlock()
}
func (o *countingObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	o.counters[name] += v
	o.mu.Unlock()
}
func (o *countingObs) ObserveLatency(string, float64) {}
func (o *countingObs) SetGauge(name string, v float64) {
	o.mu.Lock()
	o.gauges[name] = v
	o.mu.Unlock()
}
