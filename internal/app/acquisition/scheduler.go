package acquisition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/subradiance/daqlog/internal/adapters/observability"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// DefaultWorkers caps concurrent device reads per cycle.
const DefaultWorkers = 2

// Cycle is the outcome of one scheduler tick.
type Cycle struct {
	Number        uint64
	Start         time.Time
	Elapsed       time.Duration
	CycleTime     time.Duration
	Instrumental  time.Duration
	Efficiency    float64
	HasEfficiency bool
	Results       map[string]domain.Result
	Latencies     map[string]time.Duration
	Row           domain.Row
}

// Scheduler dispatches concurrent device reads and assembles rows.
type Scheduler struct {
	devices  []ports.Device
	schema   domain.Schema
	obs      ports.Observability
	workers  int
	sweep    time.Duration
	hasSweep bool
	sweepers []string

	cycle     uint64
	started   time.Time
	prevStart time.Time
}

// NewScheduler builds the session schema from the device set.
func NewScheduler(devices []ports.Device, obs ports.Observability, workers int) (*Scheduler, error) {
	if len(devices) == 0 {
		return nil, domain.NewFailure(domain.ConfigurationFailure, "", fmt.Errorf("no devices enabled"))
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(devices) {
		workers = len(devices)
	}

	if obs == nil {
		obs = observability.Nop{}
	}
	s := &Scheduler{devices: devices, obs: obs, workers: workers}
	b := domain.NewSchemaBuilder()
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		if seen[d.Name()] {
			return nil, domain.NewFailure(domain.ConfigurationFailure, d.Name(), fmt.Errorf("duplicate device name"))
		}
		seen[d.Name()] = true
		b.Device(d.Name(), d.Columns())
		if sw, ok := d.(ports.Sweeper); ok {
			s.hasSweep = true
			s.sweepers = append(s.sweepers, d.Name())
			if t := sw.SweepTime(); t > s.sweep {
				s.sweep = t
			}
		}
	}
	if s.hasSweep {
		b.Efficiency()
	}
	schema, err := b.Build()
	if err != nil {
		return nil, domain.NewFailure(domain.ConfigurationFailure, "", err)
	}
	s.schema = schema
	return s, nil
}

func (s *Scheduler) Schema() domain.Schema { return s.schema }

func (s *Scheduler) Devices() []ports.Device { return s.devices }

// Next runs one cycle starting at start. Reads are not cancelled by ctx once
// dispatched; each adapter bounds its own call.
func (s *Scheduler) Next(ctx context.Context, start time.Time) Cycle {
	if s.started.IsZero() {
		s.started = start
	}
	c := Cycle{
		Number:  s.cycle,
		Start:   start,
		Elapsed: start.Sub(s.started),
	}
	if !s.prevStart.IsZero() {
		c.CycleTime = start.Sub(s.prevStart)
	}
	s.prevStart = start
	s.cycle++

	c.Results, c.Latencies = s.dispatch(context.WithoutCancel(ctx))
	for _, lat := range c.Latencies {
		if lat > c.Instrumental {
			c.Instrumental = lat
		}
	}

	if s.hasSweep && s.sweepsOK(c.Results) {
		c.HasEfficiency = true
		c.Efficiency = 1
		if c.CycleTime > 0 {
			c.Efficiency = float64(s.sweep) / float64(c.CycleTime)
		}
	}
	c.Row = s.row(c)
	return c
}

// sweepsOK reports whether every sweeping device returned a reading this
// cycle. The efficiency cell belongs to their segment and stays empty otherwise.
func (s *Scheduler) sweepsOK(results map[string]domain.Result) bool {
	for _, name := range s.sweepers {
		if !results[name].OK() {
			return false
		}
	}
	return true
}

func (s *Scheduler) dispatch(ctx context.Context) (map[string]domain.Result, map[string]time.Duration) {
	type outcome struct {
		name    string
		res     domain.Result
		latency time.Duration
	}

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.workers)
		out = make(chan outcome, len(s.devices))
	)
	for _, d := range s.devices {
		wg.Add(1)
		go func(d ports.Device) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			dispatched := time.Now()
			res := safeRead(ctx, d)
			responded := time.Now()
			if res.OK() && !res.Reading.Completed.IsZero() {
				responded = res.Reading.Completed
			}
			out <- outcome{name: d.Name(), res: res, latency: responded.Sub(dispatched)}
		}(d)
	}
	wg.Wait()
	close(out)

	results := make(map[string]domain.Result, len(s.devices))
	latencies := make(map[string]time.Duration, len(s.devices))
	for o := range out {
		results[o.name] = o.res
		latencies[o.name] = o.latency
	}
	return results, latencies
}

// safeRead converts a panic or an empty result into a transport failure.
func safeRead(ctx context.Context, d ports.Device) (res domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.Failed(domain.Transportf(d.Name(), "adapter panic: %v", r))
		}
	}()
	res = d.Read(ctx)
	if res.Failure == nil && res.Reading == nil {
		res = domain.Failed(domain.Transportf(d.Name(), "adapter returned no reading"))
	}
	if res.Failure != nil && res.Failure.Device == "" {
		res.Failure.Device = d.Name()
	}
	return res
}

func (s *Scheduler) row(c Cycle) domain.Row {
	row := s.schema.NewRow()
	row.Set(domain.ColTimestamp, c.Start.Format(time.RFC3339))
	row.Set(domain.ColElapsed, domain.FormatFloat(c.Elapsed.Seconds()))
	row.Set(domain.ColCycle, fmt.Sprint(c.Number))
	row.Set(domain.ColCycleTime, ms(c.CycleTime))
	row.Set(domain.ColInstrumental, ms(c.Instrumental))
	if c.HasEfficiency {
		row.Set(domain.ColEfficiency, domain.FormatFloat(c.Efficiency*100))
	}
	for _, d := range s.devices {
		res := c.Results[d.Name()]
		if !res.OK() {
			continue
		}
		row.Set(domain.LatencyColumn(d.Name()), ms(c.Latencies[d.Name()]))
		if !row.Fill(d.Name(), res.Reading.Cells()) {
			s.obs.LogError("reading width does not match columns",
				fmt.Errorf("%d cells for %d columns", len(res.Reading.Cells()), len(d.Columns())),
				ports.F("device", d.Name()), ports.F("cycle", c.Number))
		}
	}
	return row
}

func ms(d time.Duration) string {
	return domain.FormatFloat(float64(d) / float64(time.Millisecond))
}
