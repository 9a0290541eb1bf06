package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/subradiance/daqlog/internal/adapters/observability"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// DefaultObserverEvery is the snapshot cadence in cycles.
const DefaultObserverEvery = 10

// Session owns the devices and the log writer for one acquisition run.
type Session struct {
	state atomic.Int32

	sched    *Scheduler
	writer   ports.RowWriter
	observer ports.Observer
	obs      ports.Observability
	header   domain.Header

	interval      time.Duration
	observerEvery uint64
	maxCycles     uint64
	workers       int

	latest map[string]domain.Reading

	stop     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
}

type Option func(*Session)

// WithObserver attaches a snapshot observer.
func WithObserver(o ports.Observer) Option { return func(s *Session) { s.observer = o } }

// WithObserverEvery sets how many cycles pass between snapshots.
func WithObserverEvery(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.observerEvery = uint64(n)
		}
	}
}

// WithMaxCycles stops the session after n cycles. Zero means unbounded.
func WithMaxCycles(n uint64) Option { return func(s *Session) { s.maxCycles = n } }

func WithObservability(o ports.Observability) Option {
	return func(s *Session) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithHeader sets the title and configuration sections echoed in the log.
func WithHeader(h domain.Header) Option { return func(s *Session) { s.header = h } }

// WithWorkers caps concurrent device reads.
func WithWorkers(n int) Option { return func(s *Session) { s.workers = n } }

// NewSession validates the setup. Any error is a configuration failure and the
// session never runs.
func NewSession(devices []ports.Device, writer ports.RowWriter, interval time.Duration, opts ...Option) (*Session, error) {
	s := &Session{
		writer:        writer,
		obs:           observability.Nop{},
		interval:      interval,
		observerEvery: DefaultObserverEvery,
		workers:       DefaultWorkers,
		latest:        make(map[string]domain.Reading),
		stop:          make(chan struct{}),
	}
	s.state.Store(int32(domain.StateInitializing))
	for _, opt := range opts {
		opt(s)
	}

	if writer == nil {
		return nil, domain.NewFailure(domain.ConfigurationFailure, "", errors.New("log writer is nil"))
	}
	if interval <= 0 {
		return nil, domain.NewFailure(domain.ConfigurationFailure, "", fmt.Errorf("interval must be positive, got %s", interval))
	}
	sched, err := NewScheduler(devices, s.obs, s.workers)
	if err != nil {
		return nil, err
	}
	s.sched = sched
	return s, nil
}

func (s *Session) State() domain.State { return domain.State(s.state.Load()) }

func (s *Session) Schema() domain.Schema { return s.sched.Schema() }

// Stop requests a drain after the current cycle. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run writes the header and loops until ctx is cancelled, Stop is called,
// MaxCycles is reached or the writer fails. Devices and writer are closed
// before Run returns. A nil error means the session ended Stopped.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}

	header := s.buildHeader()
	if werr := s.writer.WriteHeader(header, s.sched.Schema()); werr != nil {
		return s.finish(domain.StateFaulted, asWriteFailure(werr))
	}
	s.state.Store(int32(domain.StateRunning))
	s.obs.LogInfo("acquisition started",
		ports.F("path", s.writer.Path()),
		ports.F("interval", s.interval),
		ports.F("columns", s.sched.Schema().Len()))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	cadence := NewCadence(s.interval)
	for {
		if runCtx.Err() != nil {
			return s.finish(domain.StateStopped, nil)
		}

		c := s.sched.Next(runCtx, cadence.Begin())
		if werr := s.record(c); werr != nil {
			s.obs.LogError("log write failed", werr, ports.F("cycle", c.Number))
			return s.finish(domain.StateFaulted, werr)
		}

		if s.maxCycles > 0 && c.Number+1 >= s.maxCycles {
			return s.finish(domain.StateStopped, nil)
		}
		_ = cadence.Wait(runCtx)
	}
}

func (s *Session) record(c Cycle) error {
	for _, d := range s.sched.Devices() {
		name := d.Name()
		res := c.Results[name]
		if res.OK() {
			s.latest[name] = *res.Reading
			s.obs.ObserveLatency(ports.MetricReadLatency, c.Latencies[name].Seconds())
			continue
		}
		s.obs.IncCounter(ports.MetricDeviceFailures, 1)
		s.obs.LogError("device read failed", res.Failure,
			ports.F("device", name),
			ports.F("kind", res.Failure.Kind.String()),
			ports.F("cycle", c.Number))
	}

	if err := s.writer.WriteRow(c.Row.Cells()); err != nil {
		return asWriteFailure(err)
	}
	s.obs.IncCounter(ports.MetricCycles, 1)
	s.obs.IncCounter(ports.MetricRowsWritten, 1)
	s.obs.SetGauge(ports.MetricLogSize, float64(s.writer.SizeBytes()))
	s.obs.SetGauge(ports.MetricCadence, Rate(c.Number, c.Elapsed))
	if c.HasEfficiency {
		s.obs.SetGauge(ports.MetricEfficiency, c.Efficiency)
	}

	if s.observer != nil && c.Number%s.observerEvery == 0 {
		s.observer.Observe(s.snapshot(c))
	}
	return nil
}

func (s *Session) snapshot(c Cycle) domain.Snapshot {
	readings := make(map[string]domain.Reading, len(s.latest))
	for k, v := range s.latest {
		readings[k] = v
	}
	size := s.writer.SizeBytes()
	snap := domain.Snapshot{
		Cycle:            c.Number,
		Timestamp:        c.Start,
		Elapsed:          c.Elapsed,
		CycleTime:        c.CycleTime,
		InstrumentalTime: c.Instrumental,
		Readings:         readings,
		FileSizeBytes:    size,
		CadenceHz:        Rate(c.Number, c.Elapsed),
		Efficiency:       c.Efficiency,
		HasEfficiency:    c.HasEfficiency,
	}
	if hours := c.Elapsed.Hours(); hours > 0 {
		snap.GBPerHour = float64(size) / (1 << 30) / hours
	}
	return snap
}

func (s *Session) buildHeader() domain.Header {
	h := s.header
	h.Sections = append([]domain.Section(nil), s.header.Sections...)
	h.Sections = append(h.Sections, domain.Section{
		Title: "Acquisition",
		Settings: []domain.Setting{
			{Key: "interval", Value: s.interval.String()},
			{Key: "observer_every", Value: fmt.Sprint(s.observerEvery)},
			{Key: "workers", Value: fmt.Sprint(s.sched.workers)},
		},
	})
	docs := make(map[string][]domain.Setting, len(h.DeviceDocs))
	for k, v := range h.DeviceDocs {
		docs[k] = v
	}
	for _, d := range s.sched.Devices() {
		desc, ok := d.(ports.Describer)
		if !ok {
			continue
		}
		h.Sections = append(h.Sections, desc.Describe())
		if _, set := docs[d.Name()]; !set {
			docs[d.Name()] = desc.ColumnDocs()
		}
	}
	h.DeviceDocs = docs
	return h
}

// finish drains: it closes writer and devices, records the terminal state and
// returns cause combined with any close errors.
func (s *Session) finish(final domain.State, cause error) error {
	if final == domain.StateStopped {
		s.state.Store(int32(domain.StateStopping))
	}

	var closeErr error
	if err := s.writer.Close(); err != nil {
		closeErr = multierr.Append(closeErr, asWriteFailure(err))
	}
	for _, d := range s.sched.Devices() {
		if err := d.Close(); err != nil {
			closeErr = multierr.Append(closeErr, fmt.Errorf("close %s: %w", d.Name(), err))
		}
	}

	if final == domain.StateStopped && closeErr != nil && errors.Is(closeErr, domain.ErrWrite) {
		final = domain.StateFaulted
	}
	s.state.Store(int32(final))
	s.obs.LogInfo("acquisition finished",
		ports.F("state", final.String()),
		ports.F("path", s.writer.Path()),
		ports.F("bytes", s.writer.SizeBytes()))
	return multierr.Append(cause, closeErr)
}

func asWriteFailure(err error) error {
	var f *domain.Failure
	if errors.As(err, &f) {
		return err
	}
	return domain.NewFailure(domain.WriteFailure, "", err)
}
