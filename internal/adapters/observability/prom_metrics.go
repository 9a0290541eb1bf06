package observability

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/subradiance/daqlog/internal/ports"
)

type PromObs struct {
	logger   *log.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewLogger returns the console logger used across the daemon.
func NewLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "daqlog",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// NewPromObs registers the acquisition metrics with reg (the default
// registerer when nil) and logs through logger.
func NewPromObs(reg prometheus.Registerer, logger *log.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = NewLogger(false)
	}

	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricCycles,
		Help: "Acquisition cycles completed.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricDeviceFailures,
		Help: "Device reads that produced no reading.",
	})
	rows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricRowsWritten,
		Help: "Rows appended to the session log.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSnapshotsDrop,
		Help: "Snapshots evicted before an observer could take them.",
	})
	stored := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSnapshotsStored,
		Help: "Snapshots written to a batch sink.",
	})
	sinkFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSinkFailures,
		Help: "Snapshot batches a sink rejected.",
	})
	logSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricLogSize,
		Help: "Tracked size of the session log in bytes.",
	})
	cadence := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricCadence,
		Help: "Cycles per second since the session started.",
	})
	efficiency := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricEfficiency,
		Help: "Spectrum sweep time over measured cycle time.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricReadLatency,
		Help:    "Time from dispatching a device read to its response.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	sinkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricSinkLatency,
		Help:    "Time to write one snapshot batch to a sink.",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(cycles, failures, rows, dropped, stored, sinkFailures, logSize, cadence, efficiency, latency, sinkLatency)

	return &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricCycles:          cycles,
			ports.MetricDeviceFailures:  failures,
			ports.MetricRowsWritten:     rows,
			ports.MetricSnapshotsDrop:   dropped,
			ports.MetricSnapshotsStored: stored,
			ports.MetricSinkFailures:    sinkFailures,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricLogSize:    logSize,
			ports.MetricCadence:    cadence,
			ports.MetricEfficiency: efficiency,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricReadLatency: latency,
			ports.MetricSinkLatency: sinkLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, keyvals(fields)...)
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.logger.Debug(msg, keyvals(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	kv := keyvals(fields)
	if err != nil {
		kv = append([]any{"err", err}, kv...)
	}
	p.logger.Error(msg, kv...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func keyvals(fields []ports.Field) []any {
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

var _ ports.Observability = (*PromObs)(nil)
