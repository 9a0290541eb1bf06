package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogDebug(msg string, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
}

type Field struct {
	Key   string
	Value any
}

// F is shorthand for building a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Metric names recorded by the acquisition loop.
const (
	MetricCycles         = "daqlog_cycles_total"
	MetricDeviceFailures = "daqlog_device_failures_total"
	MetricRowsWritten    = "daqlog_rows_written_total"
	MetricReadLatency    = "daqlog_device_read_latency_seconds"
	MetricLogSize        = "daqlog_log_size_bytes"
	MetricCadence        = "daqlog_cadence_hz"
	MetricEfficiency     = "daqlog_integration_efficiency_ratio"
	MetricSnapshotsDrop  = "daqlog_snapshots_dropped_total"

	MetricSnapshotsStored = "daqlog_snapshots_stored_total"
	MetricSinkFailures    = "daqlog_sink_failures_total"
	MetricSinkLatency     = "daqlog_sink_write_latency_seconds"
)
