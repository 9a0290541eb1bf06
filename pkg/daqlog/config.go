package daqlog

import (
	"github.com/subradiance/daqlog/internal/app/config"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// Config re-exports the root configuration struct so callers can build or
// adjust it programmatically.
type Config = config.Config

type (
	// Field is one structured log key/value.
	Field = ports.Field
	// Device is one instrument polled every cycle.
	Device = ports.Device
	// Observer receives periodic snapshots.
	Observer = ports.Observer
	// RowWriter persists the header and rows of a session log.
	RowWriter = ports.RowWriter
	// Observability is the logging and metrics port.
	Observability = ports.Observability
	// Snapshot is the periodic summary handed to observers.
	Snapshot = domain.Snapshot
	// ObserverFunc adapts a plain function into an Observer.
	ObserverFunc = ports.ObserverFunc
	// State is the session lifecycle state.
	State = domain.State
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// LoadDotEnv loads .env files into the environment before LoadConfig reads
// DAQLOG_* overrides.
func LoadDotEnv(files ...string) error {
	return config.LoadDotEnv(files...)
}
