package daqlog

import (
	base "github.com/subradiance/daqlog/pkg/daqlog"
)

// Type aliases so consumers can import github.com/subradiance/daqlog directly.
type (
	Config        = base.Config
	Runtime       = base.Runtime
	RuntimeOption = base.RuntimeOption
	Device        = base.Device
	Observer      = base.Observer
	RowWriter     = base.RowWriter
	Observability = base.Observability
	Field         = base.Field
	Snapshot      = base.Snapshot
	State         = base.State
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func LoadDotEnv(files ...string) error {
	return base.LoadDotEnv(files...)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithDevices(devices ...Device) RuntimeOption {
	return base.WithDevices(devices...)
}

func WithWriter(w RowWriter) RuntimeOption {
	return base.WithWriter(w)
}

func WithObserver(obs Observer) RuntimeOption {
	return base.WithObserver(obs)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// ObserverFunc adapts a plain function into an Observer.
type ObserverFunc = base.ObserverFunc

// Observer adapters.
type ChannelObserver = base.ChannelObserver

func NewChannelObserver(buffer int) (*ChannelObserver, <-chan Snapshot, func()) {
	return base.NewChannelObserver(buffer)
}
