package daqlog

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/subradiance/daqlog/internal/adapters/pressure"
	"github.com/subradiance/daqlog/internal/adapters/scpi"
	"github.com/subradiance/daqlog/internal/adapters/simulated"
	"github.com/subradiance/daqlog/internal/adapters/spectrum"
	"github.com/subradiance/daqlog/internal/app/config"
	"github.com/subradiance/daqlog/internal/ports"
)

// Simulated device shape.
const (
	simulatedPoints  = 101
	simulatedLatency = 15 * time.Millisecond
)

// OpenDevices opens every enabled device in pressure, spectrum order. On
// error the devices already opened are closed again.
func OpenDevices(cfg *Config, obs ports.Observability) ([]ports.Device, error) {
	if cfg.Simulate {
		return simulatedDevices(cfg), nil
	}

	var devices []ports.Device
	fail := func(err error) ([]ports.Device, error) {
		for _, d := range devices {
			err = multierr.Append(err, d.Close())
		}
		return nil, err
	}

	if cfg.Pressure.Enabled {
		g, err := pressure.Open(cfg.Pressure.Serial, cfg.Pressure.Gauge)
		if err != nil {
			return fail(err)
		}
		devices = append(devices, g)
	}

	if cfg.Spectrum.Enabled {
		link, err := openLink(cfg.Spectrum)
		if err != nil {
			return fail(err)
		}
		a, err := spectrum.New(link, cfg.Spectrum.Analyzer, obs)
		if err != nil {
			return fail(multierr.Append(err, link.Close()))
		}
		devices = append(devices, a)
	}
	return devices, nil
}

func openLink(sc config.SpectrumConfig) (scpi.Link, error) {
	switch sc.Link {
	case config.LinkGPIB:
		g, err := scpi.OpenGPIB(sc.GPIB.Serial, sc.GPIB.Address)
		if err != nil {
			return nil, fmt.Errorf("open gpib link: %w", err)
		}
		return g, nil
	case config.LinkTCP, "":
		s, err := scpi.DialSocket(sc.Address, sc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", sc.Address, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown spectrum link %q", sc.Link)
	}
}

func simulatedDevices(cfg *Config) []ports.Device {
	var devices []ports.Device
	if cfg.Pressure.Enabled {
		devices = append(devices, simulated.NewGauge(cfg.Pressure.Gauge.Name, 1013, 1e-4, 0.9, simulatedLatency))
	}
	if cfg.Spectrum.Enabled {
		a := cfg.Spectrum.Analyzer
		axis := spectrum.Axis(a.CenterFrequency-a.Span/2, a.CenterFrequency+a.Span/2, simulatedPoints)
		sweep := cfg.Acquisition.Interval / 2
		devices = append(devices, simulated.NewSpectrum(a.Name, axis, sweep, time.Now().UnixNano()))
	}
	return devices
}
