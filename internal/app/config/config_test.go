package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/subradiance/daqlog/internal/adapters/pressure"
	"github.com/subradiance/daqlog/internal/domain"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
pressure:
  enabled: true
  serial:
    port: /dev/ttyUSB0
spectrum:
  enabled: true
  address: 192.168.1.20:5025
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Acquisition.Interval != time.Second {
		t.Fatalf("expected interval default 1s, got %s", cfg.Acquisition.Interval)
	}
	if cfg.Output.SyncEvery != 50 || cfg.Acquisition.ObserverEvery != 10 {
		t.Fatalf("expected sync 50 and observer 10, got %d and %d", cfg.Output.SyncEvery, cfg.Acquisition.ObserverEvery)
	}
	if cfg.Pressure.Serial.Baudrate != 9600 || cfg.Pressure.Gauge.Address != "001" {
		t.Fatalf("unexpected pressure defaults %+v", cfg.Pressure)
	}
	if cfg.Pressure.Gauge.Parameters[pressure.ParamPressure].Number != "740" {
		t.Fatalf("expected default parameter table")
	}
	if cfg.Spectrum.Link != LinkTCP || cfg.Spectrum.Timeout != 5*time.Second {
		t.Fatalf("unexpected spectrum defaults %+v", cfg.Spectrum)
	}
	if cfg.Spectrum.Analyzer.CenterFrequency != 2.5e9 || cfg.Spectrum.Analyzer.PowerUnit != "DBM" {
		t.Fatalf("unexpected analyzer defaults %+v", cfg.Spectrum.Analyzer)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}
}

func TestParseCustomParameterTable(t *testing.T) {
	data := `
acquisition:
  interval: 250ms
pressure:
  enabled: true
  serial:
    port: COM3
    baudrate: 19200
    parity: E
  gauge:
    address: "002"
    command_delay: 20ms
    parameters:
      pressure: {number: "740", response_type: u_expo_new}
      unit:
        number: "660"
        response_type: u_short_int
        value_map: {mbar: "000", Torr: "001", hPa: "002", Micron: "003"}
`
	cfg, err := Parse([]byte(data), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Acquisition.Interval != 250*time.Millisecond {
		t.Fatalf("interval %s", cfg.Acquisition.Interval)
	}
	g := cfg.Pressure.Gauge
	if g.Address != "002" || g.CommandDelay != 20*time.Millisecond {
		t.Fatalf("unexpected gauge %+v", g)
	}
	if g.Parameters["unit"].ValueMap["Micron"] != "003" {
		t.Fatalf("value map not decoded: %+v", g.Parameters["unit"])
	}
	if g.Timeout != 3*time.Second {
		t.Fatalf("gauge timeout should follow serial timeout, got %s", g.Timeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"DAQLOG_OUTPUT_DIR":    "/data/run7",
		"DAQLOG_INTERVAL":      "2s",
		"DAQLOG_SIMULATE":      "true",
		"DAQLOG_PRESSURE_PORT": "/dev/ttyS1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := Parse([]byte("pressure:\n  enabled: true\n"), lookup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Output.Dir != "/data/run7" || cfg.Acquisition.Interval != 2*time.Second || !cfg.Simulate {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Pressure.Serial.Port != "/dev/ttyS1" {
		t.Fatalf("port override not applied")
	}

	env["DAQLOG_INTERVAL"] = "soon"
	if _, err := Parse([]byte("pressure:\n  enabled: true\n"), lookup); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration failure, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"nothing enabled":  "title: x\n",
		"missing port":     "pressure:\n  enabled: true\n",
		"missing address":  "spectrum:\n  enabled: true\n",
		"bad link":         "spectrum:\n  enabled: true\n  link: usb\n  address: x\n",
		"unknown field":    "pressure:\n  enabled: true\n  speed: 3\n",
		"negative sync":    "simulate: true\npressure:\n  enabled: true\noutput:\n  sync_every: -1\n",
		"bad gauge addr":   "simulate: true\npressure:\n  enabled: true\n  gauge:\n    address: \"1\"\n",
		"bad gpib address": "spectrum:\n  enabled: true\n  link: gpib\n  gpib:\n    address: 40\n    serial:\n      port: /dev/ttyACM0\n",
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data), nil); !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected configuration failure, got %v", name, err)
		}
	}
}

func TestSimulateSkipsTransportValidation(t *testing.T) {
	cfg, err := Parse([]byte("simulate: true\npressure:\n  enabled: true\nspectrum:\n  enabled: true\n"), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Sections()) != 1 {
		t.Fatalf("expected only the logging section, got %+v", cfg.Sections())
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DAQLOG_TEST_ONLY_KEY=42\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("DAQLOG_TEST_ONLY_KEY") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if os.Getenv("DAQLOG_TEST_ONLY_KEY") != "42" {
		t.Fatalf("dotenv value not exported")
	}
}

func TestTimescaleRedacted(t *testing.T) {
	tc := TimescaleConfig{ConnString: "postgres://lab:secret@db:5432/daq?sslmode=disable"}
	if got := tc.Redacted(); got != "postgres://lab:***@db:5432/daq?sslmode=disable" {
		t.Fatalf("unexpected redaction %q", got)
	}
}
