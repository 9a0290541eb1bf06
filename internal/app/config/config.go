package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/subradiance/daqlog/internal/adapters/pressure"
	"github.com/subradiance/daqlog/internal/adapters/spectrum"
	"github.com/subradiance/daqlog/internal/adapters/transport"
	"github.com/subradiance/daqlog/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DAQLOG_"

type Config struct {
	Title       string            `yaml:"title"`
	Simulate    bool              `yaml:"simulate"`
	Output      OutputConfig      `yaml:"output"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Pressure    PressureConfig    `yaml:"pressure"`
	Spectrum    SpectrumConfig    `yaml:"spectrum"`
	Observers   ObserversConfig   `yaml:"observers"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

type OutputConfig struct {
	Dir       string `yaml:"dir"`
	SyncEvery int    `yaml:"sync_every"`
}

type AcquisitionConfig struct {
	Interval      time.Duration `yaml:"interval"`
	ObserverEvery int           `yaml:"observer_every"`
	Workers       int           `yaml:"workers"`
	MaxCycles     uint64        `yaml:"max_cycles"`
}

type PressureConfig struct {
	Enabled bool                   `yaml:"enabled"`
	Serial  transport.SerialConfig `yaml:"serial"`
	Gauge   pressure.Config        `yaml:"gauge"`
}

const (
	LinkTCP  = "tcp"
	LinkGPIB = "gpib"
)

type SpectrumConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Link     string          `yaml:"link"`
	Address  string          `yaml:"address"`
	Timeout  time.Duration   `yaml:"timeout"`
	GPIB     GPIBConfig      `yaml:"gpib"`
	Analyzer spectrum.Config `yaml:"analyzer"`
}

type GPIBConfig struct {
	Serial  transport.SerialConfig `yaml:"serial"`
	Address int                    `yaml:"address"`
}

type ObserversConfig struct {
	QueueSize int             `yaml:"queue_size"`
	Console   ConsoleConfig   `yaml:"console"`
	Redis     RedisConfig     `yaml:"redis"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Status    StatusConfig    `yaml:"status"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type StatusConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Verbose bool `yaml:"verbose"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a YAML file, applies DAQLOG_* overrides and defaults, and
// validates. All errors are configuration failures.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, configFailure(err)
	}
	return Parse(raw, os.LookupEnv)
}

// Parse is Load without the file read. lookup resolves environment overrides
// and may be nil.
func Parse(raw []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, configFailure(err)
	}

	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, configFailure(err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, configFailure(err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("OUTPUT_DIR", &c.Output.Dir)
	str("PRESSURE_PORT", &c.Pressure.Serial.Port)
	str("SPECTRUM_ADDRESS", &c.Spectrum.Address)
	str("REDIS_ADDR", &c.Observers.Redis.Addr)
	str("REDIS_PASSWORD", &c.Observers.Redis.Password)
	str("TIMESCALE_CONN", &c.Observers.Timescale.ConnString)
	str("STATUS_ADDR", &c.Observers.Status.Addr)
	str("METRICS_ADDR", &c.Metrics.Addr)

	if v, ok := lookup(EnvPrefix + "INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sINTERVAL: %w", EnvPrefix, err)
		}
		c.Acquisition.Interval = d
	}
	for name, dst := range map[string]*bool{
		"SIMULATE": &c.Simulate,
		"VERBOSE":  &c.Log.Verbose,
	} {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Title == "" {
		c.Title = "Experiment Log"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "./logs"
	}
	if c.Output.SyncEvery == 0 {
		c.Output.SyncEvery = 50
	}
	if c.Acquisition.Interval == 0 {
		c.Acquisition.Interval = time.Second
	}
	if c.Acquisition.ObserverEvery == 0 {
		c.Acquisition.ObserverEvery = 10
	}
	if c.Acquisition.Workers == 0 {
		c.Acquisition.Workers = 2
	}
	if c.Observers.QueueSize == 0 {
		c.Observers.QueueSize = 16
	}
	if c.Observers.Redis.Key == "" {
		c.Observers.Redis.Key = "daqlog:latest"
	}
	if c.Observers.Timescale.Table == "" {
		c.Observers.Timescale.Table = "snapshots"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}

	if c.Pressure.Enabled {
		c.Pressure.Serial.ApplyDefaults()
		if c.Pressure.Gauge.Timeout == 0 {
			c.Pressure.Gauge.Timeout = c.Pressure.Serial.Timeout
		}
		c.Pressure.Gauge.ApplyDefaults()
	}
	if c.Spectrum.Enabled {
		if c.Spectrum.Link == "" {
			c.Spectrum.Link = LinkTCP
		}
		if c.Spectrum.Timeout == 0 {
			c.Spectrum.Timeout = 5 * time.Second
		}
		if c.Spectrum.Link == LinkGPIB {
			if c.Spectrum.GPIB.Serial.Baudrate == 0 {
				c.Spectrum.GPIB.Serial.Baudrate = 115200
			}
			if c.Spectrum.GPIB.Serial.Timeout == 0 {
				c.Spectrum.GPIB.Serial.Timeout = c.Spectrum.Timeout
			}
			c.Spectrum.GPIB.Serial.ApplyDefaults()
		}
		c.Spectrum.Analyzer.ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if !c.Pressure.Enabled && !c.Spectrum.Enabled {
		return fmt.Errorf("at least one of pressure or spectrum must be enabled")
	}
	if c.Acquisition.Interval < 0 {
		return fmt.Errorf("acquisition.interval must be positive")
	}
	if c.Output.SyncEvery < 0 {
		return fmt.Errorf("output.sync_every must be positive")
	}
	if c.Acquisition.ObserverEvery < 0 || c.Acquisition.Workers < 0 {
		return fmt.Errorf("acquisition.observer_every and acquisition.workers must be positive")
	}

	if c.Pressure.Enabled {
		if !c.Simulate {
			if err := c.Pressure.Serial.Validate(); err != nil {
				return fmt.Errorf("pressure.serial: %w", err)
			}
		}
		if err := c.Pressure.Gauge.Validate(); err != nil {
			return fmt.Errorf("pressure.gauge: %w", err)
		}
	}
	if c.Spectrum.Enabled {
		if err := c.Spectrum.Analyzer.Validate(); err != nil {
			return fmt.Errorf("spectrum.analyzer: %w", err)
		}
		if !c.Simulate {
			switch c.Spectrum.Link {
			case LinkTCP:
				if c.Spectrum.Address == "" {
					return fmt.Errorf("spectrum.address is required for the tcp link")
				}
			case LinkGPIB:
				if err := c.Spectrum.GPIB.Serial.Validate(); err != nil {
					return fmt.Errorf("spectrum.gpib.serial: %w", err)
				}
				if c.Spectrum.GPIB.Address < 0 || c.Spectrum.GPIB.Address > 30 {
					return fmt.Errorf("spectrum.gpib.address must be 0-30")
				}
			default:
				return fmt.Errorf("spectrum.link %q must be %q or %q", c.Spectrum.Link, LinkTCP, LinkGPIB)
			}
		}
	}
	return nil
}

// Sections renders the settings echoed in the log header. Device sections
// are contributed by the devices themselves.
func (c *Config) Sections() []domain.Section {
	enabled := func(b bool) string {
		if b {
			return "ENABLED"
		}
		return "DISABLED"
	}
	secs := []domain.Section{{
		Title: "Logging Configuration",
		Settings: []domain.Setting{
			{Key: "output_dir", Value: c.Output.Dir},
			{Key: "sync_every", Value: strconv.Itoa(c.Output.SyncEvery)},
			{Key: "simulate", Value: strconv.FormatBool(c.Simulate)},
		},
	}}
	if !c.Pressure.Enabled {
		secs = append(secs, domain.Section{Title: "Serial Configuration (" + enabled(false) + ")"})
	}
	if !c.Spectrum.Enabled {
		secs = append(secs, domain.Section{Title: "Spectrum Analyzer Configuration (" + enabled(false) + ")"})
	}
	return secs
}

// Redacted returns the conn string with any password masked.
func (t TimescaleConfig) Redacted() string {
	s := t.ConnString
	if i := strings.Index(s, "://"); i >= 0 {
		if at := strings.Index(s[i+3:], "@"); at >= 0 {
			cred := s[i+3 : i+3+at]
			if colon := strings.Index(cred, ":"); colon >= 0 {
				return s[:i+3] + cred[:colon] + ":***" + s[i+3+at:]
			}
		}
	}
	return s
}

func configFailure(err error) error {
	return domain.NewFailure(domain.ConfigurationFailure, "", err)
}
