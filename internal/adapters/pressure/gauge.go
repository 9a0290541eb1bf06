package pressure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/subradiance/daqlog/internal/adapters/transport"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

const (
	ParamPressure = "pressure"
	ParamUnit     = "unit"
)

// Config holds the gauge protocol settings.
type Config struct {
	Name         string               `yaml:"name"`
	Address      string               `yaml:"address"`
	Terminator   string               `yaml:"terminator"`
	Timeout      time.Duration        `yaml:"timeout"`
	CommandDelay time.Duration        `yaml:"command_delay"`
	Parameters   map[string]Parameter `yaml:"parameters"`
}

// DefaultParameters is the parameter table of a TPG-class gauge.
func DefaultParameters() map[string]Parameter {
	return map[string]Parameter{
		ParamPressure: {Number: "740", Encoding: ExpoNew},
		ParamUnit: {Number: "660", Encoding: ShortInt, ValueMap: map[string]string{
			"mbar": "000",
			"Torr": "001",
			"hPa":  "002",
		}},
	}
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "Pressure"
	}
	if c.Address == "" {
		c.Address = "001"
	}
	if c.Terminator == "" {
		c.Terminator = "\r"
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.CommandDelay < 0 {
		c.CommandDelay = 0
	} else if c.CommandDelay == 0 {
		c.CommandDelay = 50 * time.Millisecond
	}
	if len(c.Parameters) == 0 {
		c.Parameters = DefaultParameters()
	}
}

func (c *Config) Validate() error {
	if len(c.Address) != 3 {
		return fmt.Errorf("gauge address %q must be 3 digits", c.Address)
	}
	if len(c.Terminator) != 1 {
		return fmt.Errorf("gauge terminator must be a single byte")
	}
	for _, name := range []string{ParamPressure, ParamUnit} {
		p, ok := c.Parameters[name]
		if !ok {
			return fmt.Errorf("gauge parameter %q is not configured", name)
		}
		if len(p.Number) != 3 {
			return fmt.Errorf("gauge parameter %q number %q must be 3 digits", name, p.Number)
		}
	}
	return nil
}

// Gauge reads pressure and unit from a serial vacuum gauge.
type Gauge struct {
	mu     sync.Mutex
	cfg    Config
	link   io.ReadWriter
	units  map[string]string // code -> unit name
	extra  []domain.Setting
	closed bool
}

var (
	_ ports.Device    = (*Gauge)(nil)
	_ ports.Describer = (*Gauge)(nil)
)

// Option configures a Gauge.
type Option func(*Gauge)

// WithSettings adds link settings to the header section, e.g. serial port and baud rate.
func WithSettings(settings ...domain.Setting) Option {
	return func(g *Gauge) { g.extra = append(g.extra, settings...) }
}

// New wraps an open link. The gauge owns the link and closes it if it is an io.Closer.
func New(link io.ReadWriter, cfg Config, opts ...Option) (*Gauge, error) {
	if link == nil {
		return nil, errors.New("gauge link is nil")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, domain.NewFailure(domain.ConfigurationFailure, cfg.Name, err)
	}
	g := &Gauge{cfg: cfg, link: link, units: make(map[string]string)}
	for name, code := range cfg.Parameters[ParamUnit].ValueMap {
		g.units[code] = name
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Open opens the serial port and wraps it.
func Open(sc transport.SerialConfig, cfg Config) (*Gauge, error) {
	sc.ApplyDefaults()
	port, err := transport.OpenSerial(sc)
	if err != nil {
		return nil, domain.NewFailure(domain.TransportFailure, cfg.Name, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = sc.Timeout
	}
	g, err := New(port, cfg, WithSettings(
		domain.Setting{Key: "port", Value: sc.Port},
		domain.Setting{Key: "baudrate", Value: fmt.Sprint(sc.Baudrate)},
		domain.Setting{Key: "bytesize", Value: fmt.Sprint(sc.Bytesize)},
		domain.Setting{Key: "parity", Value: sc.Parity},
		domain.Setting{Key: "stopbits", Value: fmt.Sprint(sc.Stopbits)},
		domain.Setting{Key: "timeout", Value: sc.Timeout.String()},
	))
	if err != nil {
		port.Close()
		return nil, err
	}
	return g, nil
}

func (g *Gauge) Name() string { return g.cfg.Name }

func (g *Gauge) Columns() []string { return []string{"Pressure", "Pressure_Unit"} }

// Read queries pressure, waits the inter-command delay, then queries the unit.
func (g *Gauge) Read(ctx context.Context) domain.Result {
	issued := time.Now()
	if err := ctx.Err(); err != nil {
		return domain.Failed(domain.NewFailure(domain.TransportFailure, g.cfg.Name, err))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return domain.Failed(domain.Transportf(g.cfg.Name, "gauge is closed"))
	}

	pressure, f := g.query(ParamPressure)
	if f != nil {
		return domain.Failed(f)
	}

	if g.cfg.CommandDelay > 0 {
		t := time.NewTimer(g.cfg.CommandDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return domain.Failed(domain.NewFailure(domain.TransportFailure, g.cfg.Name, ctx.Err()))
		case <-t.C:
		}
	}

	unit, f := g.query(ParamUnit)
	if f != nil {
		return domain.Failed(f)
	}

	return domain.Success(&domain.Reading{
		Device:    g.cfg.Name,
		Scalar:    &domain.Scalar{Value: pressure.Number, Unit: g.unitName(unit.Raw)},
		Issued:    issued,
		Completed: time.Now(),
	})
}

// SetUnit switches the gauge display unit by name ("mbar", "Torr", "hPa").
func (g *Gauge) SetUnit(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := g.cfg.Parameters[ParamUnit]
	code, ok := p.ValueMap[name]
	if !ok {
		return domain.NewFailure(domain.ConfigurationFailure, g.cfg.Name, fmt.Errorf("unknown unit %q", name))
	}

	n, err := strconv.Atoi(code)
	if err != nil {
		return domain.NewFailure(domain.ConfigurationFailure, g.cfg.Name, fmt.Errorf("unit code %q: %w", code, err))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	resp, f := g.exchange(WriteRequest(g.cfg.Address, p.Number, fmt.Sprintf("%06d", n)))
	if f != nil {
		return f
	}
	if _, err := DecodeResponse(resp, Parameter{Number: p.Number, Encoding: Text}); err != nil {
		return domain.NewFailure(domain.ProtocolFailure, g.cfg.Name, err)
	}
	return nil
}

func (g *Gauge) query(param string) (Value, *domain.Failure) {
	p := g.cfg.Parameters[param]
	resp, f := g.exchange(ReadRequest(g.cfg.Address, p.Number))
	if f != nil {
		return Value{}, f
	}
	v, err := DecodeResponse(resp, p)
	if err != nil {
		return Value{}, domain.NewFailure(domain.ProtocolFailure, g.cfg.Name, fmt.Errorf("%s: %w", param, err))
	}
	return v, nil
}

func (g *Gauge) exchange(req string) (string, *domain.Failure) {
	if err := transport.DiscardInput(g.link); err != nil {
		return "", domain.NewFailure(domain.TransportFailure, g.cfg.Name, fmt.Errorf("reset input: %w", err))
	}
	if _, err := io.WriteString(g.link, req); err != nil {
		return "", domain.NewFailure(domain.TransportFailure, g.cfg.Name, fmt.Errorf("write: %w", err))
	}
	resp, err := transport.ReadUntil(g.link, g.cfg.Terminator[0], g.cfg.Timeout)
	if err != nil {
		return "", domain.NewFailure(domain.TransportFailure, g.cfg.Name, fmt.Errorf("read: %w", err))
	}
	if len(resp) <= 1 {
		return "", domain.Transportf(g.cfg.Name, "empty response")
	}
	return strings.TrimSuffix(string(resp), g.cfg.Terminator), nil
}

func (g *Gauge) unitName(raw string) string {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "Unknown"
	}
	if name, ok := g.units[fmt.Sprintf("%03d", n)]; ok {
		return name
	}
	return "Unknown"
}

// Describe echoes the link and protocol settings for the log header.
func (g *Gauge) Describe() domain.Section {
	settings := append([]domain.Setting(nil), g.extra...)
	settings = append(settings,
		domain.Setting{Key: "address", Value: g.cfg.Address},
		domain.Setting{Key: "command_delay", Value: g.cfg.CommandDelay.String()},
	)
	names := make([]string, 0, len(g.cfg.Parameters))
	for name := range g.cfg.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := g.cfg.Parameters[name]
		settings = append(settings, domain.Setting{Key: name, Value: fmt.Sprintf("%s (%s)", p.Number, p.Encoding)})
	}
	return domain.Section{Title: "Serial Configuration (ENABLED)", Settings: settings}
}

func (g *Gauge) ColumnDocs() []domain.Setting {
	return []domain.Setting{
		{Key: "Pressure", Value: "Gauge pressure reading in the unit given by Pressure_Unit"},
		{Key: "Pressure_Unit", Value: "Pressure unit reported by the gauge"},
	}
}

func (g *Gauge) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if c, ok := g.link.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
