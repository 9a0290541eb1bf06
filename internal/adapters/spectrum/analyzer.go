// Package spectrum drives a swept spectrum analyzer over an SCPI link and
// reads one trace per cycle.
package spectrum

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/query"

	"github.com/subradiance/daqlog/internal/adapters/observability"
	"github.com/subradiance/daqlog/internal/adapters/scpi"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// Command table keys. Templates substitute {value}.
const (
	CmdDataFormat      = "set_data_format"
	CmdByteOrder       = "set_byte_order"
	CmdCenterFrequency = "set_center_frequency"
	CmdReferenceLevel  = "set_reference_level"
	CmdSpan            = "set_span"
	CmdPowerUnit       = "set_power_unit"
	CmdSweepTimeAuto   = "set_sweep_time_auto"

	QueryFrequencyStart  = "query_frequency_start"
	QueryFrequencyStop   = "query_frequency_stop"
	QuerySweepPoints     = "query_sweep_points"
	QuerySweepTime       = "query_sweep_time"
	QueryCenterFrequency = "query_center_frequency"
	QueryReferenceLevel  = "query_reference_level"
	QueryPowerUnit       = "query_power_unit"
	QuerySpan            = "query_span"
	QueryTraceData       = "query_trace_data"
	QueryIdentity        = "query_identity"
)

// DefaultCommands is the SCPI table for common swept analyzers.
func DefaultCommands() map[string]string {
	return map[string]string{
		CmdDataFormat:      "FORM REAL,32",
		CmdByteOrder:       "FORM:BORD SWAP",
		CmdCenterFrequency: "FREQ:CENT {value}",
		CmdReferenceLevel:  "DISP:WIND:TRAC:Y:RLEV {value}",
		CmdSpan:            "FREQ:SPAN {value}",
		CmdPowerUnit:       "UNIT:POW {value}",
		CmdSweepTimeAuto:   "SWE:TIME:AUTO {value}",

		QueryFrequencyStart:  "FREQ:STAR?",
		QueryFrequencyStop:   "FREQ:STOP?",
		QuerySweepPoints:     "SWE:POIN?",
		QuerySweepTime:       "SWE:TIME?",
		QueryCenterFrequency: "FREQ:CENT?",
		QueryReferenceLevel:  "DISP:WIND:TRAC:Y:RLEV?",
		QueryPowerUnit:       "UNIT:POW?",
		QuerySpan:            "FREQ:SPAN?",
		QueryTraceData:       "TRAC? TRACE1",
		QueryIdentity:        "*IDN?",
	}
}

// Config is the analyzer setup applied on open.
type Config struct {
	Name            string            `yaml:"name"`
	CenterFrequency float64           `yaml:"center_frequency"`
	ReferenceLevel  float64           `yaml:"reference_level"`
	Span            float64           `yaml:"span"`
	PowerUnit       string            `yaml:"power_unit"`
	ManualSweepTime bool              `yaml:"manual_sweep_time"`
	Commands        map[string]string `yaml:"commands"`
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "Spectrum"
	}
	if c.CenterFrequency == 0 {
		c.CenterFrequency = 2.5e9
	}
	if c.Span == 0 {
		c.Span = 1e8
	}
	if c.PowerUnit == "" {
		c.PowerUnit = "DBM"
	}
	merged := DefaultCommands()
	for k, v := range c.Commands {
		merged[k] = v
	}
	c.Commands = merged
}

func (c *Config) Validate() error {
	if c.Span < 0 {
		return fmt.Errorf("span must be positive")
	}
	for _, k := range []string{QueryFrequencyStart, QueryFrequencyStop, QuerySweepPoints, QueryTraceData} {
		if strings.TrimSpace(c.Commands[k]) == "" {
			return fmt.Errorf("command %q is required", k)
		}
	}
	return nil
}

// Analyzer is a configured spectrum analyzer.
type Analyzer struct {
	mu      sync.Mutex
	cfg     Config
	link    scpi.Link
	obs     ports.Observability
	axis    []float64
	columns []string
	sweep   time.Duration
	info    []domain.Setting
}

var (
	_ ports.Device    = (*Analyzer)(nil)
	_ ports.Sweeper   = (*Analyzer)(nil)
	_ ports.Describer = (*Analyzer)(nil)
)

// New configures the instrument and computes the spectral axis. Individual
// setup commands that fail are logged; a missing axis is fatal.
func New(link scpi.Link, cfg Config, obs ports.Observability) (*Analyzer, error) {
	if obs == nil {
		obs = observability.Nop{}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, domain.NewFailure(domain.ConfigurationFailure, cfg.Name, err)
	}
	a := &Analyzer{cfg: cfg, link: link, obs: obs}
	a.configure()
	if err := a.loadAxis(); err != nil {
		return nil, err
	}
	a.loadSweepTime()
	a.info = a.instrumentData()
	return a, nil
}

func (a *Analyzer) configure() {
	autoSweep := "1"
	if a.cfg.ManualSweepTime {
		autoSweep = "0"
	}
	steps := []struct {
		key, value string
	}{
		{CmdDataFormat, ""},
		{CmdByteOrder, ""},
		{CmdCenterFrequency, formatHz(a.cfg.CenterFrequency)},
		{CmdReferenceLevel, domain.FormatFloat(a.cfg.ReferenceLevel)},
		{CmdSpan, formatHz(a.cfg.Span)},
		{CmdPowerUnit, a.cfg.PowerUnit},
		{CmdSweepTimeAuto, autoSweep},
	}
	for _, s := range steps {
		tmpl := a.cfg.Commands[s.key]
		if tmpl == "" {
			a.obs.LogInfo("no command configured", ports.F("device", a.cfg.Name), ports.F("command", s.key))
			continue
		}
		cmd := strings.ReplaceAll(tmpl, "{value}", s.value)
		if err := a.link.Command(cmd); err != nil {
			a.obs.LogError("configure spectrum analyzer", err, ports.F("device", a.cfg.Name), ports.F("command", s.key))
		}
	}
}

func (a *Analyzer) loadAxis() error {
	start, err := query.Float64(a.link, a.cfg.Commands[QueryFrequencyStart])
	if err != nil {
		return domain.NewFailure(domain.TransportFailure, a.cfg.Name, fmt.Errorf("query start frequency: %w", err))
	}
	stop, err := query.Float64(a.link, a.cfg.Commands[QueryFrequencyStop])
	if err != nil {
		return domain.NewFailure(domain.TransportFailure, a.cfg.Name, fmt.Errorf("query stop frequency: %w", err))
	}
	points, err := query.Int(a.link, a.cfg.Commands[QuerySweepPoints])
	if err != nil {
		return domain.NewFailure(domain.TransportFailure, a.cfg.Name, fmt.Errorf("query sweep points: %w", err))
	}
	a.axis = Axis(start, stop, points)
	if len(a.axis) == 0 {
		return domain.Protocolf(a.cfg.Name, "instrument reports %d sweep points", points)
	}
	a.columns = make([]string, len(a.axis))
	for i, f := range a.axis {
		a.columns[i] = formatHz(f) + " Hz"
	}
	return nil
}

func (a *Analyzer) loadSweepTime() {
	cmd := a.cfg.Commands[QuerySweepTime]
	if cmd == "" {
		return
	}
	secs, err := query.Float64(a.link, cmd)
	if err != nil {
		a.obs.LogError("query sweep time", err, ports.F("device", a.cfg.Name))
		return
	}
	a.sweep = time.Duration(secs * float64(time.Second))
}

func (a *Analyzer) instrumentData() []domain.Setting {
	rows := []struct{ label, key string }{
		{"Identity", QueryIdentity},
		{"Number of Points", QuerySweepPoints},
		{"Span", QuerySpan},
		{"Frequency Start (Hz)", QueryFrequencyStart},
		{"Frequency Stop (Hz)", QueryFrequencyStop},
		{"Center Frequency (Hz)", QueryCenterFrequency},
		{"Reference Level", QueryReferenceLevel},
		{"Power Unit", QueryPowerUnit},
		{"Sweep Time (s)", QuerySweepTime},
	}
	var out []domain.Setting
	for _, r := range rows {
		cmd := a.cfg.Commands[r.key]
		if cmd == "" {
			continue
		}
		v, err := a.link.Query(cmd)
		if err != nil {
			v = "unavailable"
		}
		out = append(out, domain.Setting{Key: r.label, Value: v})
	}
	return out
}

// Axis spaces n frequencies evenly from start to stop inclusive.
func Axis(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// DecodeTrace converts little-endian float32 bytes to amplitudes.
func DecodeTrace(b []byte) ([]float64, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("trace length %d is not a multiple of 4", len(b))
	}
	out := make([]float64, len(b)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
	}
	return out, nil
}

func formatHz(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (a *Analyzer) Name() string { return a.cfg.Name }

func (a *Analyzer) Columns() []string { return append([]string(nil), a.columns...) }

// Axis returns the spectral axis in Hz.
func (a *Analyzer) Axis() []float64 { return append([]float64(nil), a.axis...) }

func (a *Analyzer) SweepTime() time.Duration { return a.sweep }

// Read fetches one trace.
func (a *Analyzer) Read(ctx context.Context) domain.Result {
	issued := time.Now()
	if err := ctx.Err(); err != nil {
		return domain.Failed(domain.NewFailure(domain.TransportFailure, a.cfg.Name, err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	raw, err := a.link.QueryBlock(a.cfg.Commands[QueryTraceData])
	completed := time.Now()
	if errors.Is(err, scpi.ErrBlock) {
		return domain.Failed(domain.NewFailure(domain.ProtocolFailure, a.cfg.Name, err))
	}
	if err != nil {
		return domain.Failed(domain.NewFailure(domain.TransportFailure, a.cfg.Name, err))
	}
	amps, err := DecodeTrace(raw)
	if err != nil {
		return domain.Failed(domain.NewFailure(domain.ProtocolFailure, a.cfg.Name, err))
	}
	if len(amps) != len(a.axis) {
		return domain.Failed(domain.Protocolf(a.cfg.Name, "trace has %d points, axis has %d", len(amps), len(a.axis)))
	}
	return domain.Success(&domain.Reading{
		Device:    a.cfg.Name,
		Vector:    amps,
		Issued:    issued,
		Completed: completed,
	})
}

func (a *Analyzer) Describe() domain.Section {
	settings := []domain.Setting{
		{Key: "center_frequency", Value: formatHz(a.cfg.CenterFrequency)},
		{Key: "reference_level", Value: domain.FormatFloat(a.cfg.ReferenceLevel)},
		{Key: "span", Value: formatHz(a.cfg.Span)},
		{Key: "power_unit", Value: a.cfg.PowerUnit},
	}
	settings = append(settings, a.info...)
	return domain.Section{Title: "Spectrum Analyzer Configuration (ENABLED)", Settings: settings}
}

func (a *Analyzer) ColumnDocs() []domain.Setting {
	doc := "Trace amplitude"
	if len(a.axis) > 0 {
		doc = fmt.Sprintf("Trace amplitude in %s at each of %d frequencies from %s Hz to %s Hz",
			a.cfg.PowerUnit, len(a.axis), formatHz(a.axis[0]), formatHz(a.axis[len(a.axis)-1]))
	}
	return []domain.Setting{{Key: "<freq> Hz", Value: doc}}
}

func (a *Analyzer) Close() error { return a.link.Close() }
