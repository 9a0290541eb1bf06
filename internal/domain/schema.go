package domain

import "fmt"

// Base column names shared by every session.
const (
	ColTimestamp    = "Timestamp"
	ColElapsed      = "Elapsed Time (s)"
	ColCycle        = "Cycle Count"
	ColCycleTime    = "Absolute Cycle Time (ms)"
	ColInstrumental = "Instrumental Cycle Time (ms)"
	ColEfficiency   = "Effective Integration (%)"
)

// LatencyColumn names the per-device read latency column.
func LatencyColumn(device string) string {
	return device + "_Read_Time_Delta (ms)"
}

// Segment locates a device's value columns inside a row.
type Segment struct {
	Device string
	Offset int
	Width  int
}

// Schema is the ordered column layout of a session. It is fixed once built.
type Schema struct {
	columns  []string
	index    map[string]int
	segments map[string]Segment
	devices  []string
}

// Columns returns a copy of the column names in order.
func (s Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Len is the number of columns.
func (s Schema) Len() int { return len(s.columns) }

// Devices lists the device segments in column order.
func (s Schema) Devices() []string {
	out := make([]string, len(s.devices))
	copy(out, s.devices)
	return out
}

// Segment returns the value segment for a device.
func (s Schema) Segment(device string) (Segment, bool) {
	seg, ok := s.segments[device]
	return seg, ok
}

// Has reports whether a named (non-segment) column exists.
func (s Schema) Has(column string) bool {
	_, ok := s.index[column]
	return ok
}

// NewRow returns a row with every cell empty.
func (s *Schema) NewRow() Row {
	return Row{schema: s, cells: make([]string, len(s.columns))}
}

// Row holds one cycle's cells, always exactly Schema.Len() wide.
type Row struct {
	schema *Schema
	cells  []string
}

// Set writes a named column. Unknown columns are ignored.
func (r Row) Set(column, value string) bool {
	i, ok := r.schema.index[column]
	if !ok {
		return false
	}
	r.cells[i] = value
	return true
}

// Fill writes a device segment. A payload of the wrong width is rejected and
// the segment stays empty.
func (r Row) Fill(device string, cells []string) bool {
	seg, ok := r.schema.segments[device]
	if !ok || len(cells) != seg.Width {
		return false
	}
	copy(r.cells[seg.Offset:seg.Offset+seg.Width], cells)
	return true
}

// Get reads a column by name. Segment columns resolve to their first match.
func (r Row) Get(column string) string {
	if i, ok := r.schema.index[column]; ok {
		return r.cells[i]
	}
	for i, c := range r.schema.columns {
		if c == column {
			return r.cells[i]
		}
	}
	return ""
}

// Segment returns the device's cells.
func (r Row) Segment(device string) []string {
	seg, ok := r.schema.segments[device]
	if !ok {
		return nil
	}
	return r.cells[seg.Offset : seg.Offset+seg.Width]
}

// Cells exposes the row in column order.
func (r Row) Cells() []string { return r.cells }

type deviceColumns struct {
	name    string
	columns []string
}

// SchemaBuilder assembles the column layout for the enabled devices.
type SchemaBuilder struct {
	devices    []deviceColumns
	efficiency bool
}

func NewSchemaBuilder() *SchemaBuilder { return &SchemaBuilder{} }

// Device appends a device: its latency column and its value segment.
func (b *SchemaBuilder) Device(name string, columns []string) *SchemaBuilder {
	cols := make([]string, len(columns))
	copy(cols, columns)
	b.devices = append(b.devices, deviceColumns{name: name, columns: cols})
	return b
}

// Efficiency adds the integration efficiency column.
func (b *SchemaBuilder) Efficiency() *SchemaBuilder {
	b.efficiency = true
	return b
}

// Build lays out: base columns, per-device latency, efficiency, then every
// device's value segment in the order devices were added.
func (b *SchemaBuilder) Build() (Schema, error) {
	s := Schema{
		index:    make(map[string]int),
		segments: make(map[string]Segment, len(b.devices)),
	}
	named := func(col string) error {
		if _, dup := s.index[col]; dup {
			return fmt.Errorf("duplicate column %q", col)
		}
		s.index[col] = len(s.columns)
		s.columns = append(s.columns, col)
		return nil
	}

	for _, col := range []string{ColTimestamp, ColElapsed, ColCycle, ColCycleTime, ColInstrumental} {
		if err := named(col); err != nil {
			return Schema{}, err
		}
	}
	for _, d := range b.devices {
		if d.name == "" {
			return Schema{}, fmt.Errorf("device name is required")
		}
		if err := named(LatencyColumn(d.name)); err != nil {
			return Schema{}, fmt.Errorf("device %q: %w", d.name, err)
		}
	}
	if b.efficiency {
		if err := named(ColEfficiency); err != nil {
			return Schema{}, err
		}
	}
	for _, d := range b.devices {
		s.segments[d.name] = Segment{Device: d.name, Offset: len(s.columns), Width: len(d.columns)}
		s.devices = append(s.devices, d.name)
		s.columns = append(s.columns, d.columns...)
	}
	return s, nil
}
