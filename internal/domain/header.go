package domain

import "fmt"

// Setting is one configuration line in the header echo.
type Setting struct {
	Key   string
	Value string
}

// Section groups settings under a title, e.g. "Serial Configuration (ENABLED)".
type Section struct {
	Title    string
	Settings []Setting
}

// Header is the comment block written before the column row: a configuration
// echo followed by schema documentation.
type Header struct {
	Title    string
	Sections []Section
	// DeviceDocs documents device value columns, keyed by device name.
	DeviceDocs map[string][]Setting
}

var baseDocs = []Setting{
	{ColTimestamp, "Time of the log entry in ISO 8601 format (measured at start of logging cycle)"},
	{ColElapsed, "Time since the start of logging in seconds (measured at start of logging cycle)"},
	{ColCycle, "Count of measurement cycle"},
	{ColCycleTime, "Time between the start of the previous measurement cycle and the start of this one"},
	{ColInstrumental, "Time between sending a measurement request and receiving the slowest instrument response"},
}

// Lines renders the header without comment prefixes.
func (h Header) Lines(schema Schema) []string {
	var lines []string
	if h.Title != "" {
		lines = append(lines, h.Title)
	}
	for _, sec := range h.Sections {
		lines = append(lines, sec.Title+":")
		for _, st := range sec.Settings {
			lines = append(lines, fmt.Sprintf("   %s: %s", st.Key, st.Value))
		}
	}
	return append(lines, schemaDocs(h, schema)...)
}

func schemaDocs(h Header, schema Schema) []string {
	lines := []string{"Data Columns:"}
	for _, d := range baseDocs {
		lines = append(lines, fmt.Sprintf("   %s: %s", d.Key, d.Value))
	}
	for _, dev := range schema.Devices() {
		lines = append(lines, fmt.Sprintf("   %s: %s", LatencyColumn(dev), "Delta between read command and "+dev+" response in milliseconds"))
	}
	if schema.Has(ColEfficiency) {
		lines = append(lines, fmt.Sprintf("   %s: %s", ColEfficiency,
			"Instrument sweep time over measured cycle time; may exceed 100 when the cycle is shorter than the sweep"))
	}
	for _, dev := range schema.Devices() {
		docs := h.DeviceDocs[dev]
		if len(docs) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("   %s Readings:", dev))
		for _, d := range docs {
			lines = append(lines, fmt.Sprintf("      %s: %s", d.Key, d.Value))
		}
	}
	return lines
}
