package domain

import (
	"strings"
	"testing"
)

func TestSchemaLayout(t *testing.T) {
	s, err := NewSchemaBuilder().
		Device("Pressure", []string{"Pressure", "Pressure_Unit"}).
		Device("Spectrum", []string{"1 Hz", "2 Hz"}).
		Efficiency().
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := []string{
		ColTimestamp, ColElapsed, ColCycle, ColCycleTime, ColInstrumental,
		"Pressure_Read_Time_Delta (ms)", "Spectrum_Read_Time_Delta (ms)", ColEfficiency,
		"Pressure", "Pressure_Unit", "1 Hz", "2 Hz",
	}
	got := s.Columns()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("columns\n got %q\nwant %q", got, want)
	}
	seg, ok := s.Segment("Spectrum")
	if !ok || seg.Offset != 10 || seg.Width != 2 {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if !s.Has(ColEfficiency) || s.Has("1 Hz") {
		t.Fatalf("Has should cover named columns only")
	}
}

func TestSchemaRejectsDuplicates(t *testing.T) {
	_, err := NewSchemaBuilder().Device("A", nil).Device("A", nil).Build()
	if err == nil {
		t.Fatalf("expected duplicate latency column to fail")
	}
	if _, err := NewSchemaBuilder().Device("", nil).Build(); err == nil {
		t.Fatalf("expected empty device name to fail")
	}
}

func TestRowNeverChangesWidth(t *testing.T) {
	s, _ := NewSchemaBuilder().Device("Spectrum", []string{"1 Hz", "2 Hz", "3 Hz"}).Build()
	row := s.NewRow()

	if row.Set("nope", "x") {
		t.Fatalf("unknown column accepted")
	}
	if row.Fill("Spectrum", []string{"1", "2"}) {
		t.Fatalf("short segment accepted")
	}
	if row.Fill("Other", []string{"1"}) {
		t.Fatalf("unknown device accepted")
	}
	if len(row.Cells()) != s.Len() {
		t.Fatalf("row width %d, want %d", len(row.Cells()), s.Len())
	}
	for _, c := range row.Segment("Spectrum") {
		if c != "" {
			t.Fatalf("rejected fill left data behind")
		}
	}

	if !row.Fill("Spectrum", []string{"1", "2", "3"}) || row.Get("3 Hz") != "3" {
		t.Fatalf("valid fill failed")
	}
	if !row.Set(ColCycle, "7") || row.Get(ColCycle) != "7" {
		t.Fatalf("set failed")
	}
}

func TestHeaderLines(t *testing.T) {
	s, _ := NewSchemaBuilder().Device("Pressure", []string{"Pressure", "Pressure_Unit"}).Build()
	h := Header{
		Title: "Experiment Log",
		Sections: []Section{{
			Title:    "Serial Configuration (ENABLED)",
			Settings: []Setting{{"port", "/dev/ttyUSB0"}},
		}},
		DeviceDocs: map[string][]Setting{"Pressure": {{"Pressure", "gauge reading"}}},
	}
	lines := h.Lines(s)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{
		"Experiment Log",
		"Serial Configuration (ENABLED):",
		"   port: /dev/ttyUSB0",
		"Data Columns:",
		"   Pressure_Read_Time_Delta (ms):",
		"   Pressure Readings:",
		"      Pressure: gauge reading",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("header missing %q:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, ColEfficiency) {
		t.Fatalf("efficiency documented without the column")
	}
}
