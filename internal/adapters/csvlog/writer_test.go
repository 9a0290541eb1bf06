package csvlog

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/subradiance/daqlog/internal/domain"
)

func testSchema(t *testing.T) domain.Schema {
	t.Helper()
	s, err := domain.NewSchemaBuilder().
		Device("Pressure", []string{"Pressure", "Pressure_Unit"}).
		Build()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	return s
}

func testHeader() domain.Header {
	return domain.Header{
		Title: "Experiment Log (test)",
		Sections: []domain.Section{{
			Title:    "Experiment Configuration",
			Settings: []domain.Setting{{Key: "reading_interval (s)", Value: "0.1"}},
		}},
	}
}

func TestCreateMakesDirectoryAndNamesLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	started := time.Date(2026, 1, 20, 13, 53, 13, 0, time.Local)

	w, err := Create(dir, started, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer w.Close()

	if got, want := filepath.Base(w.Path()), "ExperimentLog_20260120-135313.csv"; got != want {
		t.Fatalf("expected log name %s, got %s", want, got)
	}

	w2, err := Create(dir, started, 0)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	defer w2.Close()
	if w2.Path() == w.Path() {
		t.Fatalf("expected distinct path for a second session in the same second")
	}
}

func TestWriterHeaderThenRows(t *testing.T) {
	schema := testSchema(t)
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := Open(path, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.WriteRow(make([]string, schema.Len())); !errors.Is(err, domain.ErrWrite) {
		t.Fatalf("expected write failure for row before header, got %v", err)
	}
	if err := w.WriteHeader(testHeader(), schema); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := w.WriteHeader(testHeader(), schema); !errors.Is(err, domain.ErrWrite) {
		t.Fatalf("expected second header to fail, got %v", err)
	}

	for i := 0; i < 3; i++ {
		row := schema.NewRow()
		row.Set(domain.ColCycle, string(rune('0'+i)))
		row.Fill("Pressure", []string{"12.3", "mbar"})
		if err := w.WriteRow(row.Cells()); err != nil {
			t.Fatalf("write row %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if !strings.HasPrefix(lines[0], "# Experiment Log (test)") {
		t.Fatalf("expected title comment first, got %q", lines[0])
	}

	r := csv.NewReader(strings.NewReader(string(raw)))
	r.Comment = '#'
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected column row plus 3 rows, got %d records", len(records))
	}
	if got := strings.Join(records[0], ","); !strings.HasSuffix(got, "Pressure,Pressure_Unit") {
		t.Fatalf("unexpected column row %q", got)
	}
	for i, rec := range records {
		if len(rec) != schema.Len() {
			t.Fatalf("record %d has %d fields, want %d", i, len(rec), schema.Len())
		}
	}
}

func TestWriterTracksSizeAcrossSyncs(t *testing.T) {
	schema := testSchema(t)
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := Open(path, 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()
	if err := w.WriteHeader(testHeader(), schema); err != nil {
		t.Fatalf("write header: %v", err)
	}

	for i := 1; i <= 6; i++ {
		row := schema.NewRow()
		row.Fill("Pressure", []string{"1.5e-3", "Torr"})
		if err := w.WriteRow(row.Cells()); err != nil {
			t.Fatalf("write row: %v", err)
		}
		if i%3 != 0 {
			continue
		}
		st, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if w.SizeBytes() != st.Size() {
			t.Fatalf("after %d rows tracked size %d != file size %d", i, w.SizeBytes(), st.Size())
		}
	}
	if w.Rows() != 6 {
		t.Fatalf("expected 6 rows, got %d", w.Rows())
	}
}

func TestWriterClosed(t *testing.T) {
	schema := testSchema(t)
	w, err := Open(filepath.Join(t.TempDir(), "log.csv"), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.WriteHeader(testHeader(), schema); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	err = w.WriteRow(make([]string, schema.Len()))
	if !errors.Is(err, domain.ErrWrite) || !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected closed write failure, got %v", err)
	}
}
