// Package analysis post-processes session logs: phase splitting, noise
// characterisation and baseline extraction.
package analysis

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// HzSuffix marks a spectrum column.
const HzSuffix = " Hz"

// CycleTimeColumn holds the measured time between cycle starts.
const CycleTimeColumn = "Absolute Cycle Time (ms)"

// ErrColumn is returned when a named column is absent from a log.
var ErrColumn = errors.New("analysis: column not found")

// Log is a parsed session log. Records keeps the raw cells so a log can be
// written back unchanged; Data holds the same cells as numbers with NaN for
// empty or non-numeric cells. Data is nil for a log without rows.
type Log struct {
	Header  []string
	Columns []string
	Records [][]string
	Data    *mat.Dense
}

// ReadLogFile opens and parses the log at path.
func ReadLogFile(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadLog(f)
}

// ReadLog parses a '#'-prefixed header block followed by CSV rows.
func ReadLog(r io.Reader) (*Log, error) {
	br := bufio.NewReader(r)
	l := &Log{}
	for {
		peek, err := br.Peek(1)
		if err != nil || peek[0] != '#' {
			break
		}
		line, err := br.ReadString('\n')
		l.Header = append(l.Header, strings.TrimRight(line, "\r\n"))
		if err != nil {
			break
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cols, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("analysis: log has no column row")
		}
		return nil, fmt.Errorf("analysis: read columns: %w", err)
	}
	l.Columns = cols

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("analysis: read row %d: %w", len(l.Records)+1, err)
		}
		if len(rec) != len(cols) {
			return nil, fmt.Errorf("analysis: row %d has %d cells, want %d", len(l.Records)+1, len(rec), len(cols))
		}
		l.Records = append(l.Records, rec)
	}
	l.Data = numeric(l.Records, len(cols))
	return l, nil
}

func numeric(records [][]string, cols int) *mat.Dense {
	if len(records) == 0 || cols == 0 {
		return nil
	}
	data := make([]float64, 0, len(records)*cols)
	for _, rec := range records {
		for _, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				v = math.NaN()
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(len(records), cols, data)
}

// Rows is the number of data rows.
func (l *Log) Rows() int { return len(l.Records) }

// Column returns the index of name.
func (l *Log) Column(name string) (int, bool) {
	for i, c := range l.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Series returns one column as numbers.
func (l *Log) Series(name string) ([]float64, error) {
	idx, ok := l.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumn, name)
	}
	if l.Data == nil {
		return nil, nil
	}
	return mat.Col(nil, idx, l.Data), nil
}

// SpectrumColumns lists the indices of the frequency columns in order.
func (l *Log) SpectrumColumns() []int {
	var out []int
	for i, c := range l.Columns {
		if strings.HasSuffix(c, HzSuffix) {
			out = append(out, i)
		}
	}
	return out
}

// Frequencies parses the frequency column headers into Hz.
func (l *Log) Frequencies() ([]float64, error) {
	idx := l.SpectrumColumns()
	out := make([]float64, len(idx))
	for i, c := range idx {
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(l.Columns[c], HzSuffix)), 64)
		if err != nil {
			return nil, fmt.Errorf("analysis: frequency column %q: %w", l.Columns[c], err)
		}
		out[i] = v
	}
	return out, nil
}

// Spectrum returns the rows × frequency matrix.
func (l *Log) Spectrum() (*mat.Dense, error) {
	idx := l.SpectrumColumns()
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: no spectrum columns", ErrColumn)
	}
	if l.Data == nil {
		return nil, fmt.Errorf("analysis: log has no rows")
	}
	out := mat.NewDense(l.Rows(), len(idx), nil)
	for j, c := range idx {
		out.SetCol(j, mat.Col(nil, c, l.Data))
	}
	return out, nil
}

// SampleInterval is the mean cycle time in seconds.
func (l *Log) SampleInterval() (float64, error) {
	s, err := l.Series(CycleTimeColumn)
	if err != nil {
		return 0, err
	}
	m := nanMean(s)
	if math.IsNaN(m) {
		return 0, fmt.Errorf("analysis: no cycle times recorded")
	}
	return m / 1000, nil
}

// WithSpectrum returns a copy of l whose frequency cells are taken from m.
// NaN values are written as empty cells.
func (l *Log) WithSpectrum(m mat.Matrix) (*Log, error) {
	idx := l.SpectrumColumns()
	r, c := m.Dims()
	if r != l.Rows() || c != len(idx) {
		return nil, fmt.Errorf("analysis: spectrum is %dx%d, log has %dx%d", r, c, l.Rows(), len(idx))
	}
	out := &Log{Header: l.Header, Columns: l.Columns, Records: make([][]string, r)}
	for i, rec := range l.Records {
		row := append([]string(nil), rec...)
		for j, col := range idx {
			v := m.At(i, j)
			if math.IsNaN(v) {
				row[col] = ""
				continue
			}
			row[col] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		out.Records[i] = row
	}
	out.Data = numeric(out.Records, len(out.Columns))
	return out, nil
}

// Slice returns rows [from, to) sharing the header and columns.
func (l *Log) Slice(from, to int) *Log {
	out := &Log{Header: l.Header, Columns: l.Columns}
	if from < 0 {
		from = 0
	}
	if to > l.Rows() {
		to = l.Rows()
	}
	if from >= to {
		return out
	}
	out.Records = l.Records[from:to]
	out.Data = numeric(out.Records, len(l.Columns))
	return out
}

// WriteLog writes the header block, the column row and every record.
func WriteLog(w io.Writer, l *Log) error {
	var buf bytes.Buffer
	for _, h := range l.Header {
		buf.WriteString(h)
		buf.WriteByte('\n')
	}
	cw := csv.NewWriter(&buf)
	if err := cw.Write(l.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(l.Records); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteLogFile creates path and writes l into it.
func WriteLogFile(path string, l *Log) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteLog(f, l)
}
