package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// DefaultSyncEvery is how many rows are written between fsyncs.
const DefaultSyncEvery = 50

// FileName is the session log name for a session started at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("ExperimentLog_%s.csv", t.Format("20060102-150405"))
}

// Writer appends CSV rows to one session log. Each row is flushed to the OS;
// every syncEvery rows the file is fsynced and the tracked size is reset from
// the size on disk.
type Writer struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	csv       *csv.Writer
	syncEvery int
	rows      int
	sizeBytes int64
	header    bool
	closed    bool
}

// Create makes dir if needed and opens a fresh log named after startedAt.
func Create(dir string, startedAt time.Time, syncEvery int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, writeFailure(err)
	}
	base := FileName(startedAt)
	path := filepath.Join(dir, base)
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return newWriter(path, f, syncEvery), nil
		}
		if !errors.Is(err, os.ErrExist) || i > 100 {
			return nil, writeFailure(err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d.csv", strings.TrimSuffix(base, ".csv"), i))
	}
}

// Open creates or truncates the log at path.
func Open(path string, syncEvery int) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, writeFailure(err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, writeFailure(err)
	}
	return newWriter(path, f, syncEvery), nil
}

func newWriter(path string, f *os.File, syncEvery int) *Writer {
	if syncEvery <= 0 {
		syncEvery = DefaultSyncEvery
	}
	w := &Writer{path: path, file: f, syncEvery: syncEvery}
	w.csv = csv.NewWriter(countingWriter{w})
	return w
}

type countingWriter struct{ w *Writer }

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.file.Write(p)
	c.w.sizeBytes += int64(n)
	return n, err
}

// WriteHeader emits the comment block and the column row. It may only be
// called once, before any row.
func (w *Writer) WriteHeader(h domain.Header, s domain.Schema) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return writeFailure(os.ErrClosed)
	}
	if w.header {
		return writeFailure(errors.New("header already written"))
	}

	var b strings.Builder
	for _, line := range h.Lines(s) {
		b.WriteString("# ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(countingWriter{w}, b.String()); err != nil {
		return writeFailure(err)
	}
	if err := w.writeRecordLocked(s.Columns()); err != nil {
		return err
	}
	w.header = true
	return nil
}

// WriteRow appends one record and flushes it to the OS.
func (w *Writer) WriteRow(cells []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return writeFailure(os.ErrClosed)
	}
	if !w.header {
		return writeFailure(errors.New("row written before header"))
	}
	if err := w.writeRecordLocked(cells); err != nil {
		return err
	}

	w.rows++
	if w.rows%w.syncEvery == 0 {
		return w.syncLocked()
	}
	return nil
}

func (w *Writer) writeRecordLocked(cells []string) error {
	if err := w.csv.Write(cells); err != nil {
		return writeFailure(err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return writeFailure(err)
	}
	return nil
}

func (w *Writer) syncLocked() error {
	if err := w.file.Sync(); err != nil {
		return writeFailure(err)
	}
	st, err := w.file.Stat()
	if err != nil {
		return writeFailure(err)
	}
	w.sizeBytes = st.Size()
	return nil
}

// SizeBytes is the running byte count, reconciled with the file at each sync.
func (w *Writer) SizeBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sizeBytes
}

// Rows is the number of data rows written.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

func (w *Writer) Path() string { return w.path }

// Close syncs and closes the file. Calling it twice is harmless.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	syncErr := w.file.Sync()
	if err := w.file.Close(); err != nil {
		return writeFailure(err)
	}
	if syncErr != nil {
		return writeFailure(syncErr)
	}
	return nil
}

func writeFailure(err error) error {
	return domain.NewFailure(domain.WriteFailure, "", err)
}

var _ ports.RowWriter = (*Writer)(nil)
