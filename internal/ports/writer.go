package ports

import "github.com/subradiance/daqlog/internal/domain"

// RowWriter owns the session log file.
type RowWriter interface {
	WriteHeader(h domain.Header, s domain.Schema) error
	WriteRow(cells []string) error
	SizeBytes() int64
	Path() string
	Close() error
}
