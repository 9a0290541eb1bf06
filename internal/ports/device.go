package ports

import (
	"context"
	"time"

	"github.com/subradiance/daqlog/internal/domain"
)

// Device is one instrument adapter. Read must honour its own per-call timeout
// and report problems as a domain.Failure rather than panicking.
type Device interface {
	Name() string
	Columns() []string
	Read(ctx context.Context) domain.Result
	Close() error
}

// Sweeper is implemented by devices with an instrument-internal sweep time.
type Sweeper interface {
	SweepTime() time.Duration
}

// Describer is implemented by devices that contribute settings and column
// documentation to the log header.
type Describer interface {
	Describe() domain.Section
	ColumnDocs() []domain.Setting
}
