package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/subradiance/daqlog/internal/adapters/observability"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// TimescaleSink stores snapshots in a PostgreSQL/TimescaleDB table.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
	timeout   time.Duration
	obs       ports.Observability
}

var _ ports.Observer = (*TimescaleSink)(nil)

func NewTimescaleSink(db *sql.DB, table string, obs ports.Observability) *TimescaleSink {
	if obs == nil {
		obs = observability.Nop{}
	}
	return &TimescaleSink{db: db, tableName: table, timeout: 5 * time.Second, obs: obs}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// EnsureTable creates the snapshot table when missing.
func (t *TimescaleSink) EnsureTable(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+t.tableName+` (
	ts TIMESTAMPTZ NOT NULL,
	cycle BIGINT NOT NULL,
	pressure DOUBLE PRECISION,
	pressure_unit TEXT,
	amplitudes JSONB,
	cycle_time_ms DOUBLE PRECISION,
	instrumental_time_ms DOUBLE PRECISION,
	file_size_bytes BIGINT,
	gb_per_hour DOUBLE PRECISION,
	cadence_hz DOUBLE PRECISION,
	efficiency DOUBLE PRECISION,
	PRIMARY KEY (ts, cycle)
)`)
	return err
}

// Observe inserts one snapshot. Errors are logged, never returned.
func (t *TimescaleSink) Observe(s domain.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.WriteBatch(ctx, []domain.Snapshot{s}); err != nil {
		t.obs.LogError("timescale insert failed", err, ports.F("table", t.tableName), ports.F("cycle", s.Cycle))
	}
}

func (t *TimescaleSink) WriteBatch(ctx context.Context, snaps []domain.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (ts, cycle, pressure, pressure_unit, amplitudes, cycle_time_ms, instrumental_time_ms, file_size_bytes, gb_per_hour, cadence_hz, efficiency) VALUES ")

	const cols = 11
	args := make([]any, 0, len(snaps)*cols)
	for i, s := range snaps {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for j := 1; j <= cols; j++ {
			if j > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j)
		}
		b.WriteString(")")

		var (
			pressure any
			unit     any
			amps     any
			eff      any
		)
		if p, ok := s.Pressure(); ok && !math.IsNaN(p.Value) {
			pressure, unit = p.Value, p.Unit
		}
		if a := s.Amplitudes(); a != nil {
			raw, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("marshal amplitudes: %w", err)
			}
			amps = raw
		}
		if s.HasEfficiency {
			eff = s.Efficiency
		}
		args = append(args,
			s.Timestamp,
			int64(s.Cycle),
			pressure,
			unit,
			amps,
			float64(s.CycleTime)/float64(time.Millisecond),
			float64(s.InstrumentalTime)/float64(time.Millisecond),
			s.FileSizeBytes,
			s.GBPerHour,
			s.CadenceHz,
			eff,
		)
	}

	b.WriteString(" ON CONFLICT (ts, cycle) DO NOTHING")

	_, err := t.db.ExecContext(ctx, b.String(), args...)
	return err
}
