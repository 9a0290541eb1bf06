package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/subradiance/daqlog/internal/adapters/observability"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// Redis mirrors the latest snapshot into a hash for live dashboards.
type Redis struct {
	client  redis.UniversalClient
	key     string
	timeout time.Duration
	obs     ports.Observability
}

var _ ports.Observer = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, key string, obs ports.Observability) *Redis {
	if obs == nil {
		obs = observability.Nop{}
	}
	return &Redis{client: client, key: key, timeout: 2 * time.Second, obs: obs}
}

// Ping checks connectivity before the session starts.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Observe(s domain.Snapshot) {
	fields, err := Fields(s)
	if err != nil {
		r.obs.LogError("encode snapshot", err, ports.F("cycle", s.Cycle))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.HSet(ctx, r.key, fields).Err(); err != nil {
		r.obs.LogError("redis hset failed", err, ports.F("key", r.key), ports.F("cycle", s.Cycle))
	}
}

func (r *Redis) Close() error { return r.client.Close() }

// Fields flattens a snapshot into string hash fields.
func Fields(s domain.Snapshot) (map[string]any, error) {
	amps := s.Amplitudes()
	if amps == nil {
		amps = []float64{}
	}
	encoded, err := json.Marshal(amps)
	if err != nil {
		return nil, err
	}
	f := map[string]any{
		"timestamp":            s.Timestamp.Format("2006-01-02 15:04:05"),
		"cycle":                fmt.Sprint(s.Cycle),
		"elapsed":              domain.FormatFloat(s.Elapsed.Seconds()),
		"cycle_time_ms":        domain.FormatFloat(ms(s.CycleTime)),
		"instrumental_time_ms": domain.FormatFloat(ms(s.InstrumentalTime)),
		"file_size_mb":         domain.FormatFloat(s.FileSizeMB()),
		"gb_hr":                domain.FormatFloat(s.GBPerHour),
		"cadence":              domain.FormatFloat(s.CadenceHz),
		"amplitudes":           string(encoded),
	}
	if p, ok := s.Pressure(); ok {
		f["pressure"] = domain.FormatFloat(p.Value)
		f["pressure_unit"] = p.Unit
	}
	if s.HasEfficiency {
		f["integration_efficiency"] = domain.FormatFloat(s.Efficiency)
	}
	return f, nil
}
