package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/subradiance/daqlog/internal/domain"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Cycle:            20,
		Timestamp:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Elapsed:          2 * time.Second,
		CycleTime:        100 * time.Millisecond,
		InstrumentalTime: 40 * time.Millisecond,
		FileSizeBytes:    1 << 20,
		CadenceHz:        10,
		Efficiency:       0.8,
		HasEfficiency:    true,
		Readings: map[string]domain.Reading{
			"Pressure": {Device: "Pressure", Scalar: &domain.Scalar{Value: 12.3, Unit: "mbar"}},
			"Spectrum": {Device: "Spectrum", Vector: []float64{-80, -42.5}},
		},
	}
}

type slowObserver struct {
	mu   sync.Mutex
	gate chan struct{}
	seen []uint64
}

func (o *slowObserver) Observe(s domain.Snapshot) {
	<-o.gate
	o.mu.Lock()
	o.seen = append(o.seen, s.Cycle)
	o.mu.Unlock()
}

func TestAsyncNeverBlocksAndDropsOldest(t *testing.T) {
	slow := &slowObserver{gate: make(chan struct{})}
	a := NewAsync(slow, 2, nil)

	start := time.Now()
	for i := 0; i < 10; i++ {
		a.Observe(domain.Snapshot{Cycle: uint64(i)})
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("Observe blocked")
	}
	close(slow.gate)
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if a.Dropped() == 0 {
		t.Fatalf("expected drops with a stalled observer")
	}
	slow.mu.Lock()
	defer slow.mu.Unlock()
	if len(slow.seen) == 0 || slow.seen[len(slow.seen)-1] != 9 {
		t.Fatalf("newest snapshot must survive, saw %v", slow.seen)
	}
	for i := 1; i < len(slow.seen); i++ {
		if slow.seen[i] <= slow.seen[i-1] {
			t.Fatalf("delivery out of order: %v", slow.seen)
		}
	}
}

type panicObserver struct{}

func (panicObserver) Observe(domain.Snapshot) { panic("display gone") }

func TestAsyncRecoversObserverPanic(t *testing.T) {
	a := NewAsync(panicObserver{}, 4, nil)
	a.Observe(domain.Snapshot{})
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMultiFansOut(t *testing.T) {
	var got []string
	m := Multi{
		observerFunc(func(domain.Snapshot) { got = append(got, "a") }),
		observerFunc(func(domain.Snapshot) { got = append(got, "b") }),
	}
	m.Observe(domain.Snapshot{})
	if strings.Join(got, "") != "ab" {
		t.Fatalf("unexpected fan-out %v", got)
	}
}

type observerFunc func(domain.Snapshot)

func (f observerFunc) Observe(s domain.Snapshot) { f(s) }

func TestConsoleSummary(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf).Observe(sampleSnapshot())
	out := buf.String()
	for _, want := range []string{"20", "12.3 mbar", "-42.50", "80.0%", "10.00Hz", "1.00MB"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary %q missing %q", out, want)
		}
	}
}

func TestRedisWritesHash(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedis(client, "lab:latest", nil)
	defer r.Close()

	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	r.Observe(sampleSnapshot())

	checks := map[string]string{
		"cycle":                  "20",
		"pressure":               "12.3",
		"pressure_unit":          "mbar",
		"cycle_time_ms":          "100",
		"instrumental_time_ms":   "40",
		"file_size_mb":           "1",
		"integration_efficiency": "0.8",
		"amplitudes":             "[-80,-42.5]",
		"timestamp":              "2024-05-01 12:00:00",
	}
	for field, want := range checks {
		if got := mr.HGet("lab:latest", field); got != want {
			t.Fatalf("%s = %q, want %q", field, got, want)
		}
	}
}

func TestRedisErrorsAreLoggedNotRaised(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	r := NewRedis(client, "k", nil)
	mr.Close()
	r.Observe(sampleSnapshot())
}

func TestStatusEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "daqlog_test_total", Help: "test"}))
	var state atomic.Int32
	state.Store(int32(domain.StateRunning))
	s := NewStatus(func() domain.State { return domain.State(state.Load()) }, reg)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before first snapshot, got %d", resp.StatusCode)
	}

	s.Observe(sampleSnapshot())
	resp, err = http.Get(srv.URL + "/api/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	var got domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if got.Cycle != 20 || got.Readings["Pressure"].Scalar.Value != 12.3 {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	overRange := sampleSnapshot()
	overRange.Readings["Pressure"] = domain.Reading{Device: "Pressure", Scalar: &domain.Scalar{Value: math.NaN(), Unit: "mbar"}}
	overRange.Readings["Spectrum"] = domain.Reading{Device: "Spectrum", Vector: []float64{math.Inf(-1), -42.5}}
	s.Observe(overRange)
	resp, err = http.Get(srv.URL + "/api/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with an over-range reading, got %d", resp.StatusCode)
	}
	var raw struct {
		Readings map[string]struct {
			Scalar *struct {
				Value *float64 `json:"value"`
				Unit  string   `json:"unit"`
			} `json:"scalar"`
			Vector []*float64 `json:"vector"`
		} `json:"readings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	p := raw.Readings["Pressure"].Scalar
	if p == nil || p.Value != nil || p.Unit != "mbar" {
		t.Fatalf("over-range pressure should encode as null, got %+v", p)
	}
	vec := raw.Readings["Spectrum"].Vector
	if len(vec) != 2 || vec[0] != nil || vec[1] == nil || *vec[1] != -42.5 {
		t.Fatalf("unexpected spectrum %v", vec)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(body.String(), "daqlog_test_total") {
		t.Fatalf("metrics missing registered counter")
	}

	state.Store(int32(domain.StateFaulted))
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when faulted, got %d", resp.StatusCode)
	}
}
