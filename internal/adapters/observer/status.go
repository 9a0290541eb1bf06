package observer

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// StateFunc reports the session state for /healthz.
type StateFunc func() domain.State

// Status keeps the latest snapshot and serves it over HTTP together with
// health and Prometheus metrics.
type Status struct {
	mu     sync.RWMutex
	latest *domain.Snapshot
	state  StateFunc
	router *mux.Router
	srv    *http.Server
}

var _ ports.Observer = (*Status)(nil)

// NewStatus builds the router. gatherer may be nil to use the default registry.
func NewStatus(state StateFunc, gatherer prometheus.Gatherer) *Status {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Status{state: state}
	r := mux.NewRouter()
	r.HandleFunc("/api/snapshot", s.getSnapshot).Methods("GET")
	r.HandleFunc("/healthz", s.getHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router = r
	return s
}

func (s *Status) Observe(snap domain.Snapshot) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()
}

func (s *Status) Handler() http.Handler { return s.router }

// Start listens on addr in the background and returns the bound address.
func (s *Status) Start(addr string, onErr func(error)) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && onErr != nil {
			onErr(err)
		}
	}()
	return ln.Addr().String(), nil
}

func (s *Status) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Status) getSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.latest
	s.mu.RUnlock()

	if snap == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no snapshot yet"})
		return
	}
	body, err := json.Marshal(newSnapshotView(*snap))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Status) getHealth(w http.ResponseWriter, r *http.Request) {
	state := domain.StateRunning
	if s.state != nil {
		state = s.state()
	}
	code := http.StatusOK
	if state == domain.StateFaulted {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"state": state.String()})
}

// snapshotView is the JSON form of a snapshot. Non-finite values, such as an
// over-range gauge reading, encode as null.
type snapshotView struct {
	Cycle            uint64                 `json:"cycle"`
	Timestamp        time.Time              `json:"timestamp"`
	Elapsed          time.Duration          `json:"elapsed"`
	CycleTime        time.Duration          `json:"cycle_time"`
	InstrumentalTime time.Duration          `json:"instrumental_time"`
	Readings         map[string]readingView `json:"readings"`
	FileSizeBytes    int64                  `json:"file_size_bytes"`
	GBPerHour        *float64               `json:"gb_per_hour"`
	CadenceHz        *float64               `json:"cadence_hz"`
	Efficiency       *float64               `json:"efficiency"`
	HasEfficiency    bool                   `json:"has_efficiency"`
}

type readingView struct {
	Device    string      `json:"device"`
	Scalar    *scalarView `json:"scalar,omitempty"`
	Vector    []*float64  `json:"vector,omitempty"`
	Issued    time.Time   `json:"issued"`
	Completed time.Time   `json:"completed"`
}

type scalarView struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}

func newSnapshotView(snap domain.Snapshot) snapshotView {
	v := snapshotView{
		Cycle:            snap.Cycle,
		Timestamp:        snap.Timestamp,
		Elapsed:          snap.Elapsed,
		CycleTime:        snap.CycleTime,
		InstrumentalTime: snap.InstrumentalTime,
		Readings:         make(map[string]readingView, len(snap.Readings)),
		FileSizeBytes:    snap.FileSizeBytes,
		GBPerHour:        finite(snap.GBPerHour),
		CadenceHz:        finite(snap.CadenceHz),
		Efficiency:       finite(snap.Efficiency),
		HasEfficiency:    snap.HasEfficiency,
	}
	for name, r := range snap.Readings {
		rv := readingView{Device: r.Device, Issued: r.Issued, Completed: r.Completed}
		if r.Scalar != nil {
			rv.Scalar = &scalarView{Value: finite(r.Scalar.Value), Unit: r.Scalar.Unit}
		}
		if r.Vector != nil {
			rv.Vector = make([]*float64, len(r.Vector))
			for i, x := range r.Vector {
				rv.Vector[i] = finite(x)
			}
		}
		v.Readings[name] = rv
	}
	return v
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
