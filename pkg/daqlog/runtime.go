package daqlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/subradiance/daqlog/internal/adapters/csvlog"
	"github.com/subradiance/daqlog/internal/adapters/observability"
	"github.com/subradiance/daqlog/internal/adapters/observer"
	"github.com/subradiance/daqlog/internal/adapters/sink"
	"github.com/subradiance/daqlog/internal/app/acquisition"
	"github.com/subradiance/daqlog/internal/app/pipeline"
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	devices       []ports.Device
	writer        ports.RowWriter
	observers     []ports.Observer
	observability ports.Observability
}

// WithDevices replaces the devices built from configuration.
func WithDevices(devices ...Device) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.devices = devices
	}
}

// WithWriter replaces the CSV session log.
func WithWriter(w RowWriter) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.writer = w
	}
}

// WithObserver adds an observer next to the configured ones.
func WithObserver(obs Observer) RuntimeOption {
	return func(o *runtimeOverrides) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithObservability plugs in a custom logging and metrics backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// Runtime wires devices, the session log, observers and the metrics server
// around one acquisition session.
type Runtime struct {
	cfg        *Config
	obs        ports.Observability
	registry   *prometheus.Registry
	session    *acquisition.Session
	writer     ports.RowWriter
	async      *observer.Async
	ingest     *pipeline.Ingest
	redis      *observer.Redis
	status     *observer.Status
	db         *sql.DB
	metricsSrv *http.Server
}

// NewRuntime opens the configured devices and log and prepares observers.
// Nothing is polled until Run.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	r := &Runtime{cfg: cfg, registry: prometheus.NewRegistry()}
	r.obs = overrides.observability
	if r.obs == nil {
		r.obs = observability.NewPromObs(r.registry, observability.NewLogger(cfg.Log.Verbose))
	}

	devices := overrides.devices
	if devices == nil {
		var err error
		devices, err = OpenDevices(cfg, r.obs)
		if err != nil {
			return nil, err
		}
	}

	r.writer = overrides.writer
	if r.writer == nil {
		w, err := csvlog.Create(cfg.Output.Dir, time.Now(), cfg.Output.SyncEvery)
		if err != nil {
			closeDevices(devices)
			return nil, err
		}
		r.writer = w
	}

	observers := append(r.configuredObservers(), overrides.observers...)

	sessOpts := []acquisition.Option{
		acquisition.WithObservability(r.obs),
		acquisition.WithHeader(domain.Header{Title: cfg.Title, Sections: cfg.Sections()}),
		acquisition.WithObserverEvery(cfg.Acquisition.ObserverEvery),
		acquisition.WithWorkers(cfg.Acquisition.Workers),
		acquisition.WithMaxCycles(cfg.Acquisition.MaxCycles),
	}
	if len(observers) > 0 {
		r.async = observer.NewAsync(observer.Multi(observers), cfg.Observers.QueueSize, r.obs)
		sessOpts = append(sessOpts, acquisition.WithObserver(r.async))
	}

	sess, err := acquisition.NewSession(devices, r.writer, cfg.Acquisition.Interval, sessOpts...)
	if err != nil {
		closeDevices(devices)
		return nil, errors.Join(err, r.writer.Close(), r.Shutdown(context.Background()))
	}
	r.session = sess
	return r, nil
}

func (r *Runtime) configuredObservers() []ports.Observer {
	oc := r.cfg.Observers
	var out []ports.Observer

	if oc.Console.Enabled {
		out = append(out, observer.NewConsole(os.Stdout))
	}

	if oc.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     oc.Redis.Addr,
			Password: oc.Redis.Password,
			DB:       oc.Redis.DB,
		})
		r.redis = observer.NewRedis(client, oc.Redis.Key, r.obs)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.redis.Ping(ctx); err != nil {
			r.obs.LogError("redis unreachable, snapshots will be retried each cycle", err, ports.F("addr", oc.Redis.Addr))
		}
		cancel()
		out = append(out, r.redis)
	}

	if oc.Timescale.ConnString != "" {
		db, err := sql.Open("postgres", oc.Timescale.ConnString)
		if err != nil {
			r.obs.LogError("timescale disabled", err, ports.F("conn", oc.Timescale.Redacted()))
		} else {
			r.db = db
			ts := sink.NewTimescaleSink(db, oc.Timescale.Table, r.obs)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := ts.EnsureTable(ctx); err != nil {
				r.obs.LogError("timescale table check failed", err, ports.F("table", oc.Timescale.Table))
			}
			cancel()
			r.ingest = pipeline.NewIngest(ts, oc.QueueSize, pipeline.DefaultMaxBatch, r.obs)
			out = append(out, r.ingest)
		}
	}

	if oc.Status.Addr != "" {
		r.status = observer.NewStatus(r.State, r.registry)
		out = append(out, r.status)
	}
	return out
}

// State reports the session state.
func (r *Runtime) State() domain.State {
	if r == nil || r.session == nil {
		return domain.StateInitializing
	}
	return r.session.State()
}

// LogPath is where the session log is written.
func (r *Runtime) LogPath() string { return r.writer.Path() }

// Stop asks the session to finish its current cycle and drain.
func (r *Runtime) Stop() { r.session.Stop() }

// Run serves metrics and status, then blocks in the acquisition loop until
// ctx is cancelled, Stop is called or the session ends on its own.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.start(); err != nil {
		// A session run on a cancelled context stops at once and closes the
		// log and devices.
		return errors.Join(err, r.session.Run(cancelled()), r.Shutdown(context.Background()))
	}
	runErr := r.session.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, r.Shutdown(shutdownCtx))
}

func (r *Runtime) start() error {
	if r.status != nil {
		addr, err := r.status.Start(r.cfg.Observers.Status.Addr, func(err error) {
			r.obs.LogError("status server exited", err)
		})
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		r.obs.LogInfo("status server listening", ports.F("addr", addr))
	}
	r.startMetrics()
	return nil
}

func (r *Runtime) startMetrics() {
	if r.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if r.State() == domain.StateFaulted {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(r.State().String()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:              r.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics server exited", err, ports.F("addr", r.cfg.Metrics.Addr))
		}
	}()
}

// Shutdown flushes queued snapshots and stops the servers and connections.
// The session itself closes its log and devices when Run returns.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if err := r.closeObservers(); err != nil {
		errs = append(errs, err)
	}

	if r.status != nil {
		if err := r.status.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Runtime) closeObservers() error {
	var errs []error
	if r.async != nil {
		errs = append(errs, r.async.Close())
	}
	if r.ingest != nil {
		errs = append(errs, r.ingest.Close())
	}
	return errors.Join(errs...)
}

func closeDevices(devices []ports.Device) {
	for _, d := range devices {
		_ = d.Close()
	}
}

func cancelled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
