package kiosk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/coolingunit"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/httpapi"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/influx"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/kafka"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/memstore"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/mqtt"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/observability"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/postgres"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/queue"
	"github.com/CUMTD/Mtd.Kiosk/internal/app/ingest"
	"github.com/CUMTD/Mtd.Kiosk/internal/app/pipeline"
	"github.com/CUMTD/Mtd.Kiosk/internal/app/query"
	"github.com/CUMTD/Mtd.Kiosk/internal/app/rollup"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
	"github.com/CUMTD/Mtd.Kiosk/internal/resilience"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	minutely      MinutelyStore
	daily         DailyStore
	collectors    []Collector
	publisher     RollupPublisher
	observability Observability
	logger        *slog.Logger
	clock         Clock
	registry      *prometheus.Registry
}

// WithMinutelyStore replaces the configured minutely backend.
func WithMinutelyStore(s MinutelyStore) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.minutely = s
	}
}

// WithDailyStore replaces the configured daily backend.
func WithDailyStore(s DailyStore) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.daily = s
	}
}

// WithCollector adds a reading source next to the configured MQTT collector.
// It may be given more than once.
func WithCollector(col Collector) RuntimeOption {
	return func(o *runtimeOverrides) {
		if col != nil {
			o.collectors = append(o.collectors, col)
		}
	}
}

// WithPublisher replaces the Kafka publisher for upserted daily statistics.
func WithPublisher(p RollupPublisher) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.publisher = p
	}
}

// WithObservability plugs in a custom logs and metrics backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

func WithClock(c Clock) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

// WithRegistry registers metrics on reg and serves it from /metrics.
func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// Runtime wires collectors, the ingestor, the daily rollup and the query
// API, and exposes lifecycle hooks for embedding the service in any Go program.
type Runtime struct {
	cfg      *Config
	logger   *slog.Logger
	obs      ports.Observability
	registry *prometheus.Registry
	loc      *time.Location

	minutely ports.MinutelyStore
	daily    ports.DailyStore
	db       *sql.DB
	influx   *influx.MinutelyStore

	ingestor   *ingest.Ingestor
	aggregator *rollup.Aggregator
	scheduler  *rollup.Scheduler
	query      *query.Service
	fetcher    *coolingunit.Fetcher
	poller     *coolingunit.Poller
	collectors []ports.Collector
	publisher  ports.RollupPublisher
}

// NewRuntime builds the default adapters from cfg (storage backends, MQTT
// collector, cooling unit poller, Kafka publisher, Prometheus metrics).
// RuntimeOption values override any of them.
func NewRuntime(ctx context.Context, cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("rollup timezone: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger, err = observability.NewLogger(cfg.Logging, os.Stderr)
		if err != nil {
			return nil, err
		}
	}

	reg := o.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	obs := o.observability
	if obs == nil {
		obs = observability.NewPromObs(logger, reg)
	}

	clock := o.clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	rt := &Runtime{
		cfg:      cfg,
		logger:   logger,
		obs:      obs,
		registry: reg,
		loc:      loc,
	}

	if err := rt.openStores(ctx, o); err != nil {
		return nil, errors.Join(err, rt.Close())
	}

	rt.publisher = o.publisher
	if rt.publisher == nil && cfg.Kafka.Enabled {
		rt.publisher = kafka.NewPublisher(cfg.Kafka)
	}

	rt.ingestor = ingest.New(rt.minutely, clock, obs)

	aggOpts := []rollup.Option{
		rollup.WithLocation(loc),
		rollup.WithClock(clock),
		rollup.WithObservability(obs),
		rollup.WithConcurrency(cfg.Rollup.Concurrency),
	}
	if rt.publisher != nil {
		aggOpts = append(aggOpts, rollup.WithPublisher(rt.publisher))
	}
	rt.aggregator = rollup.NewAggregator(rt.minutely, rt.daily, aggOpts...)

	if cfg.Rollup.Enabled {
		rt.scheduler, err = rollup.NewScheduler(rt.aggregator, cfg.Rollup.RunAt, cfg.Rollup.BackfillDays, obs)
		if err != nil {
			return nil, errors.Join(err, rt.Close())
		}
	}

	rt.query = query.NewService(rt.minutely, rt.daily, clock, obs, query.Config{
		RecentWindow: cfg.Query.RecentWindow,
		Location:     loc,
		Concurrency:  cfg.Query.Concurrency,
	})

	cu := cfg.CoolingUnits
	if len(cu.Sources) > 0 {
		policy := resilience.NewPolicy(cu.Resilience, nil, logger,
			resilience.WithStateChange(func(target string, from, to resilience.State) {
				obs.IncCounter(ports.MetricBreakerTransitions, 1)
			}),
		)
		rt.fetcher = coolingunit.NewFetcher(coolingunit.NewClient(cu.APIKey), policy, rt.ingestor, obs)
		rt.poller = coolingunit.NewPoller(rt.fetcher, cu.Sources, cu.PollInterval, obs)
	}

	rt.collectors = o.collectors
	if cfg.MQTT.Enabled {
		col, err := mqtt.NewCollector(cfg.MQTT, logger, obs)
		if err != nil {
			return nil, errors.Join(err, rt.Close())
		}
		rt.collectors = append(rt.collectors, col)
	}

	return rt, nil
}

func (r *Runtime) openStores(ctx context.Context, o runtimeOverrides) error {
	st := r.cfg.Storage
	pg := st.Postgres
	needDB := (o.minutely == nil && st.Minutely == "postgres") || (o.daily == nil && st.Daily == "postgres")
	if needDB {
		db, err := postgres.Open(ctx, pg.ConnString, pg.MaxOpenConns)
		if err != nil {
			return err
		}
		r.db = db
		if pg.EnsureSchema {
			if err := postgres.EnsureSchema(ctx, db, pg.MinutelyTable, pg.DailyTable); err != nil {
				return err
			}
		}
	}

	switch {
	case o.minutely != nil:
		r.minutely = o.minutely
	case st.Minutely == "postgres":
		r.minutely = postgres.NewMinutelyStore(r.db, pg.MinutelyTable)
	case st.Minutely == "influx":
		r.influx = influx.NewMinutelyStore(influx.Config{
			URL:    st.Influx.URL,
			Token:  st.Influx.Token,
			Org:    st.Influx.Org,
			Bucket: st.Influx.Bucket,
		})
		r.minutely = r.influx
	default:
		r.minutely = memstore.NewMinutelyStore()
	}

	switch {
	case o.daily != nil:
		r.daily = o.daily
	case st.Daily == "postgres":
		r.daily = postgres.NewDailyStore(r.db, pg.DailyTable)
	default:
		r.daily = memstore.NewDailyStore()
	}
	return nil
}

// Health pings every network store in use.
func (r *Runtime) Health(ctx context.Context) error {
	var errs []error
	if r.db != nil {
		if err := r.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if r.influx != nil {
		if err := r.influx.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler returns the public HTTP API.
func (r *Runtime) Handler() http.Handler {
	return httpapi.NewHandler(r.ingestor, r.query, httpapi.Options{
		AllowedOrigins: r.cfg.Server.AllowedOrigins,
		Logger:         r.logger,
	})
}

// OpsHandler returns the operator endpoints: metrics, health and breaker state.
func (r *Runtime) OpsHandler() http.Handler {
	return httpapi.NewOpsHandler(r.registry, r.Health, r.BreakerSnapshots)
}

// BreakerSnapshots reports the circuit state of every polled cooling unit.
func (r *Runtime) BreakerSnapshots() []BreakerSnapshot {
	if r.fetcher == nil {
		return nil
	}
	return r.fetcher.Snapshots()
}

func (r *Runtime) Location() *time.Location { return r.loc }

// Ingest validates and stores a single reading.
func (r *Runtime) Ingest(ctx context.Context, reading Reading) (MinutelySample, error) {
	return r.ingestor.Ingest(ctx, reading)
}

// Aggregate rolls up every active kiosk for the fleet-local date containing day.
func (r *Runtime) Aggregate(ctx context.Context, day time.Time) (RunReport, error) {
	return r.aggregator.RunFleet(ctx, day)
}

// AggregateKiosk rolls up one kiosk-day. The bool is false when the kiosk
// has no samples that day.
func (r *Runtime) AggregateKiosk(ctx context.Context, kioskID string, day time.Time) (DailyStatistic, bool, error) {
	return r.aggregator.AggregateDay(ctx, kioskID, day)
}

func (r *Runtime) Recent(ctx context.Context, kioskID string) ([]DataPoint, error) {
	return r.query.Recent(ctx, kioskID)
}

func (r *Runtime) DailyHistory(ctx context.Context, kioskID string) ([]DailyStatistic, error) {
	return r.query.DailyHistory(ctx, kioskID)
}

func (r *Runtime) FleetDailyHistory(ctx context.Context) ([]KioskHistory, error) {
	return r.query.FleetDailyHistory(ctx)
}

// DailyStatistics reads every stored daily statistic in one call, ordered by
// kiosk id. Unlike FleetDailyHistory it includes kiosks that no longer have
// minutely samples.
func (r *Runtime) DailyStatistics(ctx context.Context) ([]KioskHistory, error) {
	all, err := r.daily.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]KioskHistory, 0, len(all))
	for _, id := range slices.Sorted(maps.Keys(all)) {
		out = append(out, KioskHistory{KioskID: id, Days: all[id]})
	}
	return out, nil
}

// PollCoolingUnits runs one poll cycle over every configured cooling unit and
// returns how many succeeded.
func (r *Runtime) PollCoolingUnits(ctx context.Context) int {
	if r.poller == nil {
		return 0
	}
	return r.poller.PollOnce(ctx)
}

// Run starts the HTTP listeners, the rollup scheduler, the cooling unit
// poller and every collector pipeline, and blocks until ctx is cancelled or
// a listener fails. It always releases the runtime's resources before returning.
func (r *Runtime) Run(ctx context.Context) error {
	apiSrv := &http.Server{Addr: r.cfg.Server.Addr, Handler: r.Handler(), ReadHeaderTimeout: 5 * time.Second}
	opsSrv := &http.Server{Addr: r.cfg.Metrics.Addr, Handler: r.OpsHandler(), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(r.serve("api", apiSrv))
	g.Go(r.serve("ops", opsSrv))

	if r.scheduler != nil {
		g.Go(func() error { return ignoreCanceled(r.scheduler.Run(gctx)) })
	}
	if r.poller != nil {
		g.Go(func() error { return ignoreCanceled(r.poller.Run(gctx)) })
	}
	for _, col := range r.collectors {
		q := queue.NewMemQueue(r.cfg.Policy.MaxQueueLen)
		g.Go(func() error {
			return pipeline.RunCollectorPipeline(gctx, col, q, r.ingestor, r.cfg.Policy, r.obs)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiSrv.Shutdown(shutdownCtx), opsSrv.Shutdown(shutdownCtx))
	})

	r.obs.LogInfo("runtime_started",
		ports.F("api_addr", r.cfg.Server.Addr),
		ports.F("ops_addr", r.cfg.Metrics.Addr),
		ports.F("collectors", len(r.collectors)),
		ports.F("cooling_units", len(r.cfg.CoolingUnits.Sources)),
		ports.F("rollup", r.scheduler != nil),
		ports.F("timezone", r.loc.String()),
	)

	err := g.Wait()
	return errors.Join(err, r.Close())
}

func (r *Runtime) serve(name string, srv *http.Server) func() error {
	return func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	}
}

// Close releases the publisher and the store connections. Run calls it on
// exit; callers that never Run must call it themselves.
func (r *Runtime) Close() error {
	var errs []error
	if r.publisher != nil {
		if err := r.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
		r.publisher = nil
	}
	if r.influx != nil {
		r.influx.Close()
		r.influx = nil
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
		r.db = nil
	}
	return errors.Join(errs...)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
