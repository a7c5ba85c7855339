package rollup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

// Aggregator folds one kiosk-day of minutely samples into a DailyStatistic.
type Aggregator struct {
	minutely    ports.MinutelyStore
	daily       ports.DailyStore
	loc         *time.Location
	clock       ports.Clock
	obs         ports.Observability
	publisher   ports.RollupPublisher
	concurrency int
}

type Option func(*Aggregator)

func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

func WithClock(c ports.Clock) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.clock = c
		}
	}
}

func WithObservability(obs ports.Observability) Option {
	return func(a *Aggregator) {
		if obs != nil {
			a.obs = obs
		}
	}
}

// WithPublisher announces every upserted statistic. Publish failures are
// logged and never fail the rollup.
func WithPublisher(p ports.RollupPublisher) Option {
	return func(a *Aggregator) { a.publisher = p }
}

// WithConcurrency bounds how many kiosks RunFleet aggregates at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func NewAggregator(minutely ports.MinutelyStore, daily ports.DailyStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		minutely:    minutely,
		daily:       daily,
		loc:         time.UTC,
		clock:       ports.SystemClock{},
		obs:         ports.NopObservability{},
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Location() *time.Location { return a.loc }

// checkCompleted rejects days that have not ended yet in the fleet timezone.
func (a *Aggregator) checkCompleted(key time.Time) error {
	today := domain.DateKey(a.clock.Now(), a.loc)
	if !key.Before(today) {
		return &domain.ValidationError{Field: "date", Reason: fmt.Sprintf("%s has not completed yet", key.Format(time.DateOnly))}
	}
	return nil
}

// AggregateDay computes and upserts the statistic for kioskID on the calendar
// day containing day. The boolean is false when the kiosk has no samples that
// day, in which case nothing is written.
func (a *Aggregator) AggregateDay(ctx context.Context, kioskID string, day time.Time) (domain.DailyStatistic, bool, error) {
	key := domain.DateKey(day, a.loc)
	if err := a.checkCompleted(key); err != nil {
		return domain.DailyStatistic{}, false, err
	}
	return a.aggregate(ctx, kioskID, key)
}

func (a *Aggregator) aggregate(ctx context.Context, kioskID string, key time.Time) (domain.DailyStatistic, bool, error) {
	start, end := domain.DayBounds(key, a.loc)
	samples, err := a.minutely.QueryRange(ctx, kioskID, start, end)
	if err != nil {
		return domain.DailyStatistic{}, false, domain.NewStorageError("query day", err)
	}

	stat, ok := Fold(kioskID, key, samples)
	if !ok {
		return domain.DailyStatistic{}, false, nil
	}
	if err := a.daily.Upsert(ctx, stat); err != nil {
		return domain.DailyStatistic{}, false, domain.NewStorageError("upsert daily statistic", err)
	}

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, stat); err != nil {
			a.obs.IncCounter(ports.MetricRollupPublishFailures, 1)
			a.obs.LogWarn("rollup_publish_failed", ports.F("kiosk_id", kioskID), ports.F("date", key.Format(time.DateOnly)), ports.F("error", err.Error()))
		}
	}
	return stat, true, nil
}

// CanonicalSensor returns the highest-priority sensor type present in samples.
func CanonicalSensor(samples []domain.MinutelySample) (domain.SensorType, bool) {
	present := make(map[domain.SensorType]bool, len(domain.CanonicalPriority))
	for _, s := range samples {
		present[s.SensorType] = true
	}
	for _, st := range domain.CanonicalPriority {
		if present[st] {
			return st, true
		}
	}
	return 0, false
}

// Fold reduces the canonical-sensor samples into a statistic. Means round half up.
func Fold(kioskID string, key time.Time, samples []domain.MinutelySample) (domain.DailyStatistic, bool) {
	sensor, ok := CanonicalSensor(samples)
	if !ok {
		return domain.DailyStatistic{}, false
	}

	stat := domain.DailyStatistic{
		KioskID:        kioskID,
		Date:           key,
		SensorType:     sensor,
		MinTemperature: 255,
		MinHumidity:    255,
	}
	var sumT, sumH int
	for _, s := range samples {
		if s.SensorType != sensor {
			continue
		}
		stat.SampleCount++
		sumT += int(s.Temperature)
		sumH += int(s.Humidity)
		stat.MinTemperature = min(stat.MinTemperature, s.Temperature)
		stat.MaxTemperature = max(stat.MaxTemperature, s.Temperature)
		stat.MinHumidity = min(stat.MinHumidity, s.Humidity)
		stat.MaxHumidity = max(stat.MaxHumidity, s.Humidity)
	}
	stat.MeanTemperature = roundHalfUp(sumT, stat.SampleCount)
	stat.MeanHumidity = roundHalfUp(sumH, stat.SampleCount)
	return stat, true
}

func roundHalfUp(sum, count int) uint8 {
	return uint8((2*sum + count) / (2 * count))
}

// KioskFailure is one kiosk that could not be aggregated during a fleet run.
type KioskFailure struct {
	KioskID string
	Err     error
}

// RunReport summarizes a fleet rollup for one day.
type RunReport struct {
	Date       time.Time
	Kiosks     int
	Aggregated []string
	Empty      []string
	Failed     []KioskFailure
	Duration   time.Duration
}

// RunFleet aggregates every active kiosk for day. A failing kiosk is logged
// and reported without affecting the others. The returned error is non-nil
// only when the day is not complete or the kiosk list cannot be read.
func (a *Aggregator) RunFleet(ctx context.Context, day time.Time) (RunReport, error) {
	key := domain.DateKey(day, a.loc)
	report := RunReport{Date: key}
	if err := a.checkCompleted(key); err != nil {
		return report, err
	}

	started := time.Now()
	ids, err := a.minutely.ListActiveKioskIDs(ctx)
	if err != nil {
		return report, domain.NewStorageError("list kiosks", err)
	}
	report.Kiosks = len(ids)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(a.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, ok, err := a.aggregate(ctx, id, key)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, KioskFailure{KioskID: id, Err: err})
				a.obs.IncCounter(ports.MetricRollupFailures, 1)
				a.obs.LogError("rollup_kiosk_failed", err, ports.F("kiosk_id", id), ports.F("date", key.Format(time.DateOnly)))
			case ok:
				report.Aggregated = append(report.Aggregated, id)
				a.obs.IncCounter(ports.MetricRollupKiosks, 1)
			default:
				report.Empty = append(report.Empty, id)
				a.obs.IncCounter(ports.MetricRollupEmpty, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Aggregated)
	sort.Strings(report.Empty)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].KioskID < report.Failed[j].KioskID })
	report.Duration = time.Since(started)

	a.obs.ObserveLatency(ports.MetricRollupDuration, report.Duration.Seconds())
	a.obs.LogInfo("rollup_completed",
		ports.F("date", key.Format(time.DateOnly)),
		ports.F("kiosks", report.Kiosks),
		ports.F("aggregated", len(report.Aggregated)),
		ports.F("empty", len(report.Empty)),
		ports.F("failed", len(report.Failed)),
	)
	return report, nil
}
