package query

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

const DefaultRecentWindow = 30 * 24 * time.Hour

// Service answers per-kiosk and fleet-wide read queries.
type Service struct {
	minutely    ports.MinutelyStore
	daily       ports.DailyStore
	clock       ports.Clock
	obs         ports.Observability
	window      time.Duration
	loc         *time.Location
	concurrency int
}

// Config tunes the service. Location sets the day boundary the recent
// window is rounded down to; nil means UTC.
type Config struct {
	RecentWindow time.Duration
	Location     *time.Location
	Concurrency  int
}

func NewService(minutely ports.MinutelyStore, daily ports.DailyStore, clock ports.Clock, obs ports.Observability, cfg Config) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultRecentWindow
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		minutely:    minutely,
		daily:       daily,
		clock:       clock,
		obs:         obs,
		window:      cfg.RecentWindow,
		loc:         cfg.Location,
		concurrency: cfg.Concurrency,
	}
}

// RecentSince returns the start of the recent window: midnight of the day
// that lies one window before now.
func (s *Service) RecentSince(now time.Time) time.Time {
	y, m, d := now.In(s.loc).Add(-s.window).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc).UTC()
}

// Recent returns the primary-sensor readings from RecentSince up to now.
func (s *Service) Recent(ctx context.Context, kioskID string) ([]domain.DataPoint, error) {
	now := s.clock.Now().UTC()
	samples, err := s.minutely.QueryRange(ctx, kioskID, s.RecentSince(now), now)
	if err != nil {
		return nil, domain.NewStorageError("recent samples", err)
	}
	points := make([]domain.DataPoint, 0, len(samples))
	for _, sm := range samples {
		if sm.SensorType == domain.PrimarySensor {
			points = append(points, sm.DataPoint())
		}
	}
	return points, nil
}

func (s *Service) DailyHistory(ctx context.Context, kioskID string) ([]domain.DailyStatistic, error) {
	days, err := s.daily.GetByKiosk(ctx, kioskID)
	if err != nil {
		return nil, domain.NewStorageError("daily history", err)
	}
	return days, nil
}

// KioskResult is the tagged outcome of one kiosk's sub-query.
type KioskResult struct {
	KioskID string
	Days    []domain.DailyStatistic
	Err     error
}

// FleetResults fetches every active kiosk's history concurrently. Each kiosk
// gets its own result; a failure never cancels the others.
func (s *Service) FleetResults(ctx context.Context) ([]KioskResult, error) {
	ids, err := s.minutely.ListActiveKioskIDs(ctx)
	if err != nil {
		return nil, domain.NewStorageError("list kiosks", err)
	}

	results := make([]KioskResult, len(ids))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			days, err := s.daily.GetByKiosk(ctx, id)
			results[i] = KioskResult{KioskID: id, Days: days, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// FleetDailyHistory returns the history of every kiosk that has one, sorted
// by kiosk id. Kiosks whose lookup failed are logged and left out. Only a
// failure to list kiosks is returned as an error.
func (s *Service) FleetDailyHistory(ctx context.Context) ([]domain.KioskHistory, error) {
	results, err := s.FleetResults(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.KioskHistory, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			s.obs.IncCounter(ports.MetricQueryKioskFailures, 1)
			s.obs.LogError("fleet_query_kiosk_failed", r.Err, ports.F("kiosk_id", r.KioskID))
			continue
		}
		if len(r.Days) == 0 {
			continue
		}
		out = append(out, domain.KioskHistory{KioskID: r.KioskID, Days: r.Days})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KioskID < out[j].KioskID })
	return out, nil
}
