package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

// Scheduler runs the fleet rollup for the previous day once a day.
type Scheduler struct {
	agg          *Aggregator
	clock        ports.Clock
	obs          ports.Observability
	hour, minute int
	backfillDays int
}

// ParseRunAt parses an HH:MM wall-clock time.
func ParseRunAt(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("run_at %q: expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

func NewScheduler(agg *Aggregator, runAt string, backfillDays int, obs ports.Observability) (*Scheduler, error) {
	h, m, err := ParseRunAt(runAt)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Scheduler{agg: agg, clock: agg.clock, obs: obs, hour: h, minute: m, backfillDays: backfillDays}, nil
}

// NextRun returns the first run time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.agg.loc)
	y, mo, d := local.Date()
	next := time.Date(y, mo, d, s.hour, s.minute, 0, 0, s.agg.loc)
	if !next.After(local) {
		next = time.Date(y, mo, d+1, s.hour, s.minute, 0, 0, s.agg.loc)
	}
	return next
}

// Backfill aggregates the last n completed days, oldest first.
func (s *Scheduler) Backfill(ctx context.Context, n int) []RunReport {
	today := domain.DateKey(s.clock.Now(), s.agg.loc)
	reports := make([]RunReport, 0, n)
	for i := n; i >= 1; i-- {
		if ctx.Err() != nil {
			break
		}
		day := today.AddDate(0, 0, -i)
		report, err := s.agg.RunFleet(ctx, fleetDay(day, s.agg.loc))
		if err != nil {
			s.obs.LogError("rollup_backfill_failed", err, ports.F("date", day.Format(time.DateOnly)))
			continue
		}
		reports = append(reports, report)
	}
	return reports
}

// fleetDay turns a date key back into an instant inside that day in loc.
func fleetDay(key time.Time, loc *time.Location) time.Time {
	start, _ := domain.DayBounds(key, loc)
	return start.Add(12 * time.Hour)
}

// Run backfills, then rolls up the previous day at every scheduled time
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.backfillDays > 0 {
		s.Backfill(ctx, s.backfillDays)
	}

	for {
		wait := s.NextRun(s.clock.Now()).Sub(s.clock.Now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		yesterday := domain.DateKey(s.clock.Now(), s.agg.loc).AddDate(0, 0, -1)
		if _, err := s.agg.RunFleet(ctx, fleetDay(yesterday, s.agg.loc)); err != nil {
			s.obs.LogError("rollup_run_failed", err, ports.F("date", yesterday.Format(time.DateOnly)))
		}
	}
}
