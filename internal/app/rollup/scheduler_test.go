package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/memstore"
	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
)

func TestParseRunAt(t *testing.T) {
	h, m, err := ParseRunAt("01:30")
	if err != nil || h != 1 || m != 30 {
		t.Fatalf("unexpected %d:%d %v", h, m, err)
	}
	for _, bad := range []string{"", "25:00", "1:3x"} {
		if _, _, err := ParseRunAt(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNextRun(t *testing.T) {
	agg := NewAggregator(memstore.NewMinutelyStore(), memstore.NewDailyStore(), WithClock(clock))
	s, err := NewScheduler(agg, "01:30", 0, nil)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	before := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if got := s.NextRun(before); !got.Equal(time.Date(2024, 5, 1, 1, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next run %s", got)
	}
	at := time.Date(2024, 5, 1, 1, 30, 0, 0, time.UTC)
	if got := s.NextRun(at); !got.Equal(time.Date(2024, 5, 2, 1, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected strictly later run, got %s", got)
	}
}

func TestBackfillAggregatesCompletedDays(t *testing.T) {
	minutely, daily := memstore.NewMinutelyStore(), memstore.NewDailyStore()
	now := time.Date(2024, 5, 4, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 4; i++ {
		seed(t, minutely, sample("K1", now.AddDate(0, 0, -i), 70, 40, domain.SensorOnboard))
	}
	// today's samples are never rolled up
	seed(t, minutely, sample("K1", now.Add(-time.Hour), 70, 40, domain.SensorOnboard))

	agg := NewAggregator(minutely, daily, WithClock(fixedClock{now}))
	s, _ := NewScheduler(agg, "00:15", 3, nil)

	reports := s.Backfill(context.Background(), 3)
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	if !reports[0].Date.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected oldest day first, got %s", reports[0].Date)
	}

	stats, _ := daily.GetByKiosk(context.Background(), "K1")
	if len(stats) != 3 {
		t.Fatalf("expected 3 daily statistics, got %d", len(stats))
	}
	if last := stats[len(stats)-1].Date; !last.Equal(time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected yesterday as latest day, got %s", last)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	agg := NewAggregator(memstore.NewMinutelyStore(), memstore.NewDailyStore(), WithClock(clock))
	s, _ := NewScheduler(agg, "00:00", 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
