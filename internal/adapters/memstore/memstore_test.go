package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func sampleAt(kiosk string, minute int, st domain.SensorType) domain.MinutelySample {
	return domain.MinutelySample{
		KioskID:     kiosk,
		Timestamp:   base.Add(time.Duration(minute) * time.Minute),
		Temperature: uint8(60 + minute%20),
		Humidity:    40,
		SensorType:  st,
	}
}

func TestMinutelyStoreOrdersAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	m := NewMinutelyStore()

	for _, minute := range []int{5, 1, 3} {
		if err := m.Append(ctx, sampleAt("K1", minute, domain.SensorOnboard)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	err := m.Append(ctx, sampleAt("K1", 1, domain.SensorOnboard))
	if !errors.Is(err, domain.ErrDuplicateSample) || !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected duplicate storage error, got %v", err)
	}
	// same timestamp, different sensor type is a distinct sample
	if err := m.Append(ctx, sampleAt("K1", 3, domain.SensorCoolingUnit)); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := m.QueryRange(ctx, "K1", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("samples out of order at %d: %v", i, got)
		}
	}
}

func TestMinutelyStoreBatchWithDuplicateWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMinutelyStore()

	repeated := []domain.MinutelySample{
		sampleAt("K1", 7, domain.SensorOnboard),
		sampleAt("K2", 7, domain.SensorOnboard),
		sampleAt("K1", 7, domain.SensorOnboard),
	}
	if err := m.AppendBatch(ctx, repeated); !errors.Is(err, domain.ErrDuplicateSample) {
		t.Fatalf("expected duplicate error for repeated key, got %v", err)
	}
	if ids, _ := m.ListActiveKioskIDs(ctx); len(ids) != 0 {
		t.Fatalf("failed batch must not persist samples, found kiosks %v", ids)
	}

	if err := m.Append(ctx, sampleAt("K1", 8, domain.SensorOnboard)); err != nil {
		t.Fatalf("append: %v", err)
	}
	clash := []domain.MinutelySample{
		sampleAt("K1", 9, domain.SensorOnboard),
		sampleAt("K1", 8, domain.SensorOnboard),
	}
	if err := m.AppendBatch(ctx, clash); !errors.Is(err, domain.ErrDuplicateSample) {
		t.Fatalf("expected duplicate error for stored key, got %v", err)
	}
	if got, _ := m.QueryRange(ctx, "K1", base, base.Add(time.Hour)); len(got) != 1 {
		t.Fatalf("expected only the first sample to be stored, got %d", len(got))
	}
}

func TestMinutelyStoreRangeIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	m := NewMinutelyStore()
	_ = m.AppendBatch(ctx, []domain.MinutelySample{
		sampleAt("K1", 0, domain.SensorOnboard),
		sampleAt("K1", 10, domain.SensorOnboard),
		sampleAt("K1", 20, domain.SensorOnboard),
	})

	got, _ := m.QueryRange(ctx, "K1", base, base.Add(20*time.Minute))
	if len(got) != 2 {
		t.Fatalf("expected [0,20) to hold 2 samples, got %d", len(got))
	}
	if got, _ := m.QueryRange(ctx, "missing", base, base.Add(time.Hour)); len(got) != 0 {
		t.Fatalf("expected no samples for unknown kiosk")
	}
}

func TestMinutelyStoreListActiveKioskIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMinutelyStore()
	_ = m.Append(ctx, sampleAt("K2", 0, domain.SensorOnboard))
	_ = m.Append(ctx, sampleAt("K1", 0, domain.SensorCoolingUnit))

	ids, err := m.ListActiveKioskIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "K1" || ids[1] != "K2" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestMinutelyStoreCancelledAppendWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMinutelyStore()

	if err := m.Append(ctx, sampleAt("K1", 0, domain.SensorOnboard)); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	ids, _ := m.ListActiveKioskIDs(context.Background())
	if len(ids) != 0 {
		t.Fatalf("expected no kiosks, got %v", ids)
	}
}

func TestMinutelyStoreConcurrentKiosks(t *testing.T) {
	ctx := context.Background()
	m := NewMinutelyStore()

	var wg sync.WaitGroup
	for _, kiosk := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func(kiosk string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = m.Append(ctx, sampleAt(kiosk, i, domain.SensorOnboard))
				_, _ = m.QueryRange(ctx, kiosk, base, base.Add(time.Hour))
			}
		}(kiosk)
	}
	wg.Wait()

	for _, kiosk := range []string{"A", "B", "C", "D"} {
		got, _ := m.QueryRange(ctx, kiosk, base, base.Add(24*time.Hour))
		if len(got) != 200 {
			t.Fatalf("kiosk %s: expected 200 samples, got %d", kiosk, len(got))
		}
	}
}

func TestDailyStoreUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	d := NewDailyStore()

	day1 := domain.DailyStatistic{KioskID: "K1", Date: base, SampleCount: 3}
	day2 := domain.DailyStatistic{KioskID: "K1", Date: base.AddDate(0, 0, 1), SampleCount: 5}
	_ = d.Upsert(ctx, day2)
	_ = d.Upsert(ctx, day1)
	day1.SampleCount = 4
	_ = d.Upsert(ctx, day1)

	got, err := d.GetByKiosk(ctx, "K1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 days, got %d", len(got))
	}
	if !got[0].Date.Equal(base) || got[0].SampleCount != 4 {
		t.Fatalf("expected replaced first day, got %+v", got[0])
	}

	all, _ := d.GetAll(ctx)
	if _, ok := all["K2"]; ok {
		t.Fatalf("kiosks without statistics must be omitted")
	}
	if len(all["K1"]) != 2 {
		t.Fatalf("expected K1 history in GetAll")
	}
}
