package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/memstore"
	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type countingObs struct {
	ports.NopObservability
	mu       sync.Mutex
	counters map[string]float64
}

func (o *countingObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counters == nil {
		o.counters = map[string]float64{}
	}
	o.counters[name] += v
}

type failingStore struct {
	*memstore.MinutelyStore
	err error
}

func (f failingStore) Append(context.Context, domain.MinutelySample) error { return f.err }

func (f failingStore) AppendBatch(context.Context, []domain.MinutelySample) error { return f.err }

var now = time.Date(2024, 5, 1, 15, 4, 5, 999_000_000, time.FixedZone("CDT", -5*3600))

func TestIngestAssignsTimestampAndPersists(t *testing.T) {
	store := memstore.NewMinutelyStore()
	obs := &countingObs{}
	ing := New(store, fixedClock{now}, obs)

	s, err := ing.Ingest(context.Background(), domain.Reading{KioskID: " K1 ", Temperature: 72, Humidity: 40})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	want := time.Date(2024, 5, 1, 20, 4, 5, 999_000_000, time.UTC)
	if !s.Timestamp.Equal(want) || s.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp %s, got %s", want, s.Timestamp)
	}
	if s.KioskID != "K1" {
		t.Fatalf("expected trimmed kiosk id, got %q", s.KioskID)
	}

	got, _ := store.QueryRange(context.Background(), "K1", want, want.Add(time.Second))
	if len(got) != 1 || got[0] != s {
		t.Fatalf("expected stored sample %+v, got %+v", s, got)
	}
	if obs.counters[ports.MetricSamplesAccepted] != 1 {
		t.Fatalf("expected accepted counter")
	}
}

func TestIngestSameInstantReadingsAreAllPersisted(t *testing.T) {
	store := memstore.NewMinutelyStore()
	obs := &countingObs{}
	ing := New(store, fixedClock{now}, obs)
	ctx := context.Background()

	first, err := ing.Ingest(ctx, domain.Reading{KioskID: "K1", Temperature: 70, Humidity: 40})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := ing.Ingest(ctx, domain.Reading{KioskID: "K1", Temperature: 90, Humidity: 50})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !second.Timestamp.After(first.Timestamp) {
		t.Fatalf("expected strictly increasing timestamps, got %s then %s", first.Timestamp, second.Timestamp)
	}

	res, err := ing.IngestBatch(ctx, []domain.Reading{
		{KioskID: "K1", Temperature: 71, Humidity: 41},
		{KioskID: "K1", Temperature: 72, Humidity: 42},
		{KioskID: "K1", Temperature: 73, Humidity: 43, SensorType: domain.SensorCoolingUnit},
	})
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if len(res.Accepted) != 3 {
		t.Fatalf("expected 3 accepted, got %d", len(res.Accepted))
	}

	got, err := store.QueryRange(ctx, "K1", first.Timestamp, first.Timestamp.Add(time.Second))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected every accepted reading to be stored, got %d: %+v", len(got), got)
	}
	temps := make([]uint8, 0, 4)
	for _, s := range got {
		if s.SensorType == domain.SensorOnboard {
			temps = append(temps, s.Temperature)
		}
	}
	if len(temps) != 4 || temps[0] != 70 || temps[1] != 90 || temps[2] != 71 || temps[3] != 72 {
		t.Fatalf("expected onboard readings in arrival order, got %v", temps)
	}
	if obs.counters[ports.MetricSamplesAccepted] != 5 {
		t.Fatalf("expected 5 accepted, counter says %v", obs.counters[ports.MetricSamplesAccepted])
	}
}

func TestIngestDuplicateKeyIsNotAccepted(t *testing.T) {
	store := memstore.NewMinutelyStore()
	ctx := context.Background()
	stored := domain.MinutelySample{KioskID: "K1", Timestamp: now.UTC(), Temperature: 70, Humidity: 40}
	if err := store.Append(ctx, stored); err != nil {
		t.Fatalf("seed: %v", err)
	}

	obs := &countingObs{}
	ing := New(store, fixedClock{now}, obs)
	_, err := ing.Ingest(ctx, domain.Reading{KioskID: "K1", Temperature: 90, Humidity: 50})
	if !errors.Is(err, domain.ErrDuplicateSample) || !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected duplicate storage error, got %v", err)
	}
	if obs.counters[ports.MetricSamplesAccepted] != 0 {
		t.Fatalf("duplicate must not count as accepted")
	}
	got, _ := store.QueryRange(ctx, "K1", stored.Timestamp, stored.Timestamp.Add(time.Second))
	if len(got) != 1 || got[0].Temperature != 70 {
		t.Fatalf("stored sample must stay unchanged, got %+v", got)
	}
}

func TestIngestRejectsInvalidReadings(t *testing.T) {
	cases := map[string]domain.Reading{
		"empty kiosk":      {KioskID: "  ", Temperature: 70, Humidity: 40},
		"temp too high":    {KioskID: "K1", Temperature: 256, Humidity: 40},
		"negative temp":    {KioskID: "K1", Temperature: -1, Humidity: 40},
		"humidity too big": {KioskID: "K1", Temperature: 70, Humidity: 300},
		"unknown sensor":   {KioskID: "K1", Temperature: 70, Humidity: 40, SensorType: domain.SensorType(9)},
	}

	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			store := memstore.NewMinutelyStore()
			obs := &countingObs{}
			ing := New(store, fixedClock{now}, obs)

			_, err := ing.Ingest(context.Background(), r)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field == "" {
				t.Fatalf("expected field-level validation error, got %v", err)
			}
			ids, _ := store.ListActiveKioskIDs(context.Background())
			if len(ids) != 0 {
				t.Fatalf("rejected reading must not be stored")
			}
			if obs.counters[ports.MetricSamplesRejected] != 1 {
				t.Fatalf("expected rejected counter")
			}
		})
	}
}

func TestIngestBoundaryValuesAccepted(t *testing.T) {
	ing := New(memstore.NewMinutelyStore(), fixedClock{now}, nil)
	for _, v := range []int{0, 255} {
		if _, err := ing.Ingest(context.Background(), domain.Reading{KioskID: "K1", Temperature: v, Humidity: v}); err != nil {
			t.Fatalf("value %d: %v", v, err)
		}
	}
}

func TestIngestStorageFailure(t *testing.T) {
	cause := errors.New("db down")
	ing := New(failingStore{MinutelyStore: memstore.NewMinutelyStore(), err: cause}, fixedClock{now}, nil)

	_, err := ing.Ingest(context.Background(), domain.Reading{KioskID: "K1", Temperature: 70, Humidity: 40})
	if !errors.Is(err, domain.ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("expected storage error wrapping cause, got %v", err)
	}
	if IsRejection(err) {
		t.Fatalf("storage failure must not look like a rejection")
	}
}

func TestIngestBatchDropsInvalidIndividually(t *testing.T) {
	store := memstore.NewMinutelyStore()
	ing := New(store, fixedClock{now}, nil)

	res, err := ing.IngestBatch(context.Background(), []domain.Reading{
		{KioskID: "A", Temperature: 70, Humidity: 40},
		{KioskID: "", Temperature: 70, Humidity: 40},
		{KioskID: "B", Temperature: 71, Humidity: 41, SensorType: domain.SensorCoolingUnit},
		{KioskID: "C", Temperature: 999, Humidity: 41},
	})
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if len(res.Accepted) != 2 || len(res.Rejected) != 2 {
		t.Fatalf("expected 2 accepted and 2 rejected, got %d/%d", len(res.Accepted), len(res.Rejected))
	}
	for _, e := range res.Rejected {
		if !IsRejection(e) {
			t.Fatalf("expected validation rejection, got %v", e)
		}
	}
	ids, _ := store.ListActiveKioskIDs(context.Background())
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "B" {
		t.Fatalf("unexpected stored kiosks %v", ids)
	}
}

func TestIngestBatchStoreFailureFailsBatch(t *testing.T) {
	ing := New(failingStore{MinutelyStore: memstore.NewMinutelyStore(), err: errors.New("tx aborted")}, fixedClock{now}, nil)

	res, err := ing.IngestBatch(context.Background(), []domain.Reading{{KioskID: "A", Temperature: 70, Humidity: 40}})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(res.Accepted) != 0 {
		t.Fatalf("failed batch must report nothing accepted")
	}
}
