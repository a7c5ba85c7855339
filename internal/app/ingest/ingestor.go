package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

// TimestampResolution is the finest timestamp step every store keeps
// (Postgres timestamptz stores microseconds).
const TimestampResolution = time.Microsecond

type stampKey struct {
	kioskID string
	sensor  domain.SensorType
}

// Ingestor validates readings, stamps them with the ingestion time and
// appends them to the minutely store. Timestamps issued for one kiosk and
// sensor are strictly increasing, so two readings never share a store key.
type Ingestor struct {
	store ports.MinutelyStore
	clock ports.Clock
	obs   ports.Observability

	mu   sync.Mutex
	last map[stampKey]time.Time
}

func New(store ports.MinutelyStore, clock ports.Clock, obs ports.Observability) *Ingestor {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Ingestor{store: store, clock: clock, obs: obs, last: make(map[stampKey]time.Time)}
}

// Validate checks a reading and converts it into a sample stamped at now.
func Validate(r domain.Reading, now time.Time) (domain.MinutelySample, error) {
	id := strings.TrimSpace(r.KioskID)
	if id == "" {
		return domain.MinutelySample{}, &domain.ValidationError{Field: "kioskId", Reason: "must not be empty"}
	}
	if r.Temperature < 0 || r.Temperature > 255 {
		return domain.MinutelySample{}, &domain.ValidationError{Field: "temperature", Reason: fmt.Sprintf("%d outside [0,255]", r.Temperature)}
	}
	if r.Humidity < 0 || r.Humidity > 255 {
		return domain.MinutelySample{}, &domain.ValidationError{Field: "humidity", Reason: fmt.Sprintf("%d outside [0,255]", r.Humidity)}
	}
	if !r.SensorType.Valid() {
		return domain.MinutelySample{}, &domain.ValidationError{Field: "sensorType", Reason: fmt.Sprintf("unrecognized sensor type %d", uint8(r.SensorType))}
	}
	return domain.MinutelySample{
		KioskID:     id,
		Timestamp:   now.UTC().Truncate(TimestampResolution),
		Temperature: uint8(r.Temperature),
		Humidity:    uint8(r.Humidity),
		SensorType:  r.SensorType,
	}, nil
}

// stampLocked moves s past the last timestamp issued for its kiosk and sensor.
func (i *Ingestor) stampLocked(s *domain.MinutelySample) {
	key := stampKey{kioskID: s.KioskID, sensor: s.SensorType}
	if prev, ok := i.last[key]; ok && !s.Timestamp.After(prev) {
		s.Timestamp = prev.Add(TimestampResolution)
	}
	i.last[key] = s.Timestamp
}

// Ingest persists one reading. Validation failures leave the store untouched.
func (i *Ingestor) Ingest(ctx context.Context, r domain.Reading) (domain.MinutelySample, error) {
	s, err := Validate(r, i.clock.Now())
	if err != nil {
		i.obs.IncCounter(ports.MetricSamplesRejected, 1)
		return domain.MinutelySample{}, err
	}
	i.mu.Lock()
	i.stampLocked(&s)
	i.mu.Unlock()

	start := time.Now()
	if err := i.store.Append(ctx, s); err != nil {
		i.obs.LogError("sample_append_failed", err, ports.F("kiosk_id", s.KioskID))
		return domain.MinutelySample{}, domain.NewStorageError("append sample", err)
	}
	i.obs.ObserveLatency(ports.MetricIngestLatency, time.Since(start).Seconds())
	i.obs.IncCounter(ports.MetricSamplesAccepted, 1)
	return s, nil
}

// BatchResult reports the outcome of IngestBatch. Rejected holds one
// validation error per dropped reading, in input order.
type BatchResult struct {
	Accepted []domain.MinutelySample
	Rejected []error
}

// IngestBatch drops invalid readings individually and appends the rest in a
// single store transaction. A store failure fails the whole batch. Readings
// for the same kiosk and sensor keep their input order in timestamp order.
func (i *Ingestor) IngestBatch(ctx context.Context, readings []domain.Reading) (BatchResult, error) {
	now := i.clock.Now()
	var res BatchResult
	i.mu.Lock()
	for _, r := range readings {
		s, err := Validate(r, now)
		if err != nil {
			res.Rejected = append(res.Rejected, fmt.Errorf("kiosk %q: %w", r.KioskID, err))
			continue
		}
		i.stampLocked(&s)
		res.Accepted = append(res.Accepted, s)
	}
	i.mu.Unlock()
	if n := len(res.Rejected); n > 0 {
		i.obs.IncCounter(ports.MetricSamplesRejected, float64(n))
	}
	if len(res.Accepted) == 0 {
		return res, nil
	}

	start := time.Now()
	if err := i.store.AppendBatch(ctx, res.Accepted); err != nil {
		i.obs.LogError("sample_batch_append_failed", err, ports.F("samples", len(res.Accepted)))
		accepted := len(res.Accepted)
		res.Accepted = nil
		return res, fmt.Errorf("append %d samples: %w", accepted, domain.NewStorageError("append batch", err))
	}
	i.obs.ObserveLatency(ports.MetricIngestLatency, time.Since(start).Seconds())
	i.obs.IncCounter(ports.MetricSamplesAccepted, float64(len(res.Accepted)))
	return res, nil
}

// IsRejection reports whether err came from validation rather than storage.
func IsRejection(err error) bool { return errors.Is(err, domain.ErrValidation) }
