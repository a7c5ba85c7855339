package coolingunit

import (
	"context"
	"fmt"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
	"github.com/CUMTD/Mtd.Kiosk/internal/resilience"
)

// Ingester accepts readings for persistence.
type Ingester interface {
	Ingest(ctx context.Context, r domain.Reading) (domain.MinutelySample, error)
}

// Fetcher reads a cooling unit under the resilience policy and hands the
// result to the ingestor as a SensorCoolingUnit reading.
type Fetcher struct {
	client   *Client
	policy   *resilience.Policy
	ingester Ingester
	obs      ports.Observability
}

func NewFetcher(client *Client, policy *resilience.Policy, ingester Ingester, obs ports.Observability) *Fetcher {
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Fetcher{client: client, policy: policy, ingester: ingester, obs: obs}
}

// Read fetches and extracts the current values without ingesting them.
func (f *Fetcher) Read(ctx context.Context, src Source) (Values, error) {
	var resp *Response
	start := time.Now()
	err := f.policy.Execute(ctx, src.Target(), func(ctx context.Context) error {
		r, err := f.client.Fetch(ctx, src)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	f.obs.ObserveLatency(ports.MetricFetchLatency, time.Since(start).Seconds())
	if err != nil {
		return Values{}, err
	}
	return Extract(resp, src)
}

// Poll reads src and ingests the values.
func (f *Fetcher) Poll(ctx context.Context, src Source) (domain.MinutelySample, error) {
	vals, err := f.Read(ctx, src)
	if err != nil {
		f.obs.IncCounter(ports.MetricFetchFailures, 1)
		return domain.MinutelySample{}, fmt.Errorf("poll kiosk %s: %w", src.KioskID, err)
	}
	if vals.AlarmActive() {
		f.obs.LogWarn("cooling_unit_alarm",
			ports.F("kiosk_id", src.KioskID),
			ports.F("device_id", vals.DeviceID),
			ports.F("device", vals.DeviceName),
			ports.F("state", vals.Alarm.State),
			ports.F("severity", vals.Alarm.Severity),
		)
	}

	s, err := f.ingester.Ingest(ctx, domain.Reading{
		KioskID:     src.KioskID,
		Temperature: vals.Temperature,
		Humidity:    vals.Humidity,
		SensorType:  domain.SensorCoolingUnit,
	})
	if err != nil {
		f.obs.IncCounter(ports.MetricFetchFailures, 1)
		return domain.MinutelySample{}, fmt.Errorf("poll kiosk %s: %w", src.KioskID, err)
	}
	f.obs.IncCounter(ports.MetricFetchSuccess, 1)
	return s, nil
}

// Snapshots exposes the breaker state of every target polled so far.
func (f *Fetcher) Snapshots() []resilience.Snapshot {
	return f.policy.Snapshots()
}
