package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/app/ingest"
	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

// BatchIngester persists batches of readings.
type BatchIngester interface {
	IngestBatch(ctx context.Context, readings []domain.Reading) (ingest.BatchResult, error)
}

const flushTimeout = 5 * time.Second

// RunCollectorPipeline streams readings from col through q into ing until ctx
// is cancelled, then stops the collector and flushes what is still queued.
func RunCollectorPipeline(ctx context.Context, col ports.Collector, q ports.ReadingQueue, ing BatchIngester, pol ports.Policy, obs ports.Observability) error {
	ch := make(chan domain.Reading, max(pol.MaxQueueLen, 1))
	if err := col.Start(ch); err != nil {
		return fmt.Errorf("start collector: %w", err)
	}

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-ch:
				if !enqueueWithPolicy(ctx, q, r, pol, obs) {
					obs.IncCounter(ports.MetricQueueDropped, 1)
				}
				obs.SetGauge(ports.MetricQueueLength, float64(q.Len()))
			}
		}
	}()

	drain(ctx, q, ing, pol, obs)

	stopErr := col.Stop()
	<-forwardDone

	// Queued readings arrived before anything still sitting in ch.
	pending := q.DequeueBatch(0)
	pending = append(pending, drainChannel(ch)...)
	obs.SetGauge(ports.MetricQueueLength, 0)

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	size := pol.MaxBatchSize
	if size <= 0 {
		size = max(len(pending), 1)
	}
	for start := 0; start < len(pending); start += size {
		batch := pending[start:min(start+size, len(pending))]
		if err := ingestBatch(flushCtx, batch, ing, obs); err != nil {
			obs.IncCounter(ports.MetricQueueDropped, float64(len(batch)))
		}
	}

	if stopErr != nil {
		return fmt.Errorf("stop collector: %w", stopErr)
	}
	return nil
}

// drainChannel empties ch without blocking.
func drainChannel(ch <-chan domain.Reading) []domain.Reading {
	var out []domain.Reading
	for {
		select {
		case r := <-ch:
			out = append(out, r)
		default:
			return out
		}
	}
}

func drain(ctx context.Context, q ports.ReadingQueue, ing BatchIngester, pol ports.Policy, obs ports.Observability) {
	sleep := idleSleep(pol)
	for {
		if ctx.Err() != nil {
			return
		}
		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			continue
		}
		ingestBatch(ctx, batch, ing, obs)
		obs.SetGauge(ports.MetricQueueLength, float64(q.Len()))
	}
}

func ingestBatch(ctx context.Context, batch []domain.Reading, ing BatchIngester, obs ports.Observability) error {
	res, err := ing.IngestBatch(ctx, batch)
	for _, rej := range res.Rejected {
		obs.LogWarn("reading_rejected", ports.F("error", rej.Error()))
	}
	if err != nil {
		obs.LogError("collector_batch_failed", err, ports.F("readings", len(batch)))
	}
	return err
}

func idleSleep(pol ports.Policy) time.Duration {
	if pol.IdleSleep <= 0 {
		return 5 * time.Millisecond
	}
	return pol.IdleSleep
}

func enqueueWithPolicy(ctx context.Context, q ports.ReadingQueue, r domain.Reading, pol ports.Policy, obs ports.Observability) bool {
	sleep := idleSleep(pol)
	for {
		if ok := q.Enqueue(r); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			select {
			case <-ctx.Done():
				return false
			case <-time.After(sleep):
			}
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen), ports.F("kiosk_id", r.KioskID))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
