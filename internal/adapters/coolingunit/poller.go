package coolingunit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

// Poller polls every configured source on a fixed interval.
type Poller struct {
	fetcher  *Fetcher
	sources  []Source
	interval time.Duration
	obs      ports.Observability
}

func NewPoller(fetcher *Fetcher, sources []Source, interval time.Duration, obs ports.Observability) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Poller{fetcher: fetcher, sources: sources, interval: interval, obs: obs}
}

// PollOnce polls all sources concurrently and returns how many succeeded.
// A failing source never affects the others.
func (p *Poller) PollOnce(ctx context.Context) int {
	cycle := uuid.NewString()
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, src := range p.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.fetcher.Poll(ctx, src); err != nil {
				p.obs.LogError("cooling_unit_poll_failed", err,
					ports.F("cycle_id", cycle),
					ports.F("kiosk_id", src.KioskID),
					ports.F("target", src.Target()),
				)
				return
			}
			mu.Lock()
			ok++
			mu.Unlock()
		}()
	}
	wg.Wait()
	p.obs.LogInfo("cooling_unit_poll_cycle", ports.F("cycle_id", cycle), ports.F("sources", len(p.sources)), ports.F("ok", ok))
	return ok
}

// Run polls immediately and then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.sources) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}
