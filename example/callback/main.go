package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	kiosk "github.com/CUMTD/Mtd.Kiosk/pkg/kiosk"
)

// Runs the service on in-memory stores, feeds it simulated onboard readings
// and prints every daily statistic the rollup produces.
func main() {
	cfg, err := kiosk.ParseConfig([]byte(`
storage:
  minutely: memory
  daily: memory
rollup:
  enabled: true
  run_at: "00:05"
`))
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer := kiosk.NewCallbackPublisher("stdout", func(_ context.Context, s kiosk.DailyStatistic) error {
		fmt.Printf("%s %s samples=%d temp=%d/%d/%d humidity=%d/%d/%d\n",
			s.Date.Format(time.DateOnly), s.KioskID, s.SampleCount,
			s.MinTemperature, s.MeanTemperature, s.MaxTemperature,
			s.MinHumidity, s.MeanHumidity, s.MaxHumidity)
		return nil
	})

	sim := kiosk.NewPushCollector()
	rt, err := kiosk.NewRuntime(ctx, cfg, kiosk.WithCollector(sim), kiosk.WithPublisher(printer))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	go simulate(ctx, sim, []string{"kiosk-1", "kiosk-2", "kiosk-3"})

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime exited: %v", err)
	}
}

func simulate(ctx context.Context, sim *kiosk.PushCollector, kiosks []string) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		for _, id := range kiosks {
			r := kiosk.Reading{
				KioskID:     id,
				Temperature: 68 + rand.IntN(10),
				Humidity:    30 + rand.IntN(20),
				SensorType:  kiosk.SensorOnboard,
			}
			if err := sim.Push(ctx, r); err != nil && ctx.Err() == nil {
				log.Printf("push %s: %v", id, err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
