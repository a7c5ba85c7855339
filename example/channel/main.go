package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	kiosk "github.com/CUMTD/Mtd.Kiosk"
)

// Fans daily statistics out to a worker over a channel instead of Kafka.
func main() {
	cfg, err := kiosk.LoadConfig("../../configs/kioskclimate.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub, stats := kiosk.NewChannelPublisher(32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fanoutWorker("alerts", stats)
	}()

	rt, err := kiosk.NewRuntime(ctx, cfg, kiosk.WithPublisher(pub))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime exited: %v", err)
	}
	<-done
}

func fanoutWorker(name string, stats <-chan kiosk.DailyStatistic) {
	for s := range stats {
		if s.MaxTemperature >= 95 {
			fmt.Printf("[%s] %s ran hot on %s: max %d°F\n", name, s.KioskID, s.Date.Format("2006-01-02"), s.MaxTemperature)
		}
	}
}
