package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	kiosk "github.com/CUMTD/Mtd.Kiosk"
)

func main() {
	cfg, err := kiosk.LoadConfig("../../configs/kioskclimate.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := kiosk.NewRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime exited: %v", err)
	}
}
