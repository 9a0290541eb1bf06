package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/subradiance/daqlog"
)

func main() {
	cfg, err := daqlog.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := daqlog.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("open runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("session %s: %v", rt.State(), err)
	}
}
