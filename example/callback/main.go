package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/subradiance/daqlog"
)

func main() {
	cfg, err := daqlog.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.Simulate = true
	cfg.Acquisition.ObserverEvery = 1

	callback := daqlog.ObserverFunc(func(s daqlog.Snapshot) {
		p, _ := s.Pressure()
		fmt.Printf("%s cycle=%d pressure=%g %s cycle_time=%s\n",
			s.Timestamp.Format(time.RFC3339),
			s.Cycle,
			p.Value,
			p.Unit,
			s.CycleTime,
		)
	})

	rt, err := daqlog.NewRuntime(cfg, daqlog.WithObserver(callback))
	if err != nil {
		log.Fatalf("open runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
