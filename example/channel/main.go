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

	obs, snapshots, closeSnapshots := daqlog.NewChannelObserver(32)

	rt, err := daqlog.NewRuntime(cfg, daqlog.WithObserver(obs))
	if err != nil {
		log.Fatalf("open runtime: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		peakWatcher(snapshots)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = rt.Run(ctx)
	closeSnapshots()
	<-done
	if err != nil {
		log.Fatalf("runtime error: %v", err)
	}
	fmt.Printf("dropped %d snapshots\n", obs.Dropped())
}

func peakWatcher(snapshots <-chan daqlog.Snapshot) {
	for s := range snapshots {
		amps := s.Amplitudes()
		if len(amps) == 0 {
			continue
		}
		peak, at := amps[0], 0
		for i, a := range amps {
			if a > peak {
				peak, at = a, i
			}
		}
		fmt.Printf("[%s] cycle=%d peak=%.2f at bin %d\n", time.Now().Format(time.RFC3339), s.Cycle, peak, at)
	}
}
