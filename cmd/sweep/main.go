// sweep runs one expiry sweep against the configured store and exits; use it from cron when the
// server's own sweep loop is disabled (SWEEP_INTERVAL very large) or for manual cleanup.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"online-status/internal/bootstrap"
	"online-status/internal/config"
	"online-status/internal/presence/sweeper"
	"online-status/internal/telemetry"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "Maximum duration of the sweep")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.StoreDriver == config.StoreMemory {
		log.Fatal("sweep: STORE_DRIVER=memory has nothing to sweep; set DATABASE_URL or STORE_DRIVER=sqlite")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	store, err := bootstrap.OpenStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	statusCache, closeCache, err := bootstrap.OpenCache(ctx, cfg)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer closeCache()

	emitter, closeEmitter, err := bootstrap.Emitter(cfg, nil)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	sweep := sweeper.New(store.Presence, statusCache, sweeper.Options{
		OnlineTimeout: cfg.OnlineTimeout,
		BatchSize:     cfg.SweepBatchSize,
		BatchPause:    cfg.SweepBatchPause,
		Emitter:       emitter,
	})
	res, err := sweep.Run(ctx)
	log.Printf("sweep: %d candidates, %d deleted, %d/%d batches failed",
		res.Candidates, len(res.Deleted), res.FailedBatches, res.Batches)
	code := 0
	if err != nil {
		log.Printf("sweep: %v", err)
		code = 1
		if errors.Is(err, sweeper.ErrPartialSweep) {
			code = 2
		}
	}

	if len(cfg.TelemetryKafkaBrokersList()) > 0 {
		// The sweep event is emitted asynchronously.
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	if err := closeEmitter(); err != nil {
		log.Printf("telemetry: close producer: %v", err)
	}
	if code != 0 {
		store.Close()
		closeCache()
		os.Exit(code)
	}
}
