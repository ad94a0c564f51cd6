package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"online-status/internal/bootstrap"
	"online-status/internal/config"
	"online-status/internal/policy/engine"
	"online-status/internal/presence/service"
	"online-status/internal/presence/sweeper"
	"online-status/internal/server"
	"online-status/internal/server/interceptors"
	"online-status/internal/telemetry"
	oteladapter "online-status/internal/telemetry/otel"
	userservice "online-status/internal/user/service"
)

// finalSweepTimeout bounds the sweep run after the gRPC server has stopped.
const finalSweepTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := oteladapter.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, cfg.OTelInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	emitter, closeEmitter, err := bootstrap.Emitter(cfg, providers.LoggerProvider)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

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

	tokens, err := bootstrap.TokenProvider(cfg)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	if tokens == nil {
		log.Println("server: no JWT key configured; heartbeats are treated as anonymous")
	}

	policy, err := engine.LoadPolicyFile(cfg.VisibilityPolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	visibility, err := engine.NewOPAEvaluator(ctx, policy)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	tracker := service.NewTracker(store.Presence, statusCache, userservice.NewIdentityProvider(store.Users), tokens, service.Options{
		OnlineTimeout:  cfg.OnlineTimeout,
		DebounceWindow: cfg.DebounceWindow,
		StatusCacheTTL: cfg.StatusCacheTTL,
		Meter:          providers.Meter(),
		Emitter:        emitter,
	})
	sweep := sweeper.New(store.Presence, statusCache, sweeper.Options{
		OnlineTimeout: cfg.OnlineTimeout,
		BatchSize:     cfg.SweepBatchSize,
		BatchPause:    cfg.SweepBatchPause,
		Emitter:       emitter,
	})
	sweepCtx, stopSweeps := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweep.Start(sweepCtx, cfg.SweepInterval)
	}()

	deps := server.Deps{
		Tracker:             tracker,
		Visibility:          visibility,
		HealthPolicyChecker: visibility,
	}
	if store.DB != nil {
		deps.HealthPinger = store.DB
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AuthUnary(tokens, server.PublicMethods()),
			interceptors.TelemetryUnary(emitter, server.TelemetrySkipMethods()),
		),
	)
	server.RegisterServices(s, deps)

	go func() {
		log.Printf("gRPC server listening on %s (store %s)", cfg.GRPCAddr, cfg.StoreDriver)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	s.GracefulStop()
	stopSweeps()
	<-sweepDone
	log.Println("gRPC server stopped")

	finalCtx, finalCancel := context.WithTimeout(context.Background(), finalSweepTimeout)
	if res, err := sweep.Run(finalCtx); err != nil {
		log.Printf("server: final sweep: %v", err)
	} else {
		log.Printf("server: final sweep removed %d idle users", len(res.Deleted))
	}
	finalCancel()

	// Let async telemetry emits finish before the emitters are closed.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := closeEmitter(); err != nil {
		log.Printf("telemetry: close producer: %v", err)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel: shutdown: %v", err)
	}
}
