package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"microstructure-cache/src/cache"
	"microstructure-cache/src/config"
	"microstructure-cache/src/fetcher"
	"microstructure-cache/src/generator"
	"microstructure-cache/src/grpc_control"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/server"
)

// -----------------------------------------------------------------------------

func main() {

	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	writeConfig := flag.String("write-config", "", "write the effective config (defaults and env applied) to this path and exit")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *writeConfig != "" {
		if err := conf.Save(*writeConfig); err != nil {
			fmt.Printf("Error writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Effective config written to %s\n", *writeConfig)
		return
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf.MConfig, conf.Name)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Durable layer and optional Redis mirror
	store, err := setupStore(ctx, conf.MConfig, appLogger)
	if err != nil {
		appLogger.Critical("Durable store unavailable: %v", err)
	}
	mirror := setupMirror(ctx, conf.MConfig, appLogger)

	// 5. Provider and fetcher
	networkManager := setupNetwork(conf.MConfig)
	provider, err := setupProvider(conf.MConfig, appLogger, networkManager)
	if err != nil {
		store.Close()
		appLogger.Critical("Provider setup failed: %v", err)
	}
	tickFetcher := fetcher.NewTickFetcher(conf.MConfig, provider, logger.NewLogger(conf.MConfig, "TickFetcher"))

	// 6. Cache and generator
	metricsCache := cache.NewMetricsCache(conf.MConfig, store, mirror, logger.NewLogger(conf.MConfig, "MetricsCache"))
	metricsCache.StartCleanup(ctx)

	gen := generator.NewSnapshotGenerator(conf, tickFetcher, metricsCache, logger.NewLogger(conf.MConfig, "SnapshotGenerator"))

	// 7. Read API, push and health
	srv := server.NewAPIServer(conf.MConfig, gen, logger.NewLogger(conf.MConfig, "APIServer"))
	srv.Status = func() string { return string(gen.State()) }
	srv.MarketsOpen = gen.MarketsOpen
	gen.SetExchanger(srv)

	healthService := grpc_control.NewHealthService(conf.MConfig, logger.NewLogger(conf.MConfig, "HealthService"))
	gen.OnStateChange(healthService.OnGeneratorState)

	startServers(srv, healthService, appLogger)

	// 8. Start the generator (first cycle runs before this returns)
	appLogger.Info("Using provider %s for %d symbols", provider.Name(), len(gen.Symbols()))
	if err := gen.Start(ctx); err != nil {
		appLogger.Error("Failed to start snapshot generator: %v", err)
	}

	// 9. Wait for a shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info("Received %s, shutting down...", sig)

	// 10. Ordered shutdown
	if err := gen.Stop(); err != nil {
		appLogger.Warning("%v", err)
	}
	if err := srv.Stop(); err != nil {
		appLogger.Warning("API server shutdown: %v", err)
	}
	healthService.Stop()

	cancel()
	metricsCache.Close()
	if mirror != nil {
		if err := mirror.Close(); err != nil {
			appLogger.Warning("Redis mirror close: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		appLogger.Warning("Durable store close: %v", err)
	}

	appLogger.Info("Shutdown complete.")
}
