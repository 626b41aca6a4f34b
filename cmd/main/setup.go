package main

import (
	"context"

	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"
	"microstructure-cache/src/network"
	"microstructure-cache/src/provider"
	"microstructure-cache/src/storage"
)

// -----------------------------------------------------------------------------

// setupStore opens the durable layer selected by storage.db_type
func setupStore(ctx context.Context, config *models.MConfig, appLogger *logger.Logger) (interfaces.IDurableStore, error) {
	storeLogger := logger.NewLogger(config, "DurableStore")

	store, err := storage.NewDurableStore(config, storeLogger)
	if err != nil {
		appLogger.Error("Failed to init durable store: %v", err)
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		appLogger.Error("Failed to migrate durable store: %v", err)
		return nil, err
	}
	return store, nil
}

// -----------------------------------------------------------------------------

// setupMirror connects the Redis mirror when storage.redis_addr is set.
// A Redis outage at startup only disables the mirror.
func setupMirror(ctx context.Context, config *models.MConfig, appLogger *logger.Logger) interfaces.ISnapshotMirror {
	if config.Storage.RedisAddr == "" {
		return nil
	}

	mirror, err := storage.NewRedisMirror(ctx, config, logger.NewLogger(config, "RedisMirror"))
	if err != nil {
		appLogger.Warning("Redis mirror disabled: %v", err)
		return nil
	}
	appLogger.Info("Mirroring snapshots to Redis at %s", config.Storage.RedisAddr)
	return mirror
}

// -----------------------------------------------------------------------------

// setupNetwork initializes the network manager
func setupNetwork(config *models.MConfig) interfaces.INetworkManager {
	networkLogger := logger.NewLogger(config, "NetworkManager")
	return network.NewAsyncNetworkManager(config, networkLogger)
}

// -----------------------------------------------------------------------------

// setupProvider builds the tick provider selected by provider.type
func setupProvider(config *models.MConfig, appLogger *logger.Logger, networkManager interfaces.INetworkManager) (interfaces.ITickProvider, error) {
	p, err := provider.NewTickProvider(config, networkManager)
	if err != nil {
		appLogger.Error("Failed to init tick provider: %v", err)
		return nil, err
	}
	return p, nil
}
