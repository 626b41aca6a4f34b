package main

import (
	"microstructure-cache/src/grpc_control"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/server"
)

// -----------------------------------------------------------------------------

// startServers starts the API server and the gRPC health server
func startServers(srv *server.APIServer, healthService *grpc_control.HealthService, appLogger *logger.Logger) {

	// 1. API + WebSocket server
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("API server failed: %v", err)
		}
	}()

	// 2. gRPC health server
	go func() {
		if err := healthService.Start(); err != nil {
			appLogger.Error("gRPC health server failed: %v", err)
		}
	}()
}
