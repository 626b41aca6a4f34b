package grpc_control

import (
	"fmt"
	"net"
	"sync"

	"microstructure-cache/src/generator"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GeneratorService is the health service name that follows the snapshot
// generator lifecycle. The empty name reports the process as a whole.
const GeneratorService = "microstructure_cache.SnapshotGenerator"

// HealthService exposes grpc.health.v1.Health driven by generator state.
type HealthService struct {
	Config *models.MConfig
	Logger *logger.Logger
	Health *health.Server

	mu         sync.Mutex
	grpcServer *grpc.Server
}

// -----------------------------------------------------------------------------

// NewHealthService starts out NOT_SERVING until the generator reports running.
func NewHealthService(cfg *models.MConfig, log *logger.Logger) *HealthService {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(GeneratorService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthService{
		Config: cfg,
		Logger: log,
		Health: hs,
	}
}

// -----------------------------------------------------------------------------

// OnGeneratorState maps a lifecycle transition to a serving status.
func (s *HealthService) OnGeneratorState(state generator.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == generator.StateRunning {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.Health.SetServingStatus("", status)
	s.Health.SetServingStatus(GeneratorService, status)
	s.Logger.Debug("Health status %s (generator %s)", status, state)
}

// -----------------------------------------------------------------------------

// Register adds the health service to an existing gRPC server.
func (s *HealthService) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, s.Health)
}

// -----------------------------------------------------------------------------

// Start listens on grpc_host:grpc_port and serves until Stop.
func (s *HealthService) Start() error {
	port := s.Config.GrpcPort
	if port == 0 {
		port = 50051
	}
	addr := fmt.Sprintf("%s:%d", s.Config.GrpcHost, port)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for gRPC on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// -----------------------------------------------------------------------------

func (s *HealthService) Serve(lis net.Listener) error {
	server := grpc.NewServer()
	s.Register(server)

	s.mu.Lock()
	s.grpcServer = server
	s.mu.Unlock()

	s.Logger.Info("Starting gRPC health server on %s", lis.Addr())
	return server.Serve(lis)
}

// -----------------------------------------------------------------------------

// Stop flips every status to NOT_SERVING and drains the server.
func (s *HealthService) Stop() {
	s.Health.Shutdown()

	s.mu.Lock()
	server := s.grpcServer
	s.grpcServer = nil
	s.mu.Unlock()

	if server != nil {
		server.GracefulStop()
	}
}
