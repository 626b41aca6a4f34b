package grpc_control

import (
	"context"
	"net"
	"testing"
	"time"

	"microstructure-cache/src/generator"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func check(t *testing.T, s *HealthService, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthService_FollowsGeneratorState(t *testing.T) {
	s := NewHealthService(&models.MConfig{}, logger.NewNopLogger())

	testCases := []struct {
		state generator.State
		want  healthpb.HealthCheckResponse_ServingStatus
	}{
		{state: generator.StateRunning, want: healthpb.HealthCheckResponse_SERVING},
		{state: generator.StateStopping, want: healthpb.HealthCheckResponse_NOT_SERVING},
		{state: generator.StateStopped, want: healthpb.HealthCheckResponse_NOT_SERVING},
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, s, GeneratorService))

	for _, tc := range testCases {
		t.Run(string(tc.state), func(t *testing.T) {
			s.OnGeneratorState(tc.state)
			assert.Equal(t, tc.want, check(t, s, GeneratorService))
			assert.Equal(t, tc.want, check(t, s, ""))
		})
	}
}

func TestHealthService_OverGRPC(t *testing.T) {
	s := NewHealthService(&models.MConfig{}, logger.NewNopLogger())
	s.OnGeneratorState(generator.StateRunning)

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: GeneratorService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
