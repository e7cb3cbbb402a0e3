package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startHealth(t *testing.T) (*HealthService, healthpb.HealthClient) {
	t.Helper()

	l := logger.InitializeTestZapLogger()
	lis := bufconn.Listen(1024 * 1024)
	srv := NewServer(l)
	hs := NewHealthService(l)
	hs.Register(srv)

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return hs, healthpb.NewHealthClient(conn)
}

func TestHealthServingUntilDrained(t *testing.T) {
	hs, cli := startHealth(t)
	ctx := context.Background()

	resp, err := cli.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	hs.Drain(ctx)

	resp, err = cli.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
