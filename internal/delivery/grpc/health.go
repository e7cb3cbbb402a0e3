package grpc

import (
	"context"

	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name orchestrators probe for.
const ServiceName = "lineup.LineupService"

type HealthService struct {
	srv *health.Server
	l   logger.Logger
}

func NewHealthService(l logger.Logger) *HealthService {
	return &HealthService{
		srv: health.NewServer(),
		l:   l,
	}
}

// Register attaches the health service to s and reports SERVING.
func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Drain reports NOT_SERVING so load balancers stop routing new viewers here
// while the lineup shuts down.
func (h *HealthService) Drain(ctx context.Context) {
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	h.l.Info(ctx, "Health status set to NOT_SERVING.")
}

// Shutdown ends every open Watch stream.
func (h *HealthService) Shutdown() {
	h.srv.Shutdown()
}

// NewServer returns a gRPC server that logs failed calls.
func NewServer(l logger.Logger) *grpc.Server {
	return grpc.NewServer(grpc.UnaryInterceptor(func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			l.Warnf(ctx, "delivery.grpc.%s: %v", info.FullMethod, err)
		}
		return resp, err
	}))
}
