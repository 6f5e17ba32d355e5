package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"parishdesk.org/internal/obs"
)

// HealthServer exposes readiness over the standard gRPC health protocol so
// orchestrators can probe the service without speaking HTTP.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer

	readiness readinessChecker
}

// NewGRPCServer builds a gRPC server with the health service registered.
func NewGRPCServer(r readinessChecker) *grpc.Server {
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, &HealthServer{readiness: r})
	return srv
}

// Check evaluates readiness once.
func (s *HealthServer) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{Status: s.status(ctx)}, nil
}

// Watch streams the readiness status, re-evaluated every five seconds, until
// the client goes away.
func (s *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, srv grpc_health_v1.Health_WatchServer) error {
	ctx := srv.Context()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	last := grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
	for {
		current := s.status(ctx)
		if current != last {
			if err := srv.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
			last = current
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *HealthServer) status(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s.readiness == nil {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(true)
	return grpc_health_v1.HealthCheckResponse_SERVING
}
