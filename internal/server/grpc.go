package server

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service the health server reports on, next to the
// overall "" status.
const ServiceName = "nanotags.InsightsAgent"

// GRPCServer exposes grpc.health.v1.Health for the agent.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	port   int
}

func NewGRPCServer(port int) *GRPCServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &GRPCServer{
		srv:    srv,
		health: hs,
		port:   port,
	}
}

// Serve listens on the configured port until Stop.
func (s *GRPCServer) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen for gRPC: %w", err)
	}
	return s.ServeListener(lis)
}

// ServeListener serves on lis until Stop.
func (s *GRPCServer) ServeListener(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
	return s.srv.Serve(lis)
}

// Stop marks the agent as not serving and drains in-flight calls until ctx
// is done.
func (s *GRPCServer) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.srv.Stop()
	}
}
