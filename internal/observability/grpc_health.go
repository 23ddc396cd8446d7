package observability

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes the standard grpc.health.v1 service so that
// orchestrators which only speak gRPC probes can watch the narrator.
type GRPCHealthServer struct {
	server *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewGRPCHealthServer creates a health server reporting NOT_SERVING until
// SetServing(true) is called.
func NewGRPCHealthServer(logger zerolog.Logger) *GRPCHealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealthServer{
		server: srv,
		health: hs,
		logger: logger,
	}
}

// SetServing flips the overall service status.
func (g *GRPCHealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
}

// Health returns the underlying health service implementation.
func (g *GRPCHealthServer) Health() healthpb.HealthServer {
	return g.health
}

// Serve listens on port and blocks until Stop is called.
func (g *GRPCHealthServer) Serve(port string) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC health on port %s: %w", port, err)
	}
	g.logger.Info().Str("port", port).Msg("gRPC health service listening")
	return g.server.Serve(lis)
}

// Stop marks the service NOT_SERVING and drains in-flight probes.
func (g *GRPCHealthServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
