package server

import (
	"fmt"
	"log/slog"
	"net"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HubService is the service name reported by grpc.health.v1.Health/Check
// alongside the empty overall name.
const HubService = "fleethub.Hub"

// HealthServer exposes the standard gRPC health protocol.
// Serving status is driven from outside by the health worker.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	// NOT_SERVING until the broadcaster completes its first tick.
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HubService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{log: log, server: s, health: hs}
}

// SetServingStatus updates both the overall and the hub service status.
func (h *HealthServer) SetServingStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HubService, status)
}

// Serve blocks until the listener fails or Stop is called.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := h.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop flips every service to NOT_SERVING then drains in-flight calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
