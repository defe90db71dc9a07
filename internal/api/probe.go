package api

import (
	"context"
	"fmt"
	"net"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/guardianstack/guardian-engine/internal/store"
)

// ProbeServer exposes the standard gRPC health service so orchestrators
// (Kubernetes, Nomad) can probe liveness without parsing the REST surface.
// Serving status tracks store reachability.
type ProbeServer struct {
	grpcServer *grpc.Server
	healthSrv  *health.Server
	listener   net.Listener
	store      store.Store
}

// NewProbeServer binds the probe listener on addr.
func NewProbeServer(addr string, st store.Store, opts ...grpc.ServerOption) (*ProbeServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpc_prometheus.Register(grpcServer)

	// Reflection helps grpcurl-based debugging in development environments.
	reflection.Register(grpcServer)

	return &ProbeServer{
		grpcServer: grpcServer,
		healthSrv:  healthSrv,
		listener:   lis,
		store:      st,
	}, nil
}

// Start serves probe requests until Shutdown is invoked.
func (s *ProbeServer) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("probe server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// RefreshServingStatus pings the store and updates the reported status.
func (s *ProbeServer) RefreshServingStatus(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.healthSrv.SetServingStatus("", status)
}

// Shutdown attempts a graceful stop, falling back to a hard stop when ctx
// expires.
func (s *ProbeServer) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.healthSrv.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address (useful for tests).
func (s *ProbeServer) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
