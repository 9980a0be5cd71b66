package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// BackendService is the health service name that tracks backend reachability.
const BackendService = "log-console.backend"

// Pinger checks that the log backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer exposes the standard gRPC health service for orchestrator probes.
type HealthServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
	health     *health.Server
	pinger     Pinger
	interval   time.Duration
	logger     *slog.Logger
}

// NewHealthServer binds address and registers health, reflection and metrics.
func NewHealthServer(address string, pinger Pinger, interval time.Duration, logger *slog.Logger, opts ...grpc.ServerOption) (*HealthServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
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
	healthSrv.SetServingStatus(BackendService, healthpb.HealthCheckResponse_UNKNOWN)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	grpc_prometheus.Register(grpcServer)

	return &HealthServer{
		grpcServer: grpcServer,
		listener:   lis,
		health:     healthSrv,
		pinger:     pinger,
		interval:   interval,
		logger:     logger,
	}, nil
}

// Start serves gRPC until Shutdown.
func (s *HealthServer) Start() error {
	return s.grpcServer.Serve(s.listener)
}

// Probe pings the backend once and records the result on BackendService.
func (s *HealthServer) Probe(ctx context.Context) bool {
	if s.pinger == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.health.SetServingStatus(BackendService, healthpb.HealthCheckResponse_NOT_SERVING)
		s.logger.Warn("backend unreachable", slog.Any("error", err))
		return false
	}
	s.health.SetServingStatus(BackendService, healthpb.HealthCheckResponse_SERVING)
	return true
}

// Watch probes the backend immediately and then every interval until ctx ends.
func (s *HealthServer) Watch(ctx context.Context) {
	s.Probe(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Shutdown attempts a graceful shutdown, falling back to Stop after timeout.
func (s *HealthServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()

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
func (s *HealthServer) Address() string {
	return s.listener.Addr().String()
}
