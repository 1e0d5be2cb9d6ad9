package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/dummyrange/internal/platform/timeouts"
)

// HealthServiceName is the gRPC health entry reported for the range.
const HealthServiceName = "dummyrange.range"

// ServerConfig defines the listening surfaces.
type ServerConfig struct {
	HTTPAddr string
	// HealthPort serves the standard gRPC health service; zero disables it.
	HealthPort        int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the HTTP API, websocket feed and gRPC health endpoint.
type Server struct {
	httpAddr        string
	healthPort      int
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// NewServer builds a server for svc.
func NewServer(cfg ServerConfig, svc *Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = timeouts.Shutdown
	}
	return &Server{
		httpAddr:        httpAddr,
		healthPort:      cfg.HealthPort,
		shutdownTimeout: cfg.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           NewHandler(svc),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}, nil
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("dummyrange server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	stopHealth, err := startHealthServer(s.healthPort)
	if err != nil {
		return err
	}
	defer stopHealth()

	serveErr := make(chan error, 1)
	log.Printf("dummyrange server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// startHealthServer serves grpc.health.v1 on port and returns its stop func.
func startHealthServer(port int) (func(), error) {
	if port <= 0 {
		return func() {}, nil
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on health port %d: %w", port, err)
	}
	return serveHealth(listener), nil
}

func serveHealth(listener net.Listener) func() {
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	log.Printf("dummyrange health listening at %v", listener.Addr())

	return func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		if err := <-serveErr; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("dummyrange health server: %v", err)
		}
	}
}
