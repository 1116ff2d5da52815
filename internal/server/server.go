// ABOUTME: Server orchestrator that wires the store, identity provider and provisioning service
// ABOUTME: Runs the gRPC and HTTP servers and shuts them down together

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/tsnet"

	"github.com/hireteksolutions/CAP360-MAIN/internal/auth"
	"github.com/hireteksolutions/CAP360-MAIN/internal/config"
	"github.com/hireteksolutions/CAP360-MAIN/internal/grpcapi"
	"github.com/hireteksolutions/CAP360-MAIN/internal/httpapi"
	"github.com/hireteksolutions/CAP360-MAIN/internal/provision"
	"github.com/hireteksolutions/CAP360-MAIN/internal/store"
	"github.com/hireteksolutions/CAP360-MAIN/internal/telemetry"
)

// shutdownTimeout bounds graceful shutdown after Run returns.
const shutdownTimeout = 5 * time.Second

// Server orchestrates the cap360-server components.
type Server struct {
	config      *config.Config
	store       store.Store
	provider    *auth.Provider
	service     *provision.Service
	grpcServer  *grpc.Server
	health      *health.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// telemetryShutdown flushes spans; nil when tracing was not set up here
	telemetryShutdown telemetry.ShutdownFunc
}

// New opens the configured store and telemetry and builds a Server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	s, err := OpenStore(ctx, cfg)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, err
	}

	srv, err := NewWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		_ = shutdownTelemetry(ctx)
		return nil, err
	}
	srv.telemetryShutdown = shutdownTelemetry
	return srv, nil
}

// OpenStore creates the store selected by cfg.Database.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	s, err := store.Open(ctx, store.Options{
		Driver:        cfg.Database.Driver,
		Path:          cfg.Database.Path,
		DSN:           cfg.Database.DSN,
		MongoDatabase: cfg.Database.MongoDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// NewWithStore builds a Server over an already opened store. The Server owns
// s and closes it on shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	provider := auth.NewProvider(s, verifier, cfg.Auth.TokenTTL)

	service := provision.NewService(provider, s, provision.Options{
		RollbackOnFailure: cfg.Provisioning.RollbackOnFailure,
		RoleGrantPolicy:   provision.GrantPolicy(cfg.Provisioning.RoleGrantPolicy),
		Logger:            logger,
	})

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	grpcapi.Register(grpcServer, grpcapi.NewServer(service, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	handler := httpapi.NewHandler(service, provider, s, httpapi.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
	})

	readHeaderTimeout := cfg.Server.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 10 * time.Second
	}

	logger.Info("provisioning configured",
		"database", cfg.Database.Driver,
		"rollback_on_failure", cfg.Provisioning.RollbackOnFailure,
		"role_grant_policy", cfg.Provisioning.RoleGrantPolicy,
	)

	return &Server{
		config:     cfg,
		store:      s,
		provider:   provider,
		service:    service,
		grpcServer: grpcServer,
		health:     healthServer,
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger.With("component", "server"),
	}, nil
}

// Service returns the provisioning service.
func (s *Server) Service() *provision.Service {
	return s.service
}

// Provider returns the identity provider.
func (s *Server) Provider() *auth.Provider {
	return s.provider
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (s *Server) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	s.logger.Info("starting server",
		"grpc_addr", s.config.Server.GRPCAddr,
		"http_addr", s.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (s *Server) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if s.config.Tailscale.Enabled {
		s.warnIgnoredAddresses()
		return s.setupTailscaleListeners(ctx)
	}
	return s.setupTCPListeners()
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (s *Server) warnIgnoredAddresses() {
	if s.config.Server.GRPCAddr != "" || s.config.Server.HTTPAddr != "" {
		s.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", s.config.Server.GRPCAddr,
			"http_addr", s.config.Server.HTTPAddr,
		)
	}
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (s *Server) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := s.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		s.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the servers and blocks until the context is canceled or a
// server fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	grpcListener, httpListener, err := s.setupListeners(ctx)
	if err != nil {
		_ = s.gracefulShutdown()
		return err
	}

	errCh := s.startServers(grpcListener, httpListener)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The Run context is already canceled at this point.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops both servers and releases the store, tailscale node and
// telemetry provider.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.shutdownGRPCServer(ctx)

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	if s.telemetryShutdown != nil {
		errs = appendCloseError(errs, "telemetry shutdown", s.telemetryShutdown(ctx))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
