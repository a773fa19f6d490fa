package transportgrpc

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/arklim/pos-auth-gateway/internal/transport/grpc/interceptors"
)

// HealthCheckMethod is reachable without a service credential.
const HealthCheckMethod = "/grpc.health.v1.Health/Check"

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Tokens        TokenAuthenticator
	ServiceTokens grpcinterceptors.ServiceTokenParser
	Metrics       *grpcinterceptors.GRPCMetrics
	Tracing       *grpcinterceptors.TracingInterceptor
	Logger        *zap.Logger
	PublicMethods []string
}

// NewServer wires the token service with tracing, metrics and service authentication.
// The returned health server lets the caller flip serving status during shutdown.
func NewServer(deps ServerDependencies) (*grpc.Server, *health.Server, error) {
	if deps.Tokens == nil {
		return nil, nil, fmt.Errorf("token authenticator is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	public := append([]string{HealthCheckMethod}, deps.PublicMethods...)
	authInterceptor := grpcinterceptors.NewAuthInterceptor(deps.ServiceTokens, grpcinterceptors.AuthOptions{
		Logger:       logger,
		AllowMethods: public,
	})

	server := grpc.NewServer(
		deps.Tracing.ServerOption(),
		grpc.ChainUnaryInterceptor(
			deps.Metrics.UnaryServerInterceptor(),
			authInterceptor.UnaryServerInterceptor(),
		),
	)

	RegisterTokenServiceServer(server, NewTokenServer(deps.Tokens, logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(TokenServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)

	return server, healthServer, nil
}
