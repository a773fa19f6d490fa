package interceptors

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/arklim/pos-auth-gateway/internal/infra/security"
)

const (
	authorizationKey = "authorization"
	bearerPrefix     = "bearer "
)

// ServiceTokenParser verifies service-to-service credentials.
type ServiceTokenParser interface {
	Parse(raw string) (*security.ServiceClaims, error)
}

// AuthOptions fine-tunes interceptor behaviour.
type AuthOptions struct {
	AllowMethods []string
	Logger       *zap.Logger
}

// AuthInterceptor requires a signed service credential on every non-public method.
type AuthInterceptor struct {
	parser ServiceTokenParser
	logger *zap.Logger
	allow  map[string]struct{}
}

// NewAuthInterceptor constructs a new AuthInterceptor instance. A nil parser disables enforcement.
func NewAuthInterceptor(parser ServiceTokenParser, opts AuthOptions) *AuthInterceptor {
	allow := make(map[string]struct{}, len(opts.AllowMethods))
	for _, method := range opts.AllowMethods {
		if method = strings.TrimSpace(method); method != "" {
			allow[method] = struct{}{}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if isNilParser(parser) {
		parser = nil
	}

	return &AuthInterceptor{parser: parser, logger: logger, allow: allow}
}

func isNilParser(parser ServiceTokenParser) bool {
	if parser == nil {
		return true
	}
	manager, ok := parser.(*security.ServiceTokenManager)
	return ok && manager == nil
}

// UnaryServerInterceptor returns a gRPC unary interceptor that enforces service authentication.
func (ai *AuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if ai == nil || ai.parser == nil {
			return handler(ctx, req)
		}

		if _, ok := ai.allow[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		token, err := tokenFromMetadata(ctx)
		if err != nil {
			ai.logger.Warn("gRPC authentication failed", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		claims, err := ai.parser.Parse(token)
		if err != nil {
			ai.logger.Warn("gRPC service token rejected", zap.String("method", info.FullMethod), zap.Error(err))
			if errors.Is(err, security.ErrServiceTokenExpired) {
				return nil, status.Error(codes.Unauthenticated, "service token expired")
			}
			return nil, status.Error(codes.Unauthenticated, "invalid service token")
		}

		return handler(WithServiceClaims(ctx, claims), req)
	}
}

type serviceClaimsKey struct{}

// WithServiceClaims returns a derived context carrying the caller's service claims.
func WithServiceClaims(ctx context.Context, claims *security.ServiceClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceClaimsKey{}, claims)
}

// ServiceClaimsFromContext extracts the calling service's claims when available.
func ServiceClaimsFromContext(ctx context.Context) (*security.ServiceClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(serviceClaimsKey{}).(*security.ServiceClaims)
	return claims, ok && claims != nil
}

func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("missing metadata")
	}

	values := md.Get(authorizationKey)
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", errors.New("authorization token required")
	}

	value := strings.TrimSpace(values[0])
	if len(value) < len(bearerPrefix) || !strings.HasPrefix(strings.ToLower(value), bearerPrefix) {
		return "", errors.New("invalid authorization header")
	}

	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("authorization token required")
	}

	return token, nil
}
