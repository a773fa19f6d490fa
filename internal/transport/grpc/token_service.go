package transportgrpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/infra/logger"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

const (
	// TokenServiceName is the fully qualified gRPC service name.
	TokenServiceName = "posauth.v1.TokenService"
	// ValidateTokenMethod is the full method name of TokenService.ValidateToken.
	ValidateTokenMethod = "/" + TokenServiceName + "/ValidateToken"
)

// TokenAuthenticator resolves session tokens. *usecase.AuthGateway satisfies it.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, tokenValue string) (*domain.Account, *domain.SessionToken, error)
}

// TokenServiceServer is the server API for posauth.v1.TokenService.
type TokenServiceServer interface {
	ValidateToken(ctx context.Context, token *wrapperspb.StringValue) (*structpb.Struct, error)
}

// TokenServiceDesc describes posauth.v1.TokenService using protobuf well-known types.
var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ValidateToken", Handler: validateTokenHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterTokenServiceServer registers srv on s.
func RegisterTokenServiceServer(s grpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&TokenServiceDesc, srv)
}

func validateTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).ValidateToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateTokenMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenServiceServer).ValidateToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// TokenServiceClient is the client API for posauth.v1.TokenService.
type TokenServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTokenServiceClient wraps a client connection.
func NewTokenServiceClient(cc grpc.ClientConnInterface) *TokenServiceClient {
	return &TokenServiceClient{cc: cc}
}

// ValidateToken calls posauth.v1.TokenService/ValidateToken.
func (c *TokenServiceClient) ValidateToken(ctx context.Context, token string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ValidateTokenMethod, wrapperspb.String(token), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// TokenServer lets other POS services resolve a bearer token to its account.
type TokenServer struct {
	auth   TokenAuthenticator
	logger *zap.Logger
	now    func() time.Time
}

var _ TokenServiceServer = (*TokenServer)(nil)

// NewTokenServer constructs the token validation server.
func NewTokenServer(auth TokenAuthenticator, log *zap.Logger) *TokenServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenServer{auth: auth, logger: log, now: time.Now}
}

// WithClock overrides the clock used for expires_in.
func (s *TokenServer) WithClock(now func() time.Time) *TokenServer {
	if now != nil {
		s.now = now
	}
	return s
}

// ValidateToken returns {account_id, email, handle, role, expires_at, expires_in} for a live token.
func (s *TokenServer) ValidateToken(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	value := strings.TrimSpace(req.GetValue())
	if value == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}

	account, token, err := s.auth.Authenticate(ctx, value)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrTokenExpired):
			return nil, status.Error(codes.Unauthenticated, "token expired")
		case errors.Is(err, usecase.ErrTokenNotFound):
			return nil, status.Error(codes.Unauthenticated, "token not found")
		case errors.Is(err, usecase.ErrStoreUnavailable):
			logger.WithContext(ctx, s.logger).Error("token validation unavailable", zap.Error(err))
			return nil, status.Error(codes.Unavailable, "token store unavailable")
		default:
			logger.WithContext(ctx, s.logger).Error("token validation failed", zap.Error(err))
			return nil, status.Error(codes.Internal, "failed to validate token")
		}
	}

	expiresIn := token.ExpiresAt.Sub(s.now()).Seconds()
	if expiresIn < 0 {
		expiresIn = 0
	}

	resp, err := structpb.NewStruct(map[string]any{
		"account_id": account.ID,
		"email":      account.Email,
		"handle":     account.Handle,
		"role":       account.Role,
		"scope":      token.Scope,
		"expires_at": token.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"expires_in": float64(int64(expiresIn)),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode token claims")
	}
	return resp, nil
}
