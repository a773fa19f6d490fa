package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/infra/config"
	"github.com/arklim/pos-auth-gateway/internal/transport/http/handlers"
	"github.com/arklim/pos-auth-gateway/internal/transport/http/middleware"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

// AdminRole is the account role allowed on /api/v1/admin.
const AdminRole = "admin"

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Gateway  *usecase.AuthGateway
	Accounts *usecase.AccountAdminService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Classifier  port.DeviceClassifier
	Services    ServiceSet
	Store       StoreChecker
	Cache       CacheChecker
}

// StoreChecker exposes readiness behaviour for the account store.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())
	if origins := deps.Config.App.AllowedOrigins; len(origins) > 0 {
		r.Use(middleware.CORS(origins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Store != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("store", deps.Store.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	handlers.RegisterSwagger(r)

	if deps.Services.Gateway == nil {
		return r
	}

	api := r.Group("/api/v1")
	{
		requireAuth := middleware.RequireAuth(deps.Services.Gateway)

		authHandler := handlers.NewAuthHandler(deps.Services.Gateway, deps.Logger, handlers.WithDeviceClassifier(deps.Classifier))
		authHandler.RegisterRoutes(api.Group("/auth"), requireAuth,
			buildRateLimit(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts),
			buildRateLimit(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts),
		)

		if deps.Services.Accounts != nil {
			adminGroup := api.Group("/admin", requireAuth, middleware.RequireRole(AdminRole))
			handlers.NewAdminHandler(deps.Services.Accounts).RegisterRoutes(adminGroup)
		}
	}

	return r
}

func buildRateLimit(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
