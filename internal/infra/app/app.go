package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/infra/audit"
	"github.com/arklim/pos-auth-gateway/internal/infra/config"
	"github.com/arklim/pos-auth-gateway/internal/infra/database"
	kafkainfra "github.com/arklim/pos-auth-gateway/internal/infra/kafka"
	"github.com/arklim/pos-auth-gateway/internal/infra/logger"
	redisinfra "github.com/arklim/pos-auth-gateway/internal/infra/redis"
	"github.com/arklim/pos-auth-gateway/internal/infra/security"
	"github.com/arklim/pos-auth-gateway/internal/infra/telemetry"
	"github.com/arklim/pos-auth-gateway/internal/infra/useragent"
	postgresrepo "github.com/arklim/pos-auth-gateway/internal/repository/postgres"
	redisrepo "github.com/arklim/pos-auth-gateway/internal/repository/redis"
	"github.com/arklim/pos-auth-gateway/internal/repository/sqlite"
	transportgrpc "github.com/arklim/pos-auth-gateway/internal/transport/grpc"
	grpcinterceptors "github.com/arklim/pos-auth-gateway/internal/transport/grpc/interceptors"
	"github.com/arklim/pos-auth-gateway/internal/transport/http/middleware"
	"github.com/arklim/pos-auth-gateway/internal/transport/http/routes"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

// Version is stamped into trace resources.
var Version = "dev"

const (
	sweepInterval   = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	grpcServer *grpc.Server
	grpcHealth *health.Server
	grpcAddr   string
	issuer     *usecase.TokenIssuer
	dispatcher *audit.Dispatcher
	closers    []func(ctx context.Context) error
}

type storage struct {
	accounts port.AccountRepository
	tokens   port.TokenRepository
	audit    port.AuditEventStore
	ping     func(ctx context.Context) error
	close    func(ctx context.Context) error
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{
		cfg:      cfg,
		logger:   log,
		grpcAddr: fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
	}
	ok := false
	defer func() {
		if !ok {
			a.closeAll(context.Background())
		}
	}()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, Version, log)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.addCloser(shutdownTracer)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	authMetrics, err := telemetry.NewAuthMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}
	grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init grpc metrics: %w", err)
	}

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.addCloser(store.close)

	var (
		redisClient    *redisinfra.Client
		rateLimitStore port.RateLimitStore
		cacheChecker   routes.CacheChecker
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.addCloser(func(context.Context) error { return redisClient.Close() })
		cacheChecker = redisClient

		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		rateLimitStore = redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: cfg.Redis.RateLimitPrefix,
			TTL:       window * 2,
		})
	}

	tokens := store.tokens
	if cfg.Storage.TokenStore == config.TokenStoreRedis {
		tokens = redisrepo.NewTokenStore(redisClient.Client(), cfg.Redis.TokenPrefix, cfg.Redis.TokenRetention)
		log.Info("session tokens stored in redis", zap.String("prefix", cfg.Redis.TokenPrefix))
	}

	var publisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			publisher = kafkainfra.NewStubPublisher(log)
		} else {
			producer.OnError(func(string) {
				authMetrics.ObserveAuditDeliveryFailure(audit.TargetKafka)
			})
			a.addCloser(func(context.Context) error { return producer.Close() })
			publisher = kafkainfra.NewEventPublisher(producer, cfg.App, cfg.Kafka, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		publisher = kafkainfra.NewStubPublisher(log)
	}

	var auditStore port.AuditEventStore
	if cfg.Audit.Persist {
		auditStore = store.audit
	}
	a.dispatcher = audit.NewDispatcher(auditStore, publisher, cfg.Audit.BufferSize, authMetrics, log)

	hasher, err := security.NewPasswordHasher(port.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}
	passwordPolicy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:           cfg.Password.MinLength,
		MinCharacterClasses: cfg.Password.MinCharacterClasses,
		MinStrengthScore:    cfg.Password.MinStrengthScore,
	})

	verifier := usecase.NewCredentialVerifier(store.accounts, hasher, log)
	a.issuer = usecase.NewTokenIssuer(tokens, store.accounts, cfg.Auth.TokenTTL, log)
	lockout := usecase.NewLockoutPolicy(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration)

	gateway := usecase.NewAuthGateway(store.accounts, verifier, lockout, a.issuer, hasher, a.dispatcher, usecase.AuthGatewayConfig{
		TokenTTL:                       cfg.Auth.TokenTTL,
		MaxCASRetries:                  cfg.Auth.CASMaxRetries,
		RevokeSessionsOnPasswordChange: cfg.Auth.RevokeSessionsOnPasswordChange,
		AuditRefresh:                   cfg.Auth.AuditRefresh,
	}, log).
		WithPasswordPolicy(passwordPolicy).
		WithEventPublisher(publisher).
		WithObserver(authMetrics)
	accountAdmin := usecase.NewAccountAdminService(store.accounts, a.issuer, publisher, log)

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)
	if cfg.RateLimit.LocalRPS > 0 {
		burst := max(cfg.RateLimit.LoginMaxAttempts, cfg.RateLimit.RegisterMaxAttempts, 1)
		rateLimiter = rateLimiter.WithLocalFallback(middleware.NewLocalLimiter(cfg.RateLimit.LocalRPS, burst))
	}

	var serviceTokens grpcinterceptors.ServiceTokenParser
	if cfg.ServiceAuth.Secret != "" {
		serviceTokens = security.NewServiceTokenManager(security.ServiceTokenConfig{
			Secret:   cfg.ServiceAuth.Secret,
			Issuer:   cfg.ServiceAuth.Issuer,
			Audience: cfg.ServiceAuth.Audience,
		})
	} else {
		log.Warn("service auth secret not configured, gRPC token service accepts unauthenticated callers")
	}

	a.grpcServer, a.grpcHealth, err = transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Tokens:        gateway,
		ServiceTokens: serviceTokens,
		Metrics:       grpcMetrics,
		Tracing:       grpcinterceptors.NewTracingInterceptor(grpcinterceptors.TracingOptions{}),
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("init grpc server: %w", err)
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Gatherer:    registry,
		Classifier:  useragent.NewClassifier(),
		Store:       pingFunc(store.ping),
		Cache:       cacheChecker,
		Services: routes.ServiceSet{
			Gateway:  gateway,
			Accounts: accountAdmin,
		},
	})

	ok = true
	return a, nil
}

func openStorage(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverSQLite:
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info("using sqlite account store", zap.String("path", cfg.Storage.SQLitePath))
		return &storage{
			accounts: db.Accounts(),
			tokens:   db.Tokens(),
			audit:    db.Audit(),
			ping:     db.Accounts().Ping,
			close:    func(context.Context) error { return db.Close() },
		}, nil
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		if err := postgresrepo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		repos := postgresrepo.NewRepositories(pool)
		return &storage{
			accounts: repos.Accounts,
			tokens:   repos.Tokens,
			audit:    repos.Audit,
			ping:     repos.Accounts.Ping,
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func (a *Application) addCloser(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// closeAll releases resources in reverse order of acquisition.
func (a *Application) closeAll(ctx context.Context) {
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil && !errors.Is(err, audit.ErrDispatcherClosed) {
			a.logger.Warn("audit dispatcher did not drain", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	grpcErrCh := make(chan error, 1)
	if a.grpcServer != nil && a.grpcAddr != "" {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			a.closeAll(context.Background())
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweepTokens(sweepCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting POS auth gateway",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrCh:
	case runErr = <-grpcErrCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdown(shutdownCtx, srv); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *Application) shutdown(ctx context.Context, srv *http.Server) error {
	a.logger.Info("shutting down")
	if a.grpcHealth != nil {
		a.grpcHealth.SetServingStatus(transportgrpc.TokenServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		a.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	var shutdownErr error
	if err := srv.Shutdown(ctx); err != nil {
		shutdownErr = fmt.Errorf("shutdown server: %w", err)
	}

	if a.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			a.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			a.grpcServer.Stop()
		}
	}

	a.closeAll(ctx)
	return shutdownErr
}

func (a *Application) sweepTokens(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.issuer.Sweep(ctx)
			if err != nil {
				a.logger.Warn("sweep expired tokens", zap.Error(err))
				continue
			}
			if removed > 0 {
				a.logger.Debug("swept expired tokens", zap.Int64("removed", removed))
			}
		}
	}
}
