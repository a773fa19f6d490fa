package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	_ "github.com/arklim/pos-auth-gateway/gen/docs/swagger"
	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/infra/config"
	"github.com/arklim/pos-auth-gateway/internal/infra/security"
	"github.com/arklim/pos-auth-gateway/internal/repository/sqlite"
	"github.com/arklim/pos-auth-gateway/internal/transport/http/middleware"
	httproutes "github.com/arklim/pos-auth-gateway/internal/transport/http/routes"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

type discardSink struct{}

func (discardSink) Record(context.Context, domain.LoginAuditEvent) {}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Env: "test"},
		RateLimit: config.RateLimitSettings{
			WindowDuration:      time.Minute,
			LoginMaxAttempts:    2,
			RegisterMaxAttempts: 1,
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()

	r := httproutes.Register(httproutes.Dependencies{
		Config: testConfig(),
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get(middleware.TraceIDHeader) == "" {
		t.Fatalf("expected correlation headers on every response")
	}
}

func TestReadinessReflectsStorePing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config: testConfig(),
		Logger: zaptest.NewLogger(t),
		Store:  pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	r := httproutes.Register(httproutes.Dependencies{
		Config:   testConfig(),
		Logger:   zaptest.NewLogger(t),
		Metrics:  metrics,
		Gatherer: registry,
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "posauth_http_requests_total") {
		t.Fatalf("expected http request counter in exposition")
	}
}

func TestSwaggerServesGeneratedDocument(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config: testConfig(),
		Logger: zaptest.NewLogger(t),
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/api/v1/auth/login") {
		t.Fatalf("expected login route in swagger document")
	}
}

func TestRegisterRouteIsRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store, err := sqlite.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hasher, err := security.NewPasswordHasher(port.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	logger := zaptest.NewLogger(t)
	accounts := store.Accounts()
	issuer := usecase.NewTokenIssuer(store.Tokens(), accounts, time.Hour, logger)
	gateway := usecase.NewAuthGateway(accounts, usecase.NewCredentialVerifier(accounts, hasher, logger),
		usecase.NewLockoutPolicy(5, 30*time.Minute), issuer, hasher, discardSink{}, usecase.AuthGatewayConfig{}, logger)

	limiter := middleware.NewRateLimiter(nil, logger).WithLocalFallback(middleware.NewLocalLimiter(0.01, 1))

	r := httproutes.Register(httproutes.Dependencies{
		Config:      testConfig(),
		Logger:      logger,
		RateLimiter: limiter,
		Services:    httproutes.ServiceSet{Gateway: gateway},
		Store:       accounts,
	})

	body := `{"email":"till8@store.example","handle":"till8","password":"Correct-Horse-42!"}`
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusCreated || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected 201 then 429, got %v", codes)
	}
}
