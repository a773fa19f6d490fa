package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/arklim/pos-auth-gateway/internal/infra/logger"
)

func TestEnrichContextPrefersTraceparent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	router := gin.New()
	router.Use(EnrichContext())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestContext(c).TraceID)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set(TraceIDHeader, "ignored")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := rr.Body.String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected trace id %q", got)
	}
	if got := rr.Header().Get(TraceIDHeader); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected trace header %q", got)
	}
}

func TestEnrichContextFallsBackToHeaderThenUUID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(EnrichContext())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "trace-from-terminal")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Body.String(); got != "trace-from-terminal" {
		t.Fatalf("expected header trace id, got %q", got)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rr.Body.String()) != 36 {
		t.Fatalf("expected generated uuid, got %q", rr.Body.String())
	}
}

func TestRequestIDPropagatesToContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, logger.RequestIDFromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Body.String() != "req-42" {
		t.Fatalf("expected request id in context, got %q", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") != "req-42" {
		t.Fatalf("expected request id echoed in header")
	}
}
