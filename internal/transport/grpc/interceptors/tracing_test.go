package interceptors

import (
	"testing"

	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
)

func TestTracingInterceptorBuildsStatsHandler(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	tracing := NewTracingInterceptor(TracingOptions{
		TracerProvider: tp,
		Propagators:    propagation.TraceContext{},
	})

	if tracing.Handler() == nil {
		t.Fatalf("expected a stats handler")
	}
	if _, ok := tracing.ServerOption().(grpc.EmptyServerOption); ok {
		t.Fatalf("expected a stats handler server option")
	}
}

func TestTracingInterceptorNilIsNoop(t *testing.T) {
	var tracing *TracingInterceptor

	if tracing.Handler() != nil {
		t.Fatalf("expected nil handler")
	}
	if _, ok := tracing.ServerOption().(grpc.EmptyServerOption); !ok {
		t.Fatalf("expected an empty server option")
	}
}
