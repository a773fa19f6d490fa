package interceptors

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/stats"
)

// TracingOptions customises the tracing handler behaviour.
type TracingOptions struct {
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
	Additional     []otelgrpc.Option
}

// TracingInterceptor instruments gRPC traffic with OpenTelemetry spans.
// otelgrpc hooks in as a stats handler, so it wraps every interceptor of the server.
type TracingInterceptor struct {
	handler stats.Handler
}

// NewTracingInterceptor builds the otelgrpc server handler with the supplied options.
func NewTracingInterceptor(opts TracingOptions) *TracingInterceptor {
	options := make([]otelgrpc.Option, 0, len(opts.Additional)+2)
	if opts.TracerProvider != nil {
		options = append(options, otelgrpc.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagators != nil {
		options = append(options, otelgrpc.WithPropagators(opts.Propagators))
	}
	options = append(options, opts.Additional...)

	return &TracingInterceptor{handler: otelgrpc.NewServerHandler(options...)}
}

// Handler returns the stats handler, or nil when tracing is disabled.
func (ti *TracingInterceptor) Handler() stats.Handler {
	if ti == nil {
		return nil
	}
	return ti.handler
}

// ServerOption installs the handler on a server. A nil receiver yields a no-op option.
func (ti *TracingInterceptor) ServerOption() grpc.ServerOption {
	if ti == nil || ti.handler == nil {
		return grpc.EmptyServerOption{}
	}
	return grpc.StatsHandler(ti.handler)
}
