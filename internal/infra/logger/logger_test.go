package logger

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMasking(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"email", MaskEmail, "john.doe@example.com", "joh***@example.com"},
		{"short email", MaskEmail, "jo@example.com", "jo***@example.com"},
		{"ipv4", MaskIP, "192.168.1.100", "192.168.*.*"},
		{"ipv6", MaskIP, "2001:0db8:85a3:0000:0000:8a2e:0370:7334", "2001:0db8:85a3:0000:*:*:*:*"},
		{"string", MaskString, "secret123", "se***23"},
		{"short string", MaskString, "abc", "***"},
		{"identifier email", MaskIdentifier, "cashier@store.example", "cas***@store.example"},
		{"identifier handle", MaskIdentifier, "cashier01", "ca***01"},
		{"empty", MaskIdentifier, "", ""},
	}

	for _, tc := range cases {
		if got := tc.fn(tc.in); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestWithContextAddsRequestAndTraceIDs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := WithRequestID(context.Background(), "req-42")
	ctx = trace.ContextWithSpanContext(ctx, sc)

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-42" {
		t.Fatalf("expected request_id field, got %v", fields["request_id"])
	}
	if fields["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected trace_id field, got %v", fields["trace_id"])
	}
}

func TestWithContextWithoutFieldsReturnsBase(t *testing.T) {
	base := zap.NewNop()
	if got := WithContext(context.Background(), base); got != base {
		t.Fatal("expected base logger when context has no request fields")
	}
}
