package logging

import (
	"context"
	"testing"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}

	ctx = WithUser(ctx, "alice")
	if got := GetUser(ctx); got != "alice" {
		t.Errorf("GetUser() = %q, want %q", got, "alice")
	}

	ctx = WithRoute(ctx, "/rpc")
	if got := GetRoute(ctx); got != "/rpc" {
		t.Errorf("GetRoute() = %q, want %q", got, "/rpc")
	}

	ctx = WithTraceID(ctx, "4bf92f3577b34da6a3ce929d0e0e4736")
	if got := GetTraceID(ctx); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("GetTraceID() = %q", got)
	}
}

func TestContextKeys_Missing(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetUser(ctx) != "" || GetRoute(ctx) != "" || GetTraceID(ctx) != "" {
		t.Error("expected empty values from a bare context")
	}
}

func TestExtractContextFields(t *testing.T) {
	if fields := extractContextFields(context.Background()); len(fields) != 0 {
		t.Errorf("expected no fields, got %v", fields)
	}

	ctx := WithUser(WithRequestID(context.Background(), "r1"), "bob")
	fields := extractContextFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Key != "request_id" || fields[1].Key != "user" {
		t.Errorf("unexpected field order: %v", fields)
	}
}
