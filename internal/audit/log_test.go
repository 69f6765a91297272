package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tenauth.dev/internal/auth"
	"tenauth.dev/internal/obs"
)

func TestLogEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := obs.SetLoggerForTests(zap.New(core))
	defer restore()

	ctx := obs.ContextWithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithClaims(ctx, &auth.Claims{TenantID: "tnt_1"})

	if err := LogEvent(ctx, "auth.login", map[string]any{"email": "a@x.com"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["type"] != "audit" || fields["event"] != "auth.login" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if fields["request_id"] != "req-123" {
		t.Fatalf("request id missing: %v", fields)
	}
	if fields["actor_tenant_id"] != "tnt_1" {
		t.Fatalf("actor tenant missing: %v", fields)
	}
	if fields["email"] != "a@x.com" {
		t.Fatalf("custom field missing: %v", fields)
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected an error for an empty event name")
	}
}
