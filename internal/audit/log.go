// Package audit emits structured audit events for security-relevant
// operations: logins, token rotation, revocation, password recovery and
// tenant registration.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"tenauth.dev/internal/auth"
	"tenauth.dev/internal/obs"
)

// LogEvent writes an audit entry enriched with the request id and the acting
// user taken from the context. Events are best-effort; failures never block
// the operation being audited.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	attrs := make([]zap.Field, 0, len(fields)+4)
	attrs = append(attrs, zap.String("type", "audit"), zap.String("event", event))
	if rid := obs.RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, zap.String("request_id", rid))
	}
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		attrs = append(attrs, zap.String("actor_id", claims.UserID()))
		if claims.TenantID != "" {
			attrs = append(attrs, zap.String("actor_tenant_id", claims.TenantID))
		}
	}
	for k, v := range fields {
		attrs = append(attrs, zap.Any(k, v))
	}

	obs.Logger().Info(event, attrs...)
	return nil
}
