package obs

import "context"

type requestIDKey struct{}

// ContextWithRequestID attaches the request correlation id. The HTTP layer
// sets it once per request; the audit log and error payloads read it back.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation id or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
