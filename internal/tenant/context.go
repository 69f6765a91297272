package tenant

import "context"

type tenantContextKey struct{}

// ContextWithTenant attaches the resolved tenant to the request context.
// Downstream handlers read it through FromContext instead of re-resolving.
func ContextWithTenant(ctx context.Context, t *Tenant) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// FromContext returns the tenant resolved for this request, if any.
func FromContext(ctx context.Context) (*Tenant, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(tenantContextKey{}).(*Tenant)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
