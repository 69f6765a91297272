package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"tenauth.dev/internal/obs"
	"tenauth.dev/internal/tenant"
)

// withTenant resolves the acting tenant and carries it in the request
// context. A determined key that matches no tenant is rejected here, before
// any handler runs. A request with no key at all passes through unresolved;
// handlers that need a tenant answer with their own context error.
func (a *API) withTenant(next http.Handler) http.Handler {
	if a.resolver == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		tn, err := a.resolver.Resolve(r.Context(), r)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(tenant.ContextWithTenant(r.Context(), tn)))
		case errors.Is(err, tenant.ErrNoKey):
			next.ServeHTTP(w, r)
		case errors.Is(err, tenant.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "tenant not found")
		default:
			obs.Logger().Error("tenant resolution failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "tenant resolution failed")
		}
	})
}

// requireTenant returns the resolved tenant or answers 404 itself.
func requireTenant(w http.ResponseWriter, r *http.Request) (*tenant.Tenant, bool) {
	tn, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusNotFound, "tenant not found")
		return nil, false
	}
	return tn, true
}
