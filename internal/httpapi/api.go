// Package httpapi is the HTTP surface: routing, middleware chain and
// handlers over the auth service and tenant directory.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"tenauth.dev/internal/auth"
	"tenauth.dev/internal/obs"
	"tenauth.dev/internal/tenant"
)

// Pinger is the readiness dependency, usually the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks downstream readiness for /readyz.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Options wires the API's collaborators and middleware knobs.
type Options struct {
	Service  *auth.Service
	Resolver *tenant.Resolver
	Origins  *tenant.OriginCache
	Probe    ReadyProbe
	Version  string

	MaxBodyBytes  int64
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	svc      *auth.Service
	resolver *tenant.Resolver
	origins  *tenant.OriginCache
	probe    ReadyProbe
	version  string

	maxBodyBytes  int64
	rateBurst     int
	ratePerSecond int
}

func New(opts Options) *API {
	a := &API{
		mux:           http.NewServeMux(),
		svc:           opts.Service,
		resolver:      opts.Resolver,
		origins:       opts.Origins,
		probe:         opts.Probe,
		version:       opts.Version,
		maxBodyBytes:  opts.MaxBodyBytes,
		rateBurst:     opts.RateBurst,
		ratePerSecond: opts.RatePerSecond,
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSecond <= 0 {
		a.ratePerSecond = 10
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth surface
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/revoke", a.handleRevoke)
	a.mux.HandleFunc("/v1/auth/password/forgot", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/password/reset", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/password/change", a.handleChangePassword)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	// tenant registration
	a.mux.HandleFunc("/v1/tenants", a.handleTenants)

	// role/permission management
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux. Order matters:
// request ids first so every later stage can log them, tenant resolution
// after instrumentation, bearer auth last before routing.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = a.withTenant(h)
	h = obs.Instrument(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = a.cors(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "tenauth-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "tenauth-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
