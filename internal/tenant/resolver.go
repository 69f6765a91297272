package tenant

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

const (
	// HeaderDomain carries an explicit tenant override and wins over
	// every other resolution source.
	HeaderDomain = "X-Tenant-Domain"
	// QueryParam is the fallback override for clients that cannot set headers.
	QueryParam = "tenant"
)

// ErrNoKey reports that no tenant key could be determined from the request.
// The request may still proceed; downstream handlers decide whether an
// unresolved tenant is acceptable.
var ErrNoKey = errors.New("tenant: no key in request")

// Resolver determines the acting tenant for an inbound request.
type Resolver struct {
	dir        Directory
	baseDomain string
}

// NewResolver constructs a Resolver bound to a directory and the configured
// base domain used for subdomain inference.
func NewResolver(dir Directory, baseDomain string) *Resolver {
	return &Resolver{dir: dir, baseDomain: strings.TrimSpace(baseDomain)}
}

// Key extracts the tenant lookup key from the request without touching the
// directory. Priority: explicit header, explicit query parameter, subdomain
// of the base domain, loopback fallback to the reserved host tenant.
func (r *Resolver) Key(req *http.Request) (string, bool) {
	if v := strings.TrimSpace(req.Header.Get(HeaderDomain)); v != "" {
		return v, true
	}
	if v := strings.TrimSpace(req.URL.Query().Get(QueryParam)); v != "" {
		return v, true
	}
	host := requestHost(req)
	if host == "" {
		return "", false
	}
	if r.baseDomain != "" && strings.HasSuffix(host, "."+r.baseDomain) {
		sub := strings.TrimSuffix(host, "."+r.baseDomain)
		if sub != "" && !strings.Contains(sub, ".") {
			return sub, true
		}
	}
	if isLoopbackHost(host) {
		return HostDomain, true
	}
	return "", false
}

// Resolve produces the acting tenant for the request. A determined key that
// matches no tenant yields ErrNotFound; a request with no determinable key
// yields ErrNoKey.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Tenant, error) {
	key, ok := r.Key(req)
	if !ok {
		return nil, ErrNoKey
	}
	t, err := r.dir.FindByDomain(ctx, key)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func requestHost(req *http.Request) string {
	host := req.Host
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopbackHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
