package tenant

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tenauth.dev/internal/obs"
)

// OriginCache is a periodically refreshed snapshot of the browser origins
// belonging to known tenants. It feeds only the CORS allow-list: staleness
// here affects browser permissiveness, never an auth decision.
type OriginCache struct {
	dir        Directory
	baseDomain string
	interval   time.Duration

	mu      sync.RWMutex
	origins map[string]struct{}

	kick chan struct{}
}

// NewOriginCache builds the cache. It is empty until Refresh or Run populates it.
func NewOriginCache(dir Directory, baseDomain string, interval time.Duration) *OriginCache {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &OriginCache{
		dir:        dir,
		baseDomain: strings.TrimSpace(baseDomain),
		interval:   interval,
		origins:    make(map[string]struct{}),
		kick:       make(chan struct{}, 1),
	}
}

// Run refreshes the cache on a fixed timer and on Invalidate kicks until the
// context ends. Intended to run in its own goroutine.
func (c *OriginCache) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		obs.Logger().Warn("origin cache initial refresh failed", zap.Error(err))
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.kick:
		}
		if err := c.Refresh(ctx); err != nil {
			obs.Logger().Warn("origin cache refresh failed", zap.Error(err))
		}
	}
}

// Refresh rebuilds the snapshot from the directory.
func (c *OriginCache) Refresh(ctx context.Context) error {
	domains, err := c.dir.Domains(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]struct{}, 2*len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" || d == HostDomain {
			continue
		}
		if c.baseDomain != "" {
			next["https://"+d+"."+c.baseDomain] = struct{}{}
			next["http://"+d+"."+c.baseDomain] = struct{}{}
		}
	}
	c.mu.Lock()
	c.origins = next
	c.mu.Unlock()
	return nil
}

// Invalidate asks the running loop to rebuild ahead of the timer. Called on
// tenant registration. Non-blocking.
func (c *OriginCache) Invalidate() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Allowed reports whether the origin belongs to a known tenant or is a local
// development origin.
func (c *OriginCache) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if isLocalOrigin(origin) {
		return true
	}
	c.mu.RLock()
	_, ok := c.origins[origin]
	c.mu.RUnlock()
	return ok
}

func isLocalOrigin(o string) bool {
	return strings.HasPrefix(o, "http://localhost:") || strings.HasPrefix(o, "http://127.0.0.1:") ||
		o == "http://localhost" || o == "http://127.0.0.1"
}
