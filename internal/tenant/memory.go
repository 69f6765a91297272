package tenant

import (
	"context"
	"sync"
	"time"

	"tenauth.dev/internal/ids"
)

// InMemoryDirectory is a map-backed Directory used by tests and local runs
// without a database.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	byID     map[string]*Tenant
	byDomain map[string]*Tenant
}

var _ Directory = (*InMemoryDirectory)(nil)

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		byID:     make(map[string]*Tenant),
		byDomain: make(map[string]*Tenant),
	}
}

func (d *InMemoryDirectory) Create(ctx context.Context, t *Tenant) error {
	if t.Domain == "" || t.Name == "" {
		return ErrInvalidInput
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byDomain[t.Domain]; ok {
		return ErrAlreadyExists
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	cp := *t
	d.byID[t.ID] = &cp
	d.byDomain[t.Domain] = &cp
	return nil
}

func (d *InMemoryDirectory) Find(ctx context.Context, id string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (d *InMemoryDirectory) FindByDomain(ctx context.Context, domain string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.byDomain[domain]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (d *InMemoryDirectory) List(ctx context.Context) ([]*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Tenant, 0, len(d.byID))
	for _, t := range d.byID {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (d *InMemoryDirectory) Domains(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.byDomain))
	for domain := range d.byDomain {
		out = append(out, domain)
	}
	return out, nil
}
