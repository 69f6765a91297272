package tenant

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("tenant: not found")
	ErrAlreadyExists = errors.New("tenant: already exists")
	ErrInvalidInput  = errors.New("tenant: invalid input")
)

// HostDomain is the reserved domain of the system's own administrative
// tenant. Loopback development hosts resolve to it.
const HostDomain = "host"

// Tenant is an isolated organizational namespace. Users, roles and
// permissions always belong to exactly one tenant.
type Tenant struct {
	ID                 string    `json:"id"`
	Domain             string    `json:"domain"`
	Name               string    `json:"name"`
	ContactEmail       string    `json:"contact_email,omitempty"`
	ContactPhone       string    `json:"contact_phone,omitempty"`
	SubscriptionPlanID string    `json:"subscription_plan_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	CreatedBy          string    `json:"created_by,omitempty"`
	UpdatedBy          string    `json:"updated_by,omitempty"`
}

// Directory is the durable store of tenant records, keyed by the unique
// domain identifier. It is the leaf dependency of every other component.
type Directory interface {
	Create(ctx context.Context, t *Tenant) error
	Find(ctx context.Context, id string) (*Tenant, error)
	// FindByDomain matches the domain exactly. Matching is case-sensitive;
	// normalizing would change lookup behavior for already stored rows.
	FindByDomain(ctx context.Context, domain string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	// Domains returns every known tenant domain, used by the origin cache.
	Domains(ctx context.Context) ([]string, error)
}
