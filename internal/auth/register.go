package auth

import (
	"context"
	"fmt"
	"strings"

	"tenauth.dev/internal/ids"
	"tenauth.dev/internal/tenant"
)

// RegisterTenantInput is the self-service registration payload. The same
// path seeds the reserved host tenant at bootstrap.
type RegisterTenantInput struct {
	Domain        string
	Name          string
	ContactEmail  string
	ContactPhone  string
	AdminEmail    string
	AdminPassword string
}

// RegisterTenant creates the tenant, seeds its permission catalog, creates
// the admin role holding the full catalog and the initial admin user. The
// admin must change the bootstrap password on first login.
func (s *Service) RegisterTenant(ctx context.Context, in RegisterTenantInput) (*tenant.Tenant, *User, error) {
	in.Domain = strings.TrimSpace(in.Domain)
	in.Name = strings.TrimSpace(in.Name)
	in.AdminEmail = strings.TrimSpace(in.AdminEmail)
	if in.Domain == "" || in.Name == "" {
		return nil, nil, fmt.Errorf("%w: domain and name are required", ErrInvalidInput)
	}
	if in.AdminEmail == "" || in.AdminPassword == "" {
		return nil, nil, fmt.Errorf("%w: admin email and password are required", ErrInvalidInput)
	}

	t := &tenant.Tenant{
		ID:           ids.New(),
		Domain:       in.Domain,
		Name:         in.Name,
		ContactEmail: in.ContactEmail,
		ContactPhone: in.ContactPhone,
	}
	if err := s.dir.Create(ctx, t); err != nil {
		return nil, nil, err
	}
	if err := s.SeedCatalog(ctx, t.ID); err != nil {
		return nil, nil, err
	}

	role := &Role{
		ID:          ids.New(),
		TenantID:    t.ID,
		Name:        AdminRoleName,
		Description: "Full access within the tenant",
	}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, nil, err
	}
	if err := s.store.Permissions(ctx).SetForRole(ctx, role.ID, Catalog); err != nil {
		return nil, nil, err
	}

	hash, err := HashPassword(in.AdminPassword)
	if err != nil {
		return nil, nil, err
	}
	admin := &User{
		ID:                 ids.New(),
		TenantID:           t.ID,
		Email:              in.AdminEmail,
		PasswordHash:       hash,
		MustChangePassword: true,
	}
	if err := s.store.Users(ctx).Create(ctx, admin); err != nil {
		return nil, nil, err
	}
	if err := s.store.Roles(ctx).Assign(ctx, UserRole{UserID: admin.ID, RoleID: role.ID}); err != nil {
		return nil, nil, err
	}
	return t, admin, nil
}

// SeedCatalog ensures every catalog permission exists for the tenant.
// Idempotent: re-seeding an already seeded tenant is a no-op.
func (s *Service) SeedCatalog(ctx context.Context, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrNoTenant
	}
	return s.store.Permissions(ctx).Ensure(ctx, tenantID, Catalog)
}

// CreateRole creates a role in the tenant.
func (s *Service) CreateRole(ctx context.Context, tenantID, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrNoTenant
	}
	role := &Role{
		ID:          ids.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles lists the tenant's roles.
func (s *Service) ListRoles(ctx context.Context, tenantID string) ([]*Role, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrNoTenant
	}
	return s.store.Roles(ctx).ListByTenant(ctx, tenantID)
}

// ListPermissions lists the tenant's permission catalog copies.
func (s *Service) ListPermissions(ctx context.Context, tenantID string) ([]Permission, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrNoTenant
	}
	return s.store.Permissions(ctx).ListByTenant(ctx, tenantID)
}

// SetRolePermissions replaces a role's permission set. The role must belong
// to the acting tenant.
func (s *Service) SetRolePermissions(ctx context.Context, tenantID, roleID string, names []string) error {
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return err
	}
	if role.TenantID != tenantID {
		return ErrNotFound
	}
	return s.store.Permissions(ctx).SetForRole(ctx, roleID, dedupeNames(names))
}

// AssignRole assigns a role to a user. Both must belong to the acting
// tenant; the create is idempotent to tolerate retried requests.
func (s *Service) AssignRole(ctx context.Context, tenantID, userID, roleID string) error {
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return err
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if role.TenantID != tenantID || user.TenantID != tenantID {
		return ErrNotFound
	}
	return s.store.Roles(ctx).Assign(ctx, UserRole{UserID: userID, RoleID: roleID})
}

func dedupeNames(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
