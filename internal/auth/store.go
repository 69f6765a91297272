package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	ResetCodes(ctx context.Context) ResetCodeStore
}

// UserStore manages tenant-scoped users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByEmail looks a user up by the (email, tenant) pair; the same
	// email in another tenant is a different user.
	FindByEmail(ctx context.Context, tenantID, email string) (*User, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*User, error)
	// UpdatePassword stores a new hash and sets the must-change flag.
	UpdatePassword(ctx context.Context, userID, passwordHash string, mustChange bool) error
}

// RoleStore manages roles and user-role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Role, error)
	// Assign is an idempotent create; re-assigning an existing pair is a no-op.
	Assign(ctx context.Context, ur UserRole) error
	RolesForUser(ctx context.Context, userID string) ([]*Role, error)
}

// PermissionStore manages the tenant-scoped permission catalog.
type PermissionStore interface {
	// Ensure creates any of the named permissions missing for the tenant.
	Ensure(ctx context.Context, tenantID string, names []string) error
	ListByTenant(ctx context.Context, tenantID string) ([]Permission, error)
	// SetForRole replaces a role's permission set. Only permissions of the
	// role's own tenant may be linked.
	SetForRole(ctx context.Context, roleID string, names []string) error
	// ForRoles returns the union of permissions reachable from the roles,
	// restricted to the given tenant.
	ForRoles(ctx context.Context, tenantID string, roleIDs []string) ([]Permission, error)
}

// RefreshTokenStore manages the refresh ledger. Rows are append-mostly:
// created once, then at most transitioned to a terminal revoked state.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	// RevokeActive marks the token revoked only if it is not already; a
	// token that lost the race reports ErrInvalidToken. replacedBy carries
	// the rotation lineage and may be empty for explicit revocation.
	RevokeActive(ctx context.Context, id string, at time.Time, byIP, replacedBy string) error
}

// ResetCodeStore manages password reset codes.
type ResetCodeStore interface {
	Create(ctx context.Context, code *PasswordResetCode) error
	// FindActive returns the unused code row matching (user, code) exactly.
	FindActive(ctx context.Context, userID, code string) (*PasswordResetCode, error)
	// Consume atomically stores the new password hash, clears the user's
	// must-change flag and marks the code used. A crash can never leave the
	// password changed with the code still valid.
	Consume(ctx context.Context, codeID, userID, passwordHash string) error
}
