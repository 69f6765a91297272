package auth

import "time"

// User is a tenant-scoped identity. The same email may exist in two
// different tenants as two unrelated users.
type User struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	CreatedBy          string    `json:"created_by,omitempty"`
	UpdatedBy          string    `json:"updated_by,omitempty"`
}

// Summary is the minimal user view returned alongside issued tokens.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, TenantID: u.TenantID, Email: u.Email}
}

// UserSummary is what login and refresh responses expose about the user.
type UserSummary struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
}

// Role groups permissions inside one tenant. Names are only meaningful
// within their tenant.
type Role struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
}

// Permission is a tenant-owned copy of a catalog entry. Denormalized on
// purpose so a permission row can never be shared across tenants.
type Permission struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RolePermission links a role to a permission. Both sides must belong to
// the same tenant; the store enforces it.
type RolePermission struct {
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is one row of the append-mostly refresh ledger. Rows are
// never deleted; rotation and revocation only write terminal state.
type RefreshToken struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Token           string     `json:"-"`
	ExpiresAt       time.Time  `json:"expires_at"`
	CreatedAt       time.Time  `json:"created_at"`
	CreatedByIP     string     `json:"created_by_ip,omitempty"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	RevokedByIP     string     `json:"revoked_by_ip,omitempty"`
	ReplacedByToken string     `json:"replaced_by_token,omitempty"`
}

// IsRevoked reports whether the token reached a terminal written state.
func (t *RefreshToken) IsRevoked() bool { return t.RevokedAt != nil }

// IsExpired is a derived predicate: true exactly at ExpiresAt and after.
func (t *RefreshToken) IsExpired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// IsActive reports whether the token may still be rotated.
func (t *RefreshToken) IsActive(now time.Time) bool { return !t.IsRevoked() && !t.IsExpired(now) }

// PasswordResetCode is consumed at most once, even before its expiry.
type PasswordResetCode struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Code       string    `json:"-"`
	ExpiryDate time.Time `json:"expiry_date"`
	Used       bool      `json:"used"`
	CreatedAt  time.Time `json:"created_at"`
}
