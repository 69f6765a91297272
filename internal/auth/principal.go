package auth

import "sort"

// Principal is a user with roles and permissions resolved from the RBAC
// graph. Aggregation runs at login and at every refresh; its result is what
// gets baked into the access token.
type Principal struct {
	User        *User
	Roles       []*Role
	Permissions map[string]struct{}
}

// NewPrincipal builds a principal from resolved roles and permissions,
// deduplicating permission names.
func NewPrincipal(user *User, roles []*Role, perms []Permission) Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p.Name] = struct{}{}
	}
	return Principal{User: user, Roles: roles, Permissions: set}
}

// HasPermission reports whether the principal holds the permission name.
func (p Principal) HasPermission(name string) bool {
	_, ok := p.Permissions[name]
	return ok
}

// RoleNames returns the sorted role names.
func (p Principal) RoleNames() []string {
	out := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		out = append(out, r.Name)
	}
	sort.Strings(out)
	return out
}

// PermissionNames returns the sorted, deduplicated permission names. Sorting
// makes aggregation order-independent: the same role set always yields the
// same claim list.
func (p Principal) PermissionNames() []string {
	out := make([]string, 0, len(p.Permissions))
	for name := range p.Permissions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
