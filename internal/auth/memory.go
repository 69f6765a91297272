package auth

import (
	"context"
	"sync"
	"time"

	"tenauth.dev/internal/ids"
)

// InMemoryStore is a map-backed Store used by tests and local runs without a
// database. All methods share one lock, which also gives the reset-code
// consume path its single-unit-of-work guarantee.
type InMemoryStore struct {
	mu sync.Mutex

	users       map[string]*User
	roles       map[string]*Role
	permissions map[string]*Permission
	rolePerms   map[string]map[string]struct{} // roleID -> permissionID set
	userRoles   map[string]map[string]struct{} // userID -> roleID set
	refresh     map[string]*RefreshToken       // by ID
	refreshTok  map[string]string              // token -> ID
	resetCodes  map[string]*PasswordResetCode
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:       make(map[string]*User),
		roles:       make(map[string]*Role),
		permissions: make(map[string]*Permission),
		rolePerms:   make(map[string]map[string]struct{}),
		userRoles:   make(map[string]map[string]struct{}),
		refresh:     make(map[string]*RefreshToken),
		refreshTok:  make(map[string]string),
		resetCodes:  make(map[string]*PasswordResetCode),
	}
}

func (s *InMemoryStore) Users(ctx context.Context) UserStore { return s }
func (s *InMemoryStore) Roles(ctx context.Context) RoleStore { return roleStoreAdapter{s} }
func (s *InMemoryStore) Permissions(ctx context.Context) PermissionStore {
	return permissionStoreAdapter{s}
}
func (s *InMemoryStore) RefreshTokens(ctx context.Context) RefreshTokenStore {
	return refreshStoreAdapter{s}
}
func (s *InMemoryStore) ResetCodes(ctx context.Context) ResetCodeStore {
	return resetCodeStoreAdapter{s}
}

// Users ---------------------------------------------------------------------

func (s *InMemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.TenantID == u.TenantID && existing.Email == u.Email {
			return ErrAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemoryStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(ctx context.Context, tenantID, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TenantID == tenantID && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*User
	for _, u := range s.users {
		if u.TenantID == tenantID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdatePassword(ctx context.Context, userID, passwordHash string, mustChange bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.MustChangePassword = mustChange
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Roles ---------------------------------------------------------------------

func (s *InMemoryStore) createRoleLocked(role *Role) {
	if role.ID == "" {
		role.ID = ids.New()
	}
	now := time.Now().UTC()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	cp := *role
	s.roles[role.ID] = &cp
}

// roleStoreAdapter separates the Role methods whose names collide with the
// user ones.
type roleStoreAdapter struct{ s *InMemoryStore }

func (a roleStoreAdapter) Create(ctx context.Context, role *Role) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.createRoleLocked(role)
	return nil
}

func (a roleStoreAdapter) Find(ctx context.Context, id string) (*Role, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	r, ok := a.s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (a roleStoreAdapter) ListByTenant(ctx context.Context, tenantID string) ([]*Role, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []*Role
	for _, r := range a.s.roles {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (a roleStoreAdapter) Assign(ctx context.Context, ur UserRole) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	set, ok := a.s.userRoles[ur.UserID]
	if !ok {
		set = make(map[string]struct{})
		a.s.userRoles[ur.UserID] = set
	}
	set[ur.RoleID] = struct{}{}
	return nil
}

func (a roleStoreAdapter) RolesForUser(ctx context.Context, userID string) ([]*Role, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []*Role
	for roleID := range a.s.userRoles[userID] {
		if r, ok := a.s.roles[roleID]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Permissions ---------------------------------------------------------------

type permissionStoreAdapter struct{ s *InMemoryStore }

func (a permissionStoreAdapter) Ensure(ctx context.Context, tenantID string, names []string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, name := range names {
		if a.s.findPermissionLocked(tenantID, name) != nil {
			continue
		}
		p := &Permission{ID: ids.New(), TenantID: tenantID, Name: name, CreatedAt: time.Now().UTC()}
		a.s.permissions[p.ID] = p
	}
	return nil
}

func (a permissionStoreAdapter) ListByTenant(ctx context.Context, tenantID string) ([]Permission, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []Permission
	for _, p := range a.s.permissions {
		if p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (a permissionStoreAdapter) SetForRole(ctx context.Context, roleID string, names []string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	role, ok := a.s.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	next := make(map[string]struct{}, len(names))
	for _, name := range names {
		// Only the role's own tenant's permission rows may be linked.
		if p := a.s.findPermissionLocked(role.TenantID, name); p != nil {
			next[p.ID] = struct{}{}
		}
	}
	a.s.rolePerms[roleID] = next
	return nil
}

func (a permissionStoreAdapter) ForRoles(ctx context.Context, tenantID string, roleIDs []string) ([]Permission, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []Permission
	for _, roleID := range roleIDs {
		for permID := range a.s.rolePerms[roleID] {
			p, ok := a.s.permissions[permID]
			if !ok || p.TenantID != tenantID {
				continue
			}
			if _, dup := seen[permID]; dup {
				continue
			}
			seen[permID] = struct{}{}
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *InMemoryStore) findPermissionLocked(tenantID, name string) *Permission {
	for _, p := range s.permissions {
		if p.TenantID == tenantID && p.Name == name {
			return p
		}
	}
	return nil
}

// Refresh ledger ------------------------------------------------------------

type refreshStoreAdapter struct{ s *InMemoryStore }

func (a refreshStoreAdapter) Create(ctx context.Context, tok *RefreshToken) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	if _, ok := a.s.refreshTok[tok.Token]; ok {
		return ErrAlreadyExists
	}
	cp := *tok
	a.s.refresh[tok.ID] = &cp
	a.s.refreshTok[tok.Token] = tok.ID
	return nil
}

func (a refreshStoreAdapter) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	id, ok := a.s.refreshTok[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a.s.refresh[id]
	return &cp, nil
}

func (a refreshStoreAdapter) RevokeActive(ctx context.Context, id string, at time.Time, byIP, replacedBy string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	rec, ok := a.s.refresh[id]
	if !ok {
		return ErrNotFound
	}
	if rec.RevokedAt != nil {
		return ErrInvalidToken
	}
	t := at
	rec.RevokedAt = &t
	rec.RevokedByIP = byIP
	rec.ReplacedByToken = replacedBy
	return nil
}

// Reset codes ---------------------------------------------------------------

type resetCodeStoreAdapter struct{ s *InMemoryStore }

func (a resetCodeStoreAdapter) Create(ctx context.Context, code *PasswordResetCode) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if code.ID == "" {
		code.ID = ids.New()
	}
	cp := *code
	a.s.resetCodes[code.ID] = &cp
	return nil
}

func (a resetCodeStoreAdapter) FindActive(ctx context.Context, userID, code string) (*PasswordResetCode, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, rec := range a.s.resetCodes {
		if rec.UserID == userID && rec.Code == code && !rec.Used {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (a resetCodeStoreAdapter) Consume(ctx context.Context, codeID, userID, passwordHash string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	rec, ok := a.s.resetCodes[codeID]
	if !ok || rec.Used {
		return ErrInvalidResetCode
	}
	u, ok := a.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.MustChangePassword = false
	u.UpdatedAt = time.Now().UTC()
	rec.Used = true
	return nil
}
