package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tenauth.dev/internal/auth"
	"tenauth.dev/internal/ids"
)

type roleStore struct {
	db *sql.DB
}

func (s roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, tenant_id, name, description, created_by, updated_by)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, role.ID, role.TenantID, role.Name, nullIfEmpty(role.Description),
		nullIfEmpty(role.CreatedBy), nullIfEmpty(role.UpdatedBy))
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrAlreadyExists
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx, `
		select id, tenant_id, name, description, created_at, updated_at, created_by, updated_by
		from roles
		where id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s roleStore) ListByTenant(ctx context.Context, tenantID string) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, name, description, created_at, updated_at, created_by, updated_by
		from roles
		where tenant_id = $1
		order by name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s roleStore) Assign(ctx context.Context, ur auth.UserRole) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict (user_id, role_id) do nothing
	`, ur.UserID, ur.RoleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s roleStore) RolesForUser(ctx context.Context, userID string) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.tenant_id, r.name, r.description, r.created_at, r.updated_at, r.created_by, r.updated_by
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func scanRole(row rowScanner) (*auth.Role, error) {
	var (
		role      auth.Role
		desc      sql.NullString
		createdBy sql.NullString
		updatedBy sql.NullString
	)
	if err := row.Scan(&role.ID, &role.TenantID, &role.Name, &desc,
		&role.CreatedAt, &role.UpdatedAt, &createdBy, &updatedBy); err != nil {
		return nil, err
	}
	role.Description = stringOf(desc)
	role.CreatedBy = stringOf(createdBy)
	role.UpdatedBy = stringOf(updatedBy)
	return &role, nil
}

type permissionStore struct {
	db *sql.DB
}

func (s permissionStore) Ensure(ctx context.Context, tenantID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, tenant_id, name)
			values ($1, $2, $3)
			on conflict (tenant_id, name) do nothing
		`, ids.New(), tenantID, name); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

func (s permissionStore) ListByTenant(ctx context.Context, tenantID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, name, created_at
		from permissions
		where tenant_id = $1
		order by name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s permissionStore) SetForRole(ctx context.Context, roleID string, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var tenantID string
	if err := tx.QueryRowContext(ctx, `select tenant_id from roles where id = $1`, roleID).Scan(&tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}

	// Linking goes through the role's own tenant; a name another tenant owns
	// matches nothing and is skipped.
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, p.id
			from permissions p
			where p.tenant_id = $2 and p.name = $3
			on conflict (role_id, permission_id) do nothing
		`, roleID, tenantID, name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s permissionStore) ForRoles(ctx context.Context, tenantID string, roleIDs []string) ([]auth.Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(roleIDs))
	args := make([]any, 0, len(roleIDs)+1)
	args = append(args, tenantID)
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		select distinct p.id, p.tenant_id, p.name, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where p.tenant_id = $1 and rp.role_id in (%s)
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
