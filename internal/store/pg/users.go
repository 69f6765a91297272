package pg

import (
	"context"
	"database/sql"
	"errors"

	"tenauth.dev/internal/auth"
	"tenauth.dev/internal/ids"
)

type userStore struct {
	db *sql.DB
}

func (s userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, tenant_id, email, password_hash, must_change_password, created_by, updated_by)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, u.ID, u.TenantID, u.Email, u.PasswordHash, u.MustChangePassword,
		nullIfEmpty(u.CreatedBy), nullIfEmpty(u.UpdatedBy))
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
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

func (s userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, tenant_id, email, password_hash, must_change_password,
		       created_at, updated_at, created_by, updated_by
		from users
		where id = $1
	`, id))
}

func (s userStore) FindByEmail(ctx context.Context, tenantID, email string) (*auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, tenant_id, email, password_hash, must_change_password,
		       created_at, updated_at, created_by, updated_by
		from users
		where tenant_id = $1 and email = $2
	`, tenantID, email))
}

func (s userStore) ListByTenant(ctx context.Context, tenantID string) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, email, password_hash, must_change_password,
		       created_at, updated_at, created_by, updated_by
		from users
		where tenant_id = $1
		order by email
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s userStore) UpdatePassword(ctx context.Context, userID, passwordHash string, mustChange bool) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2, must_change_password = $3, updated_at = now()
		where id = $1
	`, userID, passwordHash, mustChange)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s userStore) scanOne(row *sql.Row) (*auth.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u         auth.User
		hash      sql.NullString
		createdBy sql.NullString
		updatedBy sql.NullString
	)
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &hash, &u.MustChangePassword,
		&u.CreatedAt, &u.UpdatedAt, &createdBy, &updatedBy); err != nil {
		return nil, err
	}
	u.PasswordHash = stringOf(hash)
	u.CreatedBy = stringOf(createdBy)
	u.UpdatedBy = stringOf(updatedBy)
	return &u, nil
}
