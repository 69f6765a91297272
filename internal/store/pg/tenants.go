package pg

import (
	"context"
	"database/sql"
	"errors"

	"tenauth.dev/internal/ids"
	"tenauth.dev/internal/tenant"
)

var _ tenant.Directory = (*Store)(nil)

func (s *Store) Create(ctx context.Context, t *tenant.Tenant) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into tenants (id, domain, name, contact_email, contact_phone, subscription_plan_id, created_by, updated_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at, updated_at
	`, t.ID, t.Domain, t.Name, nullIfEmpty(t.ContactEmail), nullIfEmpty(t.ContactPhone),
		nullIfEmpty(t.SubscriptionPlanID), nullIfEmpty(t.CreatedBy), nullIfEmpty(t.UpdatedBy))
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return tenant.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) Find(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.scanTenant(s.db.QueryRowContext(ctx, `
		select id, domain, name, contact_email, contact_phone, subscription_plan_id,
		       created_at, updated_at, created_by, updated_by
		from tenants
		where id = $1
	`, id))
}

func (s *Store) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	// Exact match; the column collation is never consulted case-insensitively.
	return s.scanTenant(s.db.QueryRowContext(ctx, `
		select id, domain, name, contact_email, contact_phone, subscription_plan_id,
		       created_at, updated_at, created_by, updated_by
		from tenants
		where domain = $1
	`, domain))
}

func (s *Store) List(ctx context.Context) ([]*tenant.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, domain, name, contact_email, contact_phone, subscription_plan_id,
		       created_at, updated_at, created_by, updated_by
		from tenants
		order by domain
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *Store) Domains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select domain from tenants order by domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domains, nil
}

func (s *Store) scanTenant(row *sql.Row) (*tenant.Tenant, error) {
	t, err := scanTenantRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanTenantRow(row rowScanner) (*tenant.Tenant, error) {
	var (
		t         tenant.Tenant
		email     sql.NullString
		phone     sql.NullString
		plan      sql.NullString
		createdBy sql.NullString
		updatedBy sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Domain, &t.Name, &email, &phone, &plan,
		&t.CreatedAt, &t.UpdatedAt, &createdBy, &updatedBy); err != nil {
		return nil, err
	}
	t.ContactEmail = stringOf(email)
	t.ContactPhone = stringOf(phone)
	t.SubscriptionPlanID = stringOf(plan)
	t.CreatedBy = stringOf(createdBy)
	t.UpdatedBy = stringOf(updatedBy)
	return &t, nil
}
