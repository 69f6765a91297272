package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"tenauth.dev/internal/auth"
	"tenauth.dev/internal/tenant"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestUserCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "tnt_1", "a@x.com", "hash", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Users(context.Background()).Create(context.Background(), &auth.User{
		TenantID: "tnt_1", Email: "a@x.com", PasswordHash: "hash", MustChangePassword: true,
	})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindByEmailScopesToTenant(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select id, tenant_id, email, password_hash, must_change_password.*from users").
		WithArgs("tnt_1", "a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "email", "password_hash", "must_change_password",
			"created_at", "updated_at", "created_by", "updated_by",
		}).AddRow("usr_1", "tnt_1", "a@x.com", "hash", false, now, now, nil, nil))

	u, err := store.Users(context.Background()).FindByEmail(context.Background(), "tnt_1", "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.ID != "usr_1" || u.PasswordHash != "hash" || u.CreatedBy != "" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdatePasswordUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update users").
		WithArgs("usr_missing", "newhash", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users(context.Background()).UpdatePassword(context.Background(), "usr_missing", "newhash", false)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRevokeActiveOutcomes(t *testing.T) {
	ctx := context.Background()
	at := time.Now().UTC()

	t.Run("wins the race", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("update refresh_tokens.*revoked_at is null").
			WithArgs("tok_1", at, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := store.RefreshTokens(ctx).RevokeActive(ctx, "tok_1", at, "1.2.3.4", "next"); err != nil {
			t.Fatalf("RevokeActive: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("loses the race", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("update refresh_tokens.*revoked_at is null").
			WithArgs("tok_1", at, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("select 1 from refresh_tokens").
			WithArgs("tok_1").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		err := store.RefreshTokens(ctx).RevokeActive(ctx, "tok_1", at, "", "")
		if !errors.Is(err, auth.ErrInvalidToken) {
			t.Fatalf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("row never existed", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("update refresh_tokens.*revoked_at is null").
			WithArgs("tok_ghost", at, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("select 1 from refresh_tokens").
			WithArgs("tok_ghost").
			WillReturnError(sql.ErrNoRows)

		err := store.RefreshTokens(ctx).RevokeActive(ctx, "tok_ghost", at, "", "")
		if !errors.Is(err, auth.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})
}

func TestFindByTokenScansTerminalState(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	revoked := now.Add(-time.Minute)
	mock.ExpectQuery("select id, user_id, token, expires_at.*from refresh_tokens").
		WithArgs("opaque").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "token", "expires_at", "created_at", "created_by_ip",
			"revoked_at", "revoked_by_ip", "replaced_by_token",
		}).AddRow("tok_1", "usr_1", "opaque", now.Add(time.Hour), now.Add(-time.Hour), "1.2.3.4", revoked, nil, "next-token"))

	tok, err := store.RefreshTokens(context.Background()).FindByToken(context.Background(), "opaque")
	if err != nil {
		t.Fatalf("FindByToken: %v", err)
	}
	if !tok.IsRevoked() || tok.ReplacedByToken != "next-token" || tok.RevokedByIP != "" {
		t.Fatalf("unexpected token state: %+v", tok)
	}
}

func TestConsumeIsOneUnitOfWork(t *testing.T) {
	ctx := context.Background()

	t.Run("both writes commit together", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("update password_reset_codes.*used = false").
			WithArgs("code_1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("update users").
			WithArgs("usr_1", "newhash").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := store.ResetCodes(ctx).Consume(ctx, "code_1", "usr_1", "newhash"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("used code rolls back", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("update password_reset_codes.*used = false").
			WithArgs("code_used").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.ResetCodes(ctx).Consume(ctx, "code_used", "usr_1", "newhash")
		if !errors.Is(err, auth.ErrInvalidResetCode) {
			t.Fatalf("got %v, want ErrInvalidResetCode", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})
}

func TestSetForRoleReplacesLinksInsideTenant(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("select tenant_id from roles").
		WithArgs("rol_1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow("tnt_1"))
	mock.ExpectExec("delete from role_permissions").
		WithArgs("rol_1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into role_permissions.*where p.tenant_id").
		WithArgs("rol_1", "tnt_1", "claim.view").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into role_permissions.*where p.tenant_id").
		WithArgs("rol_1", "tnt_1", "foreign.permission").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Permissions(ctx).SetForRole(ctx, "rol_1", []string{"claim.view", "foreign.permission"})
	if err != nil {
		t.Fatalf("SetForRole: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestForRolesWithNoRolesSkipsTheDatabase(t *testing.T) {
	store, mock := newMockStore(t)
	perms, err := store.Permissions(context.Background()).ForRoles(context.Background(), "tnt_1", nil)
	if err != nil {
		t.Fatalf("ForRoles: %v", err)
	}
	if perms != nil {
		t.Fatalf("expected no permissions, got %v", perms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected SQL issued: %v", err)
	}
}

func TestTenantCreateDuplicateDomain(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("insert into tenants").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Create(context.Background(), &tenant.Tenant{Domain: "acme", Name: "Acme"})
	if !errors.Is(err, tenant.ErrAlreadyExists) {
		t.Fatalf("got %v, want tenant.ErrAlreadyExists", err)
	}
}

func TestTenantFindByDomain(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select id, domain, name.*from tenants.*where domain").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "domain", "name", "contact_email", "contact_phone", "subscription_plan_id",
			"created_at", "updated_at", "created_by", "updated_by",
		}).AddRow("tnt_1", "acme", "Acme Inc", "ops@acme.test", nil, nil, now, now, nil, nil))

	tn, err := store.FindByDomain(context.Background(), "acme")
	if err != nil {
		t.Fatalf("FindByDomain: %v", err)
	}
	if tn.ID != "tnt_1" || tn.ContactEmail != "ops@acme.test" || tn.ContactPhone != "" {
		t.Fatalf("unexpected tenant: %+v", tn)
	}

	mock.ExpectQuery("select id, domain, name.*from tenants.*where domain").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.FindByDomain(context.Background(), "ghost"); !errors.Is(err, tenant.ErrNotFound) {
		t.Fatalf("got %v, want tenant.ErrNotFound", err)
	}
}
