package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tenauth.dev/internal/auth"
	"tenauth.dev/internal/ids"
)

type refreshTokenStore struct {
	db *sql.DB
}

func (s refreshTokenStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token, expires_at, created_at, created_by_ip)
		values ($1, $2, $3, $4, $5, $6)
	`, tok.ID, tok.UserID, tok.Token, tok.ExpiresAt, tok.CreatedAt, nullIfEmpty(tok.CreatedByIP))
	if err != nil {
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

func (s refreshTokenStore) FindByToken(ctx context.Context, token string) (*auth.RefreshToken, error) {
	var (
		tok         auth.RefreshToken
		createdByIP sql.NullString
		revokedAt   sql.NullTime
		revokedByIP sql.NullString
		replacedBy  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token, expires_at, created_at, created_by_ip,
		       revoked_at, revoked_by_ip, replaced_by_token
		from refresh_tokens
		where token = $1
	`, token).Scan(&tok.ID, &tok.UserID, &tok.Token, &tok.ExpiresAt, &tok.CreatedAt,
		&createdByIP, &revokedAt, &revokedByIP, &replacedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tok.CreatedByIP = stringOf(createdByIP)
	if revokedAt.Valid {
		at := revokedAt.Time
		tok.RevokedAt = &at
	}
	tok.RevokedByIP = stringOf(revokedByIP)
	tok.ReplacedByToken = stringOf(replacedBy)
	return &tok, nil
}

func (s refreshTokenStore) RevokeActive(ctx context.Context, id string, at time.Time, byIP, replacedBy string) error {
	// The revoked_at guard makes the write conditional on current state:
	// of any number of concurrent revocations exactly one affects a row.
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at = $2, revoked_by_ip = $3, replaced_by_token = $4
		where id = $1 and revoked_at is null
	`, id, at, nullIfEmpty(byIP), nullIfEmpty(replacedBy))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `select 1 from refresh_tokens where id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	if err != nil {
		return err
	}
	return auth.ErrInvalidToken
}

type resetCodeStore struct {
	db *sql.DB
}

func (s resetCodeStore) Create(ctx context.Context, code *auth.PasswordResetCode) error {
	if code.ID == "" {
		code.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into password_reset_codes (id, user_id, code, expiry_date, created_at)
		values ($1, $2, $3, $4, $5)
	`, code.ID, code.UserID, code.Code, code.ExpiryDate, code.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s resetCodeStore) FindActive(ctx context.Context, userID, code string) (*auth.PasswordResetCode, error) {
	var rec auth.PasswordResetCode
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, code, expiry_date, used, created_at
		from password_reset_codes
		where user_id = $1 and code = $2 and used = false
		order by created_at desc
		limit 1
	`, userID, code).Scan(&rec.ID, &rec.UserID, &rec.Code, &rec.ExpiryDate, &rec.Used, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s resetCodeStore) Consume(ctx context.Context, codeID, userID, passwordHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update password_reset_codes
		set used = true
		where id = $1 and used = false
	`, codeID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrInvalidResetCode
	}

	res, err = tx.ExecContext(ctx, `
		update users
		set password_hash = $2, must_change_password = false, updated_at = now()
		where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	aff, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return tx.Commit()
}
