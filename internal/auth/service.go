package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tenauth.dev/internal/ids"
	"tenauth.dev/internal/obs"
	"tenauth.dev/internal/tenant"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultResetTTL   = 15 * time.Minute
)

// Notifier delivers reset codes to users. Delivery runs out of band; the
// flow never waits on its success.
type Notifier interface {
	SendResetCode(ctx context.Context, email, code string) error
}

// Service orchestrates login, token rotation, RBAC aggregation, password
// recovery and tenant registration on top of Store and tenant.Directory.
type Service struct {
	store    Store
	dir      tenant.Directory
	notifier Notifier
	now      func() time.Time

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures the access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithResetTTL configures the password reset code validity window.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.resetTTL = ttl
		}
		return nil
	}
}

// WithNotifier sets the reset code delivery collaborator.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) error {
		s.notifier = n
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service. The signing secret is mandatory.
func NewService(store Store, dir tenant.Directory, secret string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if dir == nil {
		return nil, errors.New("auth: tenant directory is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		store:      store,
		dir:        dir,
		now:        time.Now,
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		resetTTL:   defaultResetTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// TokenPair carries freshly minted credentials. ExpiresAt is the refresh
// token's absolute expiry instant.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// LoginResult is the full outcome of a successful login.
type LoginResult struct {
	TokenPair
	User               UserSummary
	MustChangePassword bool
}

// Login authenticates the (email, tenant) identity and issues a token pair.
// Unknown user, missing hash and wrong password are indistinguishable to the
// caller.
func (s *Service) Login(ctx context.Context, tenantID, email, password, ip string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if strings.TrimSpace(tenantID) == "" {
		return LoginResult{}, ErrNoTenant
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.Logger().Info("login rejected: unknown user",
				zap.String("tenant_id", tenantID), zap.String("email", email))
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if user.PasswordHash == "" {
		obs.Logger().Info("login rejected: user has no password hash",
			zap.String("user_id", user.ID))
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		obs.Logger().Info("login rejected: password mismatch",
			zap.String("user_id", user.ID))
		return LoginResult{}, ErrInvalidCredentials
	}

	principal, err := s.Principal(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	pair, err := s.mintPair(ctx, principal, ip)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		TokenPair:          pair,
		User:               user.Summary(),
		MustChangePassword: user.MustChangePassword,
	}, nil
}

// Principal resolves the user's roles and the deduplicated union of their
// permissions, restricted to the user's tenant. Runs at login and at every
// refresh, never cached beyond an access-token lifetime.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	roles, err := s.store.Roles(ctx).RolesForUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	// A foreign-tenant role must never contribute permissions or surface in
	// the roles claim, even if a stray assignment row exists at store level.
	tenantRoles := make([]*Role, 0, len(roles))
	roleIDs := make([]string, 0, len(roles))
	for _, r := range roles {
		if r.TenantID != user.TenantID {
			continue
		}
		tenantRoles = append(tenantRoles, r)
		roleIDs = append(roleIDs, r.ID)
	}
	perms, err := s.store.Permissions(ctx).ForRoles(ctx, user.TenantID, roleIDs)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, tenantRoles, perms), nil
}

// Refresh rotates the presented refresh token and issues a new pair. A token
// may be rotated at most once; concurrent attempts on the same token resolve
// to exactly one winner.
func (s *Service) Refresh(ctx context.Context, token, ip string) (TokenPair, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenPair{}, fmt.Errorf("%w: refresh token is required", ErrInvalidInput)
	}
	ledger := s.store.RefreshTokens(ctx)
	record, err := ledger.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.Logger().Info("refresh rejected: unknown token")
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	now := s.now().UTC()
	if record.IsRevoked() {
		obs.Logger().Warn("refresh rejected: token already revoked",
			zap.String("token_id", record.ID), zap.String("user_id", record.UserID))
		return TokenPair{}, ErrInvalidToken
	}
	if record.IsExpired(now) {
		obs.Logger().Info("refresh rejected: token expired",
			zap.String("token_id", record.ID), zap.String("user_id", record.UserID))
		return TokenPair{}, ErrInvalidToken
	}

	principal, err := s.Principal(ctx, record.UserID)
	if err != nil {
		return TokenPair{}, err
	}

	next, err := s.newRefreshRecord(principal.User.ID, now, ip)
	if err != nil {
		return TokenPair{}, err
	}
	// The replacement row is written first so the lineage pointer set by the
	// revoke below always names an existing row. If the create fails, the
	// presented token stays active and the caller may simply retry.
	if err := ledger.Create(ctx, next); err != nil {
		return TokenPair{}, err
	}
	// Conditional revoke keyed on the current state serializes concurrent
	// refresh calls on the same token string: exactly one wins.
	if err := ledger.RevokeActive(ctx, record.ID, now, ip, next.Token); err != nil {
		// The replacement was never handed out; retire it so a losing call
		// leaves no live token behind.
		_ = ledger.RevokeActive(ctx, next.ID, now, ip, "")
		if errors.Is(err, ErrInvalidToken) {
			obs.Logger().Warn("refresh rejected: lost rotation race",
				zap.String("token_id", record.ID))
		}
		return TokenPair{}, err
	}
	access, _, err := signAccessToken(s.secret, s.issuer, principal, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: next.Token, ExpiresAt: next.ExpiresAt}, nil
}

// Revoke terminally revokes a refresh token. Already-issued access tokens
// stay valid until their own expiry.
func (s *Service) Revoke(ctx context.Context, token, ip string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: refresh token is required", ErrInvalidInput)
	}
	ledger := s.store.RefreshTokens(ctx)
	record, err := ledger.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if record.IsRevoked() {
		return ErrInvalidToken
	}
	return ledger.RevokeActive(ctx, record.ID, s.now().UTC(), ip, "")
}

// Verify validates an access token and returns its trusted claim set. No
// database access happens here.
func (s *Service) Verify(token string) (*Claims, error) {
	return parseAccessToken(s.secret, s.issuer, token, s.now().UTC())
}

// RequestPasswordReset creates a short-lived reset code for the user and
// hands it to the notifier. An unknown email performs no action at all; the
// caller surfaces the same generic acknowledgement either way.
func (s *Service) RequestPasswordReset(ctx context.Context, tenantID, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(tenantID) == "" {
		return ErrNoTenant
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.Logger().Info("password reset requested for unknown email",
				zap.String("tenant_id", tenantID))
			return nil
		}
		return err
	}
	code, err := ids.NewCode()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	rec := &PasswordResetCode{
		ID:         ids.New(),
		UserID:     user.ID,
		Code:       code,
		ExpiryDate: now.Add(s.resetTTL),
		CreatedAt:  now,
	}
	if err := s.store.ResetCodes(ctx).Create(ctx, rec); err != nil {
		return err
	}
	if s.notifier != nil {
		go func(email, code string) {
			if err := s.notifier.SendResetCode(context.WithoutCancel(ctx), email, code); err != nil {
				obs.Logger().Error("reset code delivery failed", zap.Error(err))
			}
		}(user.Email, code)
	}
	return nil
}

// ResetPassword consumes a reset code and stores the new password as one
// unit of work. A used or expired code is rejected with the same generic
// error as an unknown one.
func (s *Service) ResetPassword(ctx context.Context, tenantID, email, code, newPassword string) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" || newPassword == "" {
		return fmt.Errorf("%w: email, code and new password are required", ErrInvalidInput)
	}
	if strings.TrimSpace(tenantID) == "" {
		return ErrNoTenant
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidResetCode
		}
		return err
	}
	rec, err := s.store.ResetCodes(ctx).FindActive(ctx, user.ID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.Logger().Info("reset rejected: no active code",
				zap.String("user_id", user.ID))
			return ErrInvalidResetCode
		}
		return err
	}
	if !s.now().UTC().Before(rec.ExpiryDate) {
		obs.Logger().Info("reset rejected: code expired",
			zap.String("user_id", user.ID), zap.String("code_id", rec.ID))
		return ErrInvalidResetCode
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.ResetCodes(ctx).Consume(ctx, rec.ID, user.ID, hash)
}

// ChangePassword is the authenticated variant: the caller proves the current
// password through the same comparator as login.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	if current == "" || newPassword == "" {
		return fmt.Errorf("%w: current and new passwords are required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, user.ID, hash, false)
}

func (s *Service) mintPair(ctx context.Context, principal Principal, ip string) (TokenPair, error) {
	now := s.now().UTC()
	access, _, err := signAccessToken(s.secret, s.issuer, principal, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	rec, err := s.newRefreshRecord(principal.User.ID, now, ip)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: rec.Token, ExpiresAt: rec.ExpiresAt}, nil
}

func (s *Service) newRefreshRecord(userID string, now time.Time, ip string) (*RefreshToken, error) {
	token, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	return &RefreshToken{
		ID:          ids.New(),
		UserID:      userID,
		Token:       token,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedAt:   now,
		CreatedByIP: ip,
	}, nil
}

// AccessTTL exposes the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }
