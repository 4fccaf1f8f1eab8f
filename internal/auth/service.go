package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/retail-authz/internal/events"
	"github.com/odyssey-erp/retail-authz/internal/rbac"
	"github.com/odyssey-erp/retail-authz/internal/shared"
	"github.com/odyssey-erp/retail-authz/internal/users"
)

// errRevoked marks a token whose jti was revoked.
var errRevoked = fmt.Errorf("%w: revoked", shared.ErrTokenInvalid)

// Config configures a SessionManager.
type Config struct {
	Secret        []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RotateRefresh bool

	Hasher    PasswordHasher
	Publisher events.Publisher
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

// SessionManager issues, validates, refreshes and revokes sessions.
type SessionManager struct {
	users      UserLookup
	store      TokenStore
	signer     *tokenSigner
	hasher     PasswordHasher
	publisher  events.Publisher
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
	refreshTTL time.Duration
	rotate     bool

	dummyOnce sync.Once
	dummyHash string
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(lookup UserLookup, store TokenStore, cfg Config) (*SessionManager, error) {
	signer, err := newTokenSigner(cfg.Secret, cfg.Issuer, cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: refresh token ttl must be positive")
	}
	m := &SessionManager{
		users:      lookup,
		store:      store,
		signer:     signer,
		hasher:     cfg.Hasher,
		publisher:  cfg.Publisher,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		now:        cfg.Now,
		refreshTTL: cfg.RefreshTTL,
		rotate:     cfg.RotateRefresh,
	}
	if m.hasher == nil {
		m.hasher = BcryptHasher{}
	}
	if m.publisher == nil {
		m.publisher = events.Nop{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Authenticate verifies credentials and opens a session. Unknown users,
// inactive users and wrong passwords are indistinguishable.
func (m *SessionManager) Authenticate(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	user, err := m.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			m.logger.Error("auth user lookup", slog.Any("error", err))
			return Session{}, err
		}
		_ = m.hasher.Compare(m.dummy(), password)
		return Session{}, m.loginFailed(ctx, username)
	}
	if err := m.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			m.logger.Warn("auth password compare", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return Session{}, m.loginFailed(ctx, username)
	}
	if !user.IsActive {
		return Session{}, m.loginFailed(ctx, username)
	}
	p, err := principalOf(user)
	if err != nil {
		m.logger.Warn("auth principal", slog.String("user_id", user.ID), slog.Any("error", err))
		return Session{}, m.loginFailed(ctx, username)
	}

	sess, err := m.open(ctx, p, user.Username)
	if err != nil {
		m.observeLogin("error")
		return Session{}, err
	}
	m.observeLogin("success")
	m.publish(ctx, events.NewUserLoggedIn(m.now(), events.UserLoggedIn{
		UserID:    p.UserID,
		SessionID: sess.ID,
		ClientIP:  shared.ClientInfoFromContext(ctx).IP,
	}))
	return sess, nil
}

// Validate verifies an access token and returns its principal. It never
// consults grants.
func (m *SessionManager) Validate(ctx context.Context, token string) (rbac.Principal, error) {
	p, _, err := m.validate(ctx, token)
	m.observeValidation(err)
	return p, err
}

func (m *SessionManager) validate(ctx context.Context, token string) (rbac.Principal, *accessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return rbac.Principal{}, nil, shared.ErrTokenInvalid
	}
	claims, err := m.signer.parse(token, m.now())
	if err != nil {
		return rbac.Principal{}, nil, err
	}
	revoked, err := m.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return rbac.Principal{}, nil, err
	}
	if revoked {
		return rbac.Principal{}, nil, errRevoked
	}
	p, err := claims.principal()
	if err != nil {
		return rbac.Principal{}, nil, err
	}
	return p, claims, nil
}

// Refresh exchanges a refresh token for a new access token. With rotation
// enabled the refresh token is single use and a new one is returned.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, shared.ErrRefreshTokenInvalid
	}
	rec, err := m.store.GetRefresh(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	now := m.now()
	if !now.Before(rec.ExpiresAt) {
		_ = m.store.DeleteRefresh(ctx, refreshToken)
		return Session{}, shared.ErrRefreshTokenExpired
	}

	// Roles and activation are re-read so a refresh never outlives a
	// deactivation or role change. A lookup failure leaves the token usable.
	user, err := m.users.FindByUsername(ctx, rec.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = m.store.DeleteRefresh(ctx, refreshToken)
			return Session{}, shared.ErrRefreshTokenInvalid
		}
		return Session{}, err
	}
	if !user.IsActive || user.ID != rec.UserID {
		_ = m.store.DeleteRefresh(ctx, refreshToken)
		return Session{}, shared.ErrRefreshTokenInvalid
	}
	p, err := principalOf(user)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", shared.ErrRefreshTokenInvalid, err)
	}

	var sess Session
	if m.rotate {
		// Consumed only now; a concurrent refresh of the same token loses here.
		if _, err := m.store.TakeRefresh(ctx, refreshToken); err != nil {
			return Session{}, err
		}
		if sess, err = m.open(ctx, p, user.Username); err != nil {
			return Session{}, err
		}
		// The previous access token can still end the rotated session.
		err = m.store.BindSession(ctx, rec.SessionID, sess.RefreshToken, m.refreshTTL)
	} else {
		if sess, err = m.issueAccess(p); err != nil {
			return Session{}, err
		}
		sess.RefreshToken, sess.RefreshExpiresAt = refreshToken, rec.ExpiresAt
		err = m.store.BindSession(ctx, sess.ID, refreshToken, rec.ExpiresAt.Sub(now))
	}
	if err != nil {
		return Session{}, err
	}
	m.publish(ctx, events.NewSessionRefreshed(now, events.SessionRefreshed{
		UserID:    p.UserID,
		SessionID: sess.ID,
		Rotated:   m.rotate,
	}))
	return sess, nil
}

// Revoke ends a session. The access token stays rejected until its natural
// expiry. The refresh token bound to it is deleted, as is refreshToken when
// given. Revoking twice is not an error.
func (m *SessionManager) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken != "" {
		claims, err := m.signer.parseIgnoringExpiry(accessToken)
		if err != nil {
			return err
		}
		ttl := claims.ExpiresAt.Sub(m.now())
		if err := m.store.Revoke(ctx, claims.ID, ttl); err != nil {
			return err
		}
		if err := m.store.EndSession(ctx, claims.ID); err != nil {
			return err
		}
		m.publish(ctx, events.NewUserLoggedOut(m.now(), events.UserLoggedOut{
			UserID:    claims.Subject,
			SessionID: claims.ID,
		}))
	}
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		if err := m.store.DeleteRefresh(ctx, refreshToken); err != nil {
			return err
		}
	}
	return nil
}

// State reports the lifecycle position of an access token.
func (m *SessionManager) State(ctx context.Context, token string) SessionState {
	_, _, err := m.validate(ctx, token)
	switch {
	case err == nil:
		return StateAuthenticated
	case errors.Is(err, shared.ErrTokenExpired):
		return StateExpired
	case errors.Is(err, errRevoked):
		return StateRevoked
	default:
		return StateUnauthenticated
	}
}

// open issues an access token and a fresh refresh token.
func (m *SessionManager) open(ctx context.Context, p rbac.Principal, username string) (Session, error) {
	sess, err := m.issueAccess(p)
	if err != nil {
		return Session{}, err
	}
	refresh, err := newOpaqueToken()
	if err != nil {
		return Session{}, fmt.Errorf("auth: refresh token: %w", err)
	}
	rec := RefreshRecord{
		UserID:    p.UserID,
		Username:  username,
		SessionID: sess.ID,
		IssuedAt:  sess.IssuedAt,
		ExpiresAt: sess.IssuedAt.Add(m.refreshTTL),
	}
	if err := m.store.SaveRefresh(ctx, refresh, rec, m.refreshTTL); err != nil {
		return Session{}, err
	}
	sess.RefreshToken, sess.RefreshExpiresAt = refresh, rec.ExpiresAt
	return sess, nil
}

func (m *SessionManager) issueAccess(p rbac.Principal) (Session, error) {
	now := m.now()
	token, jti, exp, err := m.signer.sign(p, now)
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:          jti,
		Principal:   p,
		IssuedAt:    now.UTC().Truncate(time.Second),
		ExpiresAt:   exp,
		AccessToken: token,
		TokenType:   "Bearer",
	}, nil
}

func (m *SessionManager) loginFailed(ctx context.Context, username string) error {
	m.observeLogin("failure")
	m.publish(ctx, events.NewUserLoginFailed(m.now(), events.UserLoginFailed{
		Username: username,
		ClientIP: shared.ClientInfoFromContext(ctx).IP,
	}))
	return shared.ErrInvalidCredentials
}

// dummy returns a hash compared against when the user does not exist so the
// missing-user path costs the same as a wrong password.
func (m *SessionManager) dummy() string {
	m.dummyOnce.Do(func() {
		hash, err := m.hasher.Hash("retail-authz-dummy-password")
		if err != nil {
			m.logger.Warn("auth dummy hash", slog.Any("error", err))
		}
		m.dummyHash = hash
	})
	return m.dummyHash
}

func (m *SessionManager) publish(ctx context.Context, evt events.Event) {
	if err := m.publisher.Publish(ctx, evt); err != nil {
		m.logger.Warn("auth publish event", slog.String("kind", string(evt.Kind)), slog.Any("error", err))
	}
}

func (m *SessionManager) observeLogin(outcome string) {
	if m.observer != nil {
		m.observer.ObserveLogin(outcome)
	}
}

func (m *SessionManager) observeValidation(err error) {
	if m.observer == nil {
		return
	}
	outcome := "valid"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrTokenExpired):
		outcome = "expired"
	case errors.Is(err, errRevoked):
		outcome = "revoked"
	case errors.Is(err, shared.ErrTokenInvalid):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	m.observer.ObserveValidation(outcome)
}

func principalOf(u users.User) (rbac.Principal, error) {
	return rbac.NewPrincipal(u.ID, roleNames(u), u.OrganizationID, u.OrganizationType)
}

func roleNames(u users.User) []string {
	out := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		out[i] = string(r)
	}
	return out
}
