package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// refreshGrace keeps refresh records in Redis past their logical expiry so
// late callers get ErrRefreshTokenExpired rather than ErrRefreshTokenInvalid.
const refreshGrace = time.Hour

// RefreshRecord is the server-side state behind an opaque refresh token.
type RefreshRecord struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenStore persists refresh tokens and access token revocations.
type TokenStore interface {
	SaveRefresh(ctx context.Context, token string, rec RefreshRecord, ttl time.Duration) error
	// GetRefresh returns shared.ErrRefreshTokenInvalid for unknown tokens.
	GetRefresh(ctx context.Context, token string) (RefreshRecord, error)
	// TakeRefresh is GetRefresh plus atomic removal.
	TakeRefresh(ctx context.Context, token string) (RefreshRecord, error)
	DeleteRefresh(ctx context.Context, token string) error
	// BindSession points an access token id at a refresh token so the
	// session can be ended from the access token alone.
	BindSession(ctx context.Context, jti, refreshToken string, ttl time.Duration) error
	// EndSession deletes the refresh token bound to jti, if any.
	EndSession(ctx context.Context, jti string) error
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisStore implements TokenStore on Redis. Refresh tokens are stored under
// their SHA-256 digest and each access token id maps to the digest of the
// refresh token that belongs to its session.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore. prefix namespaces every key.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "authz"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func refreshDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *RedisStore) refreshKey(token string) string {
	return s.prefix + ":refresh:" + refreshDigest(token)
}

func (s *RedisStore) sessionKey(jti string) string {
	return s.prefix + ":session:" + jti
}

func (s *RedisStore) revokedKey(jti string) string {
	return s.prefix + ":revoked:" + jti
}

// SaveRefresh implements TokenStore. The record is bound to rec.SessionID.
func (s *RedisStore) SaveRefresh(ctx context.Context, token string, rec RefreshRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.refreshKey(token), data, ttl+refreshGrace)
		if rec.SessionID != "" {
			pipe.Set(ctx, s.sessionKey(rec.SessionID), refreshDigest(token), ttl+refreshGrace)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("auth: save refresh token: %w", err)
	}
	return nil
}

// BindSession implements TokenStore.
func (s *RedisStore) BindSession(ctx context.Context, jti, refreshToken string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.sessionKey(jti), refreshDigest(refreshToken), ttl+refreshGrace).Err(); err != nil {
		return fmt.Errorf("auth: bind session: %w", err)
	}
	return nil
}

// EndSession implements TokenStore.
func (s *RedisStore) EndSession(ctx context.Context, jti string) error {
	digest, err := s.client.GetDel(ctx, s.sessionKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: end session: %w", err)
	}
	if err := s.client.Del(ctx, s.prefix+":refresh:"+digest).Err(); err != nil {
		return fmt.Errorf("auth: end session: %w", err)
	}
	return nil
}

// GetRefresh implements TokenStore.
func (s *RedisStore) GetRefresh(ctx context.Context, token string) (RefreshRecord, error) {
	return decodeRefresh(s.client.Get(ctx, s.refreshKey(token)).Bytes())
}

// TakeRefresh implements TokenStore.
func (s *RedisStore) TakeRefresh(ctx context.Context, token string) (RefreshRecord, error) {
	return decodeRefresh(s.client.GetDel(ctx, s.refreshKey(token)).Bytes())
}

// DeleteRefresh implements TokenStore. Unknown tokens are ignored.
func (s *RedisStore) DeleteRefresh(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.refreshKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: delete refresh token: %w", err)
	}
	return nil
}

// Revoke implements TokenStore.
func (s *RedisStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.revokedKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// IsRevoked implements TokenStore.
func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: revocation lookup: %w", err)
	}
	return n > 0, nil
}

func decodeRefresh(payload []byte, err error) (RefreshRecord, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RefreshRecord{}, shared.ErrRefreshTokenInvalid
		}
		return RefreshRecord{}, fmt.Errorf("auth: load refresh token: %w", err)
	}
	var rec RefreshRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return RefreshRecord{}, fmt.Errorf("auth: decode refresh token: %w", err)
	}
	return rec, nil
}

// newOpaqueToken returns 32 random bytes, URL-safe encoded.
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var _ TokenStore = (*RedisStore)(nil)
