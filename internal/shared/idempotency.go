package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// ErrIdempotencyConflict indicates the key was already used for the module.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore remembers request keys per module in idempotency_keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

func idempotencyArgs(key, module string) (string, string, error) {
	key, module = strings.TrimSpace(key), strings.TrimSpace(module)
	if key == "" {
		return "", "", fmt.Errorf("%w: idempotency key required", ErrValidation)
	}
	if len(key) > 128 {
		return "", "", fmt.Errorf("%w: idempotency key longer than 128 characters", ErrValidation)
	}
	if module == "" {
		return "", "", fmt.Errorf("%w: idempotency module required", ErrValidation)
	}
	return key, module, nil
}

// CheckAndInsert claims key for module. A key claimed earlier yields
// ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return errors.New("shared: idempotency store not initialised")
	}
	key, module, err := idempotencyArgs(key, module)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, s.now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: key %q", ErrIdempotencyConflict, key)
		}
		return fmt.Errorf("shared: idempotency claim: %w", err)
	}
	return nil
}

// Delete releases a key so a failed request can be retried by the caller.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	key, module, err := idempotencyArgs(key, module)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module); err != nil {
		return fmt.Errorf("shared: idempotency release: %w", err)
	}
	return nil
}

// Cleanup removes keys claimed before now minus olderThan.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if olderThan <= 0 {
		return fmt.Errorf("%w: retention must be positive", ErrValidation)
	}
	cutoff := s.now().Add(-olderThan).UTC()
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff); err != nil {
		return fmt.Errorf("shared: idempotency cleanup: %w", err)
	}
	return nil
}
