package shared

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, Pagination{Page: 1, Size: DefaultPageSize, Total: 45, TotalPages: 3}, p)
	require.Equal(t, 0, p.Offset())

	p = NewPagination(3, 1000, 450)
	require.Equal(t, MaxPageSize, p.Size)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 400, p.Offset())

	require.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
}

func TestAuditLogRow(t *testing.T) {
	_, _, err := AuditLog{Action: "USER_LOGGED_IN"}.row()
	require.ErrorIs(t, err, ErrValidation)

	meta, at, err := AuditLog{Action: "USER_LOGGED_IN", Entity: "session", EntityID: "s-1"}.row()
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(meta))
	require.Nil(t, at)

	local := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	meta, at, err = AuditLog{Action: "PERMISSION_GRANTED", Entity: "permission_grant", EntityID: "g-1",
		Meta: map[string]any{"menuId": "m-1"}, At: local}.row()
	require.NoError(t, err)
	require.JSONEq(t, `{"menuId":"m-1"}`, string(meta))
	require.NotNil(t, at)
	require.Equal(t, time.UTC, at.Location())
	require.True(t, at.Equal(local))
}

func TestIdempotencyArgs(t *testing.T) {
	_, _, err := idempotencyArgs("  ", "grants")
	require.ErrorIs(t, err, ErrValidation)
	_, _, err = idempotencyArgs(strings.Repeat("k", 129), "grants")
	require.ErrorIs(t, err, ErrValidation)
	_, _, err = idempotencyArgs("key", "")
	require.ErrorIs(t, err, ErrValidation)

	key, module, err := idempotencyArgs(" key-1 ", " grants.bulk ")
	require.NoError(t, err)
	require.Equal(t, "key-1", key)
	require.Equal(t, "grants.bulk", module)
}

func TestNilIdempotencyStore(t *testing.T) {
	var s *IdempotencyStore
	require.Error(t, s.CheckAndInsert(context.Background(), "k", "m"))
	require.NoError(t, s.Delete(context.Background(), "k", "m"))
	require.NoError(t, s.Cleanup(context.Background(), time.Hour))
}

func TestClientInfoRoundTrip(t *testing.T) {
	require.Equal(t, ClientInfo{}, ClientInfoFromContext(context.Background()))

	ctx := ContextWithClientInfo(context.Background(), ClientInfo{IP: "10.0.0.1", UserAgent: "pos"})
	require.Equal(t, ClientInfo{IP: "10.0.0.1", UserAgent: "pos"}, ClientInfoFromContext(ctx))
}
