package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/platform/db"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// ListFilter narrows grant listings. Empty fields match everything.
type ListFilter struct {
	MenuID     menus.MenuID
	TargetType TargetType
	TargetID   string
	ActiveOnly bool
}

// Repository defines persistence operations for grants.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// Create stores g as the only active grant for its (menu, target) pair,
	// deactivating any grant it supersedes.
	Create(ctx context.Context, g Grant) (Grant, error)
	Deactivate(ctx context.Context, id PermissionID, actor string, at time.Time) (Grant, error)
	Get(ctx context.Context, id PermissionID) (Grant, error)
	List(ctx context.Context, filter ListFilter, page shared.Pagination) ([]Grant, int, error)
	// LoadForTargets reads the active grants addressed to targets from a
	// single consistent snapshot.
	LoadForTargets(ctx context.Context, targets []Target) ([]Grant, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
	inTx bool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, inTx: true})
	})
}

const grantColumns = `id, menu_id, target_type, target_id, permission_type, granted_at, granted_by, expires_at, is_active, revoked_at, revoked_by`

func (r *repository) Create(ctx context.Context, g Grant) (Grant, error) {
	var created Grant
	err := r.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		tx := repo.(*repository)
		if _, err := tx.db.Exec(ctx, `UPDATE permission_grants
SET is_active = FALSE, revoked_at = $4, revoked_by = $5
WHERE menu_id = $1 AND target_type = $2 AND target_id = $3 AND is_active`,
			g.MenuID, g.TargetType, g.TargetID, g.GrantedAt, g.GrantedBy); err != nil {
			return err
		}
		row := tx.db.QueryRow(ctx, `INSERT INTO permission_grants (`+grantColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, NULL, NULL)
RETURNING `+grantColumns,
			g.ID, g.MenuID, g.TargetType, g.TargetID, g.Permission, g.GrantedAt, g.GrantedBy, g.ExpiresAt)
		var err error
		created, err = scanGrant(row)
		return err
	})
	if err != nil {
		return Grant{}, mapWriteErr("create", err)
	}
	return created, nil
}

func (r *repository) Deactivate(ctx context.Context, id PermissionID, actor string, at time.Time) (Grant, error) {
	row := r.db.QueryRow(ctx, `UPDATE permission_grants
SET is_active = FALSE, revoked_at = $2, revoked_by = $3
WHERE id = $1 AND is_active
RETURNING `+grantColumns, id, at, actor)
	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already inactive or missing; report the current state.
		return r.Get(ctx, id)
	}
	if err != nil {
		return Grant{}, mapWriteErr("deactivate", err)
	}
	return g, nil
}

func (r *repository) Get(ctx context.Context, id PermissionID) (Grant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+grantColumns+` FROM permission_grants WHERE id = $1`, id)
	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, fmt.Errorf("grants: get %s: %w", id, shared.ErrNotFound)
		}
		return Grant{}, fmt.Errorf("grants: get %s: %w", id, err)
	}
	return g, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, page shared.Pagination) ([]Grant, int, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.MenuID != "" {
		add("menu_id = $%d", filter.MenuID)
	}
	if filter.TargetType != "" {
		add("target_type = $%d", filter.TargetType)
	}
	if filter.TargetID != "" {
		add("target_id = $%d", filter.TargetID)
	}
	where := ""
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active")
	}
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM permission_grants`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("grants: count: %w", err)
	}

	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM permission_grants%s ORDER BY granted_at DESC, id LIMIT $%d OFFSET $%d`,
		grantColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("grants: list: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Grant, error) {
		return scanGrant(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("grants: list scan: %w", err)
	}
	return items, total, nil
}

func (r *repository) LoadForTargets(ctx context.Context, targets []Target) ([]Grant, error) {
	var (
		clauses []string
		args    []any
	)
	for _, t := range targets {
		if len(t.IDs) == 0 {
			continue
		}
		args = append(args, string(t.Type), t.IDs)
		clauses = append(clauses, fmt.Sprintf("(target_type = $%d AND target_id = ANY($%d))", len(args)-1, len(args)))
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + grantColumns + ` FROM permission_grants WHERE is_active AND (` + strings.Join(clauses, " OR ") + `)`

	var out []Grant
	load := func(q dbtx) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Grant, error) {
			return scanGrant(row)
		})
		return err
	}
	var err error
	if r.inTx {
		err = load(r.db)
	} else {
		err = db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error { return load(tx) })
	}
	if err != nil {
		return nil, fmt.Errorf("grants: load for targets: %w", err)
	}
	return out, nil
}

func scanGrant(row pgx.Row) (Grant, error) {
	var (
		g          Grant
		targetType string
		permission string
		expiresAt  pgtype.Timestamptz
		revokedAt  pgtype.Timestamptz
		revokedBy  pgtype.Text
	)
	if err := row.Scan(&g.ID, &g.MenuID, &targetType, &g.TargetID, &permission, &g.GrantedAt, &g.GrantedBy, &expiresAt, &g.Active, &revokedAt, &revokedBy); err != nil {
		return Grant{}, err
	}
	g.TargetType = TargetType(targetType)
	g.Permission = PermissionType(permission)
	g.GrantedAt = g.GrantedAt.UTC()
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		g.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		g.RevokedAt = &t
	}
	g.RevokedBy = revokedBy.String
	return g, nil
}

// mapWriteErr reports unique violations and serialization failures as
// shared.ErrGrantConflict; they are not retried here.
func mapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001":
			return fmt.Errorf("grants: %s: %w", op, shared.ErrGrantConflict)
		case "23503":
			return fmt.Errorf("grants: %s: %w", op, shared.ErrUnknownMenu)
		}
	}
	return fmt.Errorf("grants: %s: %w", op, err)
}

var _ Repository = (*repository)(nil)
