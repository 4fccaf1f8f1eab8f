package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/retail-authz/internal/roles"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectUser = `SELECT u.id, u.username, u.password_hash, u.organization_id, u.organization_type,
       u.is_active, u.created_at, u.updated_at,
       COALESCE(array_agg(ur.role ORDER BY ur.role) FILTER (WHERE ur.role IS NOT NULL), '{}')
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id`

// FindByUsername fetches an account with its roles. Usernames compare
// case-insensitively.
func (r *Repository) FindByUsername(ctx context.Context, username string) (User, error) {
	row := r.pool.QueryRow(ctx, selectUser+`
WHERE lower(u.username) = lower($1)
GROUP BY u.id`, strings.TrimSpace(username))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: find by username: %w", err)
	}
	return user, nil
}

// ListUsers returns one page of accounts ordered by username.
func (r *Repository) ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}
	rows, err := r.pool.Query(ctx, selectUser+`
GROUP BY u.id
ORDER BY u.username
LIMIT $1 OFFSET $2`, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user     User
		orgID    *string
		rawRoles []string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &orgID, &user.OrganizationType,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &rawRoles); err != nil {
		return User{}, err
	}
	if orgID != nil {
		user.OrganizationID = *orgID
	}
	for _, raw := range rawRoles {
		role, err := roles.Parse(raw)
		if err != nil {
			return User{}, fmt.Errorf("user %s: %w", user.ID, err)
		}
		user.Roles = append(user.Roles, role)
	}
	return user, nil
}
