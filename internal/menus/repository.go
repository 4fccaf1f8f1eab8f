package menus

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads menu nodes.
type Repository interface {
	ListMenus(ctx context.Context) ([]MenuNode, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const listMenusSQL = `SELECT id, code, name, path, parent_id, menu_level, display_order, menu_type, is_active
FROM menus
ORDER BY menu_level, display_order, created_at, id`

// ListMenus returns every menu node, parents before children.
func (r *PGRepository) ListMenus(ctx context.Context) ([]MenuNode, error) {
	rows, err := r.pool.Query(ctx, listMenusSQL)
	if err != nil {
		return nil, fmt.Errorf("menus: list: %w", err)
	}
	nodes, err := pgx.CollectRows(rows, scanMenu)
	if err != nil {
		return nil, fmt.Errorf("menus: scan: %w", err)
	}
	return nodes, nil
}

func scanMenu(row pgx.CollectableRow) (MenuNode, error) {
	var (
		n        MenuNode
		path     pgtype.Text
		parentID pgtype.Text
		kind     string
	)
	if err := row.Scan(&n.ID, &n.Code, &n.Name, &path, &parentID, &n.Level, &n.DisplayOrder, &kind, &n.Active); err != nil {
		return MenuNode{}, err
	}
	n.Path = path.String
	n.Type = Type(kind)
	if parentID.Valid {
		parent := MenuID(parentID.String)
		n.ParentID = &parent
	}
	return n, nil
}

var _ Repository = (*PGRepository)(nil)
