package menu

import (
	"context"
	"database/sql"
	"fmt"

	"orderflow-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository reads the menu. Menu rows are never written from here.
type Repository interface {
	List(ctx context.Context, category string) ([]MenuItem, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]MenuItem, error)
	Categories(ctx context.Context) ([]string, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, category string) ([]MenuItem, error) {
	query := `SELECT id, name, price, category FROM menu_items`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY category, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to list menu",
			zap.String("layer", "repository"),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list menu: %w", err)
	}
	defer rows.Close()

	items := []MenuItem{}
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Category); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *repository) GetByIDs(ctx context.Context, ids []int64) (map[int64]MenuItem, error) {
	result := make(map[int64]MenuItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, price, category FROM menu_items WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("get menu items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Category); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		result[m.ID] = m
	}
	return result, rows.Err()
}

func (r *repository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT category FROM menu_items ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
