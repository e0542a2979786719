package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getMenuItem = `-- name: GetMenuItem :one
SELECT id, name, description, price, is_available, created_at
FROM menu_items
WHERE id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, id)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.Price,
		&i.IsAvailable,
		&i.CreatedAt,
	)
	return i, err
}

const getModifierOption = `-- name: GetModifierOption :one
SELECT o.id, o.group_id, o.name, o.price_delta, g.menu_item_id
FROM modifier_options o
JOIN modifier_groups g ON g.id = o.group_id
WHERE o.id = $1
`

type GetModifierOptionRow struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	Name       string
	PriceDelta pgtype.Numeric
	MenuItemID uuid.UUID
}

func (q *Queries) GetModifierOption(ctx context.Context, id uuid.UUID) (GetModifierOptionRow, error) {
	row := q.db.QueryRow(ctx, getModifierOption, id)
	var i GetModifierOptionRow
	err := row.Scan(
		&i.ID,
		&i.GroupID,
		&i.Name,
		&i.PriceDelta,
		&i.MenuItemID,
	)
	return i, err
}

const listAvailableMenuItems = `-- name: ListAvailableMenuItems :many
SELECT id, name, description, price, is_available, created_at
FROM menu_items
WHERE is_available = TRUE
ORDER BY name, id
`

func (q *Queries) ListAvailableMenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listAvailableMenuItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		var i MenuItem
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Description,
			&i.Price,
			&i.IsAvailable,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listMenuModifierOptions = `-- name: ListMenuModifierOptions :many
SELECT g.menu_item_id, g.id, g.name, o.id, o.name, o.price_delta
FROM modifier_groups g
JOIN modifier_options o ON o.group_id = g.id
JOIN menu_items mi ON mi.id = g.menu_item_id
WHERE mi.is_available = TRUE
ORDER BY g.menu_item_id, g.name, g.id, o.name, o.id
`

type ListMenuModifierOptionsRow struct {
	MenuItemID uuid.UUID
	GroupID    uuid.UUID
	GroupName  string
	OptionID   uuid.UUID
	OptionName string
	PriceDelta pgtype.Numeric
}

func (q *Queries) ListMenuModifierOptions(ctx context.Context) ([]ListMenuModifierOptionsRow, error) {
	rows, err := q.db.Query(ctx, listMenuModifierOptions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListMenuModifierOptionsRow
	for rows.Next() {
		var i ListMenuModifierOptionsRow
		if err := rows.Scan(
			&i.MenuItemID,
			&i.GroupID,
			&i.GroupName,
			&i.OptionID,
			&i.OptionName,
			&i.PriceDelta,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
