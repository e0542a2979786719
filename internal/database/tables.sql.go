package database

import (
	"context"

	"github.com/google/uuid"
)

const getTable = `-- name: GetTable :one
SELECT id, name, capacity, assigned_staff_id, is_active, created_at, updated_at
FROM dining_tables
WHERE id = $1
`

func (q *Queries) GetTable(ctx context.Context, id uuid.UUID) (DiningTable, error) {
	row := q.db.QueryRow(ctx, getTable, id)
	var i DiningTable
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Capacity,
		&i.AssignedStaffID,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
