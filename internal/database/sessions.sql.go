package database

import (
	"context"

	"github.com/google/uuid"
)

const sessionColumns = `id, table_id, status, opened_at, ended_at`

func scanSession(row interface{ Scan(...any) error }) (TableSession, error) {
	var i TableSession
	err := row.Scan(
		&i.ID,
		&i.TableID,
		&i.Status,
		&i.OpenedAt,
		&i.EndedAt,
	)
	return i, err
}

const getOpenSessionByTable = `-- name: GetOpenSessionByTable :one
SELECT ` + sessionColumns + ` FROM table_sessions
WHERE table_id = $1 AND status = 'OPEN'
`

func (q *Queries) GetOpenSessionByTable(ctx context.Context, tableID uuid.UUID) (TableSession, error) {
	return scanSession(q.db.QueryRow(ctx, getOpenSessionByTable, tableID))
}

const createSession = `-- name: CreateSession :one
INSERT INTO table_sessions (table_id, status)
VALUES ($1, 'OPEN')
RETURNING ` + sessionColumns + `
`

// CreateSession fails with 23505 on table_sessions_one_open_per_table when
// the table already has an OPEN session.
func (q *Queries) CreateSession(ctx context.Context, tableID uuid.UUID) (TableSession, error) {
	return scanSession(q.db.QueryRow(ctx, createSession, tableID))
}

const getSession = `-- name: GetSession :one
SELECT ` + sessionColumns + ` FROM table_sessions
WHERE id = $1
`

func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (TableSession, error) {
	return scanSession(q.db.QueryRow(ctx, getSession, id))
}

const getSessionForShare = `-- name: GetSessionForShare :one
SELECT ` + sessionColumns + ` FROM table_sessions
WHERE id = $1
FOR SHARE
`

// GetSessionForShare blocks a concurrent close until the caller's
// transaction ends, while letting parallel cart submissions proceed.
func (q *Queries) GetSessionForShare(ctx context.Context, id uuid.UUID) (TableSession, error) {
	return scanSession(q.db.QueryRow(ctx, getSessionForShare, id))
}

const closeSession = `-- name: CloseSession :one
UPDATE table_sessions
SET status = 'CLOSED', ended_at = now()
WHERE id = $1 AND status = 'OPEN'
RETURNING ` + sessionColumns + `
`

func (q *Queries) CloseSession(ctx context.Context, id uuid.UUID) (TableSession, error) {
	return scanSession(q.db.QueryRow(ctx, closeSession, id))
}
