package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tableside/api/internal/database"
	"github.com/tableside/api/internal/enum"
)

const maxSessionOpenRetries = 3

// SessionStore defines the DB methods needed to open and close table sessions.
// Satisfied by *database.Queries (and its WithTx variant).
type SessionStore interface {
	GetTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	GetOpenSessionByTable(ctx context.Context, tableID uuid.UUID) (database.TableSession, error)
	CreateSession(ctx context.Context, tableID uuid.UUID) (database.TableSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (database.TableSession, error)
	CloseSession(ctx context.Context, id uuid.UUID) (database.TableSession, error)
}

// NewSessionStore creates a SessionStore from a DBTX (pool or tx).
type NewSessionStore func(db database.DBTX) SessionStore

// SessionService owns table session lookup and creation.
type SessionService struct {
	pool     TxBeginner
	newStore NewSessionStore
}

// NewSessionService creates a new SessionService.
func NewSessionService(pool TxBeginner, newStore NewSessionStore) *SessionService {
	return &SessionService{pool: pool, newStore: newStore}
}

// GetOrOpenSession returns the table's OPEN session, creating one if none
// exists. Concurrent opens for the same table collide on the partial unique
// index; the loser retries and picks up the winner's session.
func (s *SessionService) GetOrOpenSession(ctx context.Context, tableID uuid.UUID) (database.TableSession, error) {
	var lastErr error
	for attempt := 0; attempt < maxSessionOpenRetries; attempt++ {
		session, err := s.getOrOpenTx(ctx, tableID)
		if err == nil {
			return session, nil
		}
		if isUniqueViolation(err, constraintOneOpenSession) {
			lastErr = err
			continue
		}
		return database.TableSession{}, err
	}
	return database.TableSession{}, lastErr
}

func (s *SessionService) getOrOpenTx(ctx context.Context, tableID uuid.UUID) (database.TableSession, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.TableSession{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	table, err := store.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.TableSession{}, ErrTableNotFound
		}
		return database.TableSession{}, fmt.Errorf("get table: %w", err)
	}
	if !table.IsActive {
		return database.TableSession{}, ErrTableInactive
	}

	session, err := store.GetOpenSessionByTable(ctx, tableID)
	if err == nil {
		return session, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.TableSession{}, fmt.Errorf("get open session: %w", err)
	}

	session, err = store.CreateSession(ctx, tableID)
	if err != nil {
		return database.TableSession{}, fmt.Errorf("create session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return database.TableSession{}, fmt.Errorf("commit tx: %w", err)
	}
	return session, nil
}

// GetSession returns a session by id.
func (s *SessionService) GetSession(ctx context.Context, sessionID uuid.UUID) (database.TableSession, error) {
	var session database.TableSession
	err := readTx(ctx, s.pool, s.newStore, func(store SessionStore) error {
		var err error
		session, err = store.GetSession(ctx, sessionID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return nil
	})
	return session, err
}

// CloseSession marks an OPEN session CLOSED and stamps ended_at.
func (s *SessionService) CloseSession(ctx context.Context, sessionID uuid.UUID) (database.TableSession, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.TableSession{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	session, err := closeSession(ctx, s.newStore(tx), sessionID)
	if err != nil {
		return database.TableSession{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.TableSession{}, fmt.Errorf("commit tx: %w", err)
	}
	return session, nil
}

type sessionCloser interface {
	GetSession(ctx context.Context, id uuid.UUID) (database.TableSession, error)
	CloseSession(ctx context.Context, id uuid.UUID) (database.TableSession, error)
}

// closeSession runs inside the caller's transaction. The payment reconciler
// shares it so a paid order can never leave its session OPEN.
func closeSession(ctx context.Context, store sessionCloser, sessionID uuid.UUID) (database.TableSession, error) {
	session, err := store.CloseSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.TableSession{}, fmt.Errorf("close session: %w", err)
	}
	// Zero rows: either missing or no longer OPEN.
	current, err := store.GetSession(ctx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return database.TableSession{}, ErrSessionNotFound
	}
	if err != nil {
		return database.TableSession{}, fmt.Errorf("get session: %w", err)
	}
	if current.Status != enum.SessionStatusOpen {
		return database.TableSession{}, ErrSessionClosed
	}
	return database.TableSession{}, fmt.Errorf("close session: %w", ErrSessionClosed)
}
