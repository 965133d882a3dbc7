// Package violation provides storage for the moderation engine's durable
// state: the append-only violation event log and the per-user moderation
// status row. The PostgreSQL store serializes the engine's read-modify-write
// per user with a row lock; the in-memory store mirrors the same contract for
// tests and local development.
package violation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ChauDoan21165/MercyB-sub006/internal/moderation"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements moderation.Store on PostgreSQL.
type PostgresStore struct {
	pgOps
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{pgOps: pgOps{q: db}, db: db}
}

// Update runs fn inside a transaction holding a row lock on the user's
// moderation_status row. A placeholder row is inserted first so the lock
// exists even for a user with no prior history; if fn fails, the whole
// transaction (placeholder included) rolls back. Two concurrent Updates for
// the same user serialize on the row lock, which is what keeps the window
// count read and the status write race-free.
func (s *PostgresStore) Update(ctx context.Context, userID string, fn func(tx moderation.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("violation: begin tx: %w", err)
	}
	defer tx.Rollback()

	const ensure = `
		INSERT INTO moderation_status (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, ensure, userID); err != nil {
		return fmt.Errorf("violation: ensure status row: %w", err)
	}

	const lock = `SELECT user_id FROM moderation_status WHERE user_id = $1 FOR UPDATE`
	var locked string
	if err := tx.QueryRowContext(ctx, lock, userID).Scan(&locked); err != nil {
		return fmt.Errorf("violation: lock status row: %w", err)
	}

	if err := fn(pgTx{pgOps{q: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("violation: commit: %w", err)
	}
	return nil
}

// pgTx exposes the store operations bound to an open transaction.
type pgTx struct {
	pgOps
}

// pgOps implements the moderation.Tx operations over any querier.
type pgOps struct {
	q querier
}

// GetStatus returns the user's status row, or nil if the user has never
// violated. A placeholder row with zero violations counts as no history.
func (o pgOps) GetStatus(ctx context.Context, userID string) (*moderation.Status, error) {
	const query = `
		SELECT user_id, cumulative_score, total_violations, last_violation_at, is_suspended, updated_at
		FROM moderation_status
		WHERE user_id = $1 AND total_violations > 0`

	var (
		status moderation.Status
		lastAt sql.NullTime
	)
	err := o.q.QueryRowContext(ctx, query, userID).Scan(
		&status.UserID,
		&status.CumulativeScore,
		&status.TotalViolations,
		&lastAt,
		&status.IsSuspended,
		&status.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("violation: get status: %w", err)
	}
	if lastAt.Valid {
		status.LastViolationAt = &lastAt.Time
	}
	return &status, nil
}

// UpsertStatus writes the user's status row.
func (o pgOps) UpsertStatus(ctx context.Context, status moderation.Status) error {
	const query = `
		INSERT INTO moderation_status (user_id, cumulative_score, total_violations, last_violation_at, is_suspended, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			cumulative_score  = EXCLUDED.cumulative_score,
			total_violations  = EXCLUDED.total_violations,
			last_violation_at = EXCLUDED.last_violation_at,
			is_suspended      = EXCLUDED.is_suspended,
			updated_at        = EXCLUDED.updated_at`

	var lastAt sql.NullTime
	if status.LastViolationAt != nil {
		lastAt = sql.NullTime{Time: *status.LastViolationAt, Valid: true}
	}

	_, err := o.q.ExecContext(ctx, query,
		status.UserID,
		status.CumulativeScore,
		status.TotalViolations,
		lastAt,
		status.IsSuspended,
		status.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("violation: upsert status: %w", err)
	}
	return nil
}

// AppendViolation inserts one violation event. Events are append-only: there
// is no update or delete path in this store.
func (o pgOps) AppendViolation(ctx context.Context, event moderation.ViolationEvent) error {
	const query = `
		INSERT INTO violation_events (id, user_id, rule_id, category, severity, room_context, content_excerpt, action, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := o.q.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.RuleID,
		event.Category,
		event.Severity,
		nullString(event.RoomContext),
		event.ContentExcerpt,
		string(event.Action),
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("violation: insert event: %w", err)
	}
	return nil
}

// CountViolationsSince returns how many of the user's violation events fall
// inside the trailing window starting at since.
func (o pgOps) CountViolationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM violation_events
		WHERE user_id = $1
		  AND occurred_at >= $2`

	var count int
	if err := o.q.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("violation: count since: %w", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
