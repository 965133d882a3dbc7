package moderation

import (
	"context"
	"time"
)

// Tx is the set of store operations available inside a per-user transaction.
type Tx interface {
	// GetStatus returns the user's moderation status, or nil if the user has
	// no violation history yet.
	GetStatus(ctx context.Context, userID string) (*Status, error)

	// UpsertStatus writes the user's moderation status.
	UpsertStatus(ctx context.Context, status Status) error

	// AppendViolation records one violation event. Events are append-only.
	AppendViolation(ctx context.Context, event ViolationEvent) error

	// CountViolationsSince returns the number of the user's violation events
	// with occurred_at >= since.
	CountViolationsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Store is the durable moderation state store. Implementations must be safe
// for concurrent use.
type Store interface {
	Tx

	// Update runs fn inside a transaction serialized per user: two concurrent
	// Updates for the same user never interleave, so the read-modify-write of
	// the violation window and status is race-free, and the event append and
	// status upsert commit as a single unit or not at all.
	Update(ctx context.Context, userID string, fn func(tx Tx) error) error
}

// Alerter emits suspension alerts for human moderator review. Emission is
// fire-and-forget from the engine's point of view: failures are logged, never
// propagated to the caller.
type Alerter interface {
	EmitSuspensionAlert(ctx context.Context, alert SuspensionAlert) error
}

// SuspensionCache mirrors suspension flags into a fast store the chat layer
// can consult on its hot path. Best-effort: the durable status row remains
// authoritative.
type SuspensionCache interface {
	Suspend(ctx context.Context, userID, reason string) error
}
