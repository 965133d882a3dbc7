package moderation

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ChauDoan21165/MercyB-sub006/internal/metrics"
	"github.com/ChauDoan21165/MercyB-sub006/internal/policy"
)

// DefaultStoreTimeout bounds every store interaction of a single decision.
// A store that cannot answer inside the timeout fails the decision closed.
const DefaultStoreTimeout = 3 * time.Second

// Engine is the decision orchestrator. It holds the immutable policy (swapped
// atomically on reload), the durable state store, and the optional alert and
// cache collaborators. Safe for unlimited concurrent Decide calls.
type Engine struct {
	policy  atomic.Pointer[policy.Policy]
	store   Store
	alerter Alerter
	cache   SuspensionCache

	storeTimeout time.Duration
	now          func() time.Time
}

// NewEngine creates an engine. alerter and cache may be nil, in which case
// suspension alerts and cache mirroring are skipped.
func NewEngine(pol *policy.Policy, store Store, alerter Alerter, cache SuspensionCache) *Engine {
	e := &Engine{
		store:        store,
		alerter:      alerter,
		cache:        cache,
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
	}
	e.policy.Store(pol)
	return e
}

// SetStoreTimeout overrides the per-decision store timeout.
func (e *Engine) SetStoreTimeout(d time.Duration) {
	if d > 0 {
		e.storeTimeout = d
	}
}

// Policy returns the currently active policy.
func (e *Engine) Policy() *policy.Policy {
	return e.policy.Load()
}

// SetPolicy atomically swaps in a new policy. In-flight decisions keep the
// policy they started with.
func (e *Engine) SetPolicy(pol *policy.Policy) {
	e.policy.Store(pol)
	log.Printf("[engine] policy swapped version=%s rules=%d", pol.Version, len(pol.Rules()))
}

// Decide runs one moderation decision: validate, normalize, match, escalate,
// persist, alert. Clean text returns allowed with zero side effects. On a
// match, the violation event and the updated status are committed as one unit
// inside a per-user serialized transaction; only then is the suspension alert
// emitted (best-effort).
//
// Errors: ErrInvalidInput before any side effect, ErrStoreUnavailable when
// persistence fails (fail closed — the caller must not treat this as allow).
func (e *Engine) Decide(ctx context.Context, req CheckRequest) (*DecisionResult, error) {
	start := e.now()
	if err := ValidateRequest(&req); err != nil {
		return nil, err
	}

	pol := e.policy.Load()
	match := MatchText(Normalize(req.Text), pol.RulesFor(string(req.Language)))
	if match == nil {
		metrics.DecisionsTotal.WithLabelValues(string(ActionAllow)).Inc()
		metrics.DecisionLatency.Observe(time.Since(start).Seconds())
		return &DecisionResult{Allowed: true, Action: ActionAllow}, nil
	}

	now := e.now()
	event := ViolationEvent{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		RuleID:         match.RuleID,
		Category:       match.Category,
		Severity:       match.Severity,
		RoomContext:    req.RoomContext,
		ContentExcerpt: Excerpt(req.Text),
		OccurredAt:     now,
	}

	var result *DecisionResult
	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	err := e.store.Update(storeCtx, req.UserID, func(tx Tx) error {
		prior, err := tx.CountViolationsSince(storeCtx, req.UserID, now.Add(-pol.Window))
		if err != nil {
			return fmt.Errorf("count window: %w", err)
		}
		windowCount := prior + 1 // include the violation being recorded

		action := EscalationAction(windowCount, pol)
		event.Action = action

		status, err := tx.GetStatus(storeCtx, req.UserID)
		if err != nil {
			return fmt.Errorf("get status: %w", err)
		}
		if status == nil {
			status = &Status{UserID: req.UserID}
		}
		status.CumulativeScore += pol.Weight(match.Severity)
		status.TotalViolations++
		status.LastViolationAt = &event.OccurredAt
		if action == ActionSuspend {
			status.IsSuspended = true
		}
		status.UpdatedAt = now

		if err := tx.AppendViolation(storeCtx, event); err != nil {
			return fmt.Errorf("append violation: %w", err)
		}
		if err := tx.UpsertStatus(storeCtx, *status); err != nil {
			return fmt.Errorf("upsert status: %w", err)
		}

		result = &DecisionResult{
			Allowed:       action == ActionAllow, // grace tier below warn_threshold
			Action:        action,
			Message:       DecisionMessage(action, windowCount, pol),
			Severity:      match.Severity,
			MatchedRuleID: match.RuleID,
			Suspended:     status.IsSuspended,
			WindowCount:   windowCount,
		}
		return nil
	})
	if err != nil {
		metrics.StoreFailures.Inc()
		return nil, fmt.Errorf("%w: user %s: %v", ErrStoreUnavailable, req.UserID, err)
	}

	log.Printf("[engine] VIOLATION user=%s rule=%s severity=%d action=%s window_count=%d room=%s",
		req.UserID, match.RuleID, match.Severity, result.Action, result.WindowCount, req.RoomContext)

	metrics.DecisionsTotal.WithLabelValues(string(result.Action)).Inc()
	metrics.ViolationsTotal.WithLabelValues(fmt.Sprint(match.Severity), string(req.Language)).Inc()

	if result.Action == ActionSuspend {
		e.onSuspend(ctx, req, event, result.WindowCount)
	}

	metrics.DecisionLatency.Observe(time.Since(start).Seconds())
	return result, nil
}

// onSuspend mirrors the suspension into the cache and emits the moderator
// alert. Both are best-effort: the decision is already committed and stands
// regardless.
func (e *Engine) onSuspend(ctx context.Context, req CheckRequest, event ViolationEvent, windowCount int) {
	metrics.SuspensionsTotal.Inc()

	if e.cache != nil {
		if err := e.cache.Suspend(ctx, req.UserID, event.Category); err != nil {
			log.Printf("[engine] suspension cache write failed user=%s: %v", req.UserID, err)
		}
	}

	if e.alerter == nil {
		return
	}
	alert := SuspensionAlert{
		UserID:         req.UserID,
		ViolationCount: windowCount,
		LastExcerpt:    event.ContentExcerpt,
		RoomContext:    req.RoomContext,
		OccurredAt:     event.OccurredAt,
	}
	if err := e.alerter.EmitSuspensionAlert(ctx, alert); err != nil {
		metrics.AlertFailures.Inc()
		log.Printf("[engine] suspension alert failed user=%s: %v", req.UserID, err)
	}
}
