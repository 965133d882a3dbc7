// Package moderation implements the MercyB real-time content moderation and
// escalation engine. It inspects user-submitted text against the configured
// rule set, counts violations inside a trailing time window, decides the
// enforcement action (warn or suspend), and durably records the decision.
package moderation

import "time"

// Language identifies which rule set a check runs against.
type Language string

const (
	LangEN Language = "en"
	LangVI Language = "vi"
)

// Action is the enforcement outcome of a moderation decision.
type Action string

const (
	ActionAllow   Action = "allow"
	ActionWarn    Action = "warn"
	ActionSuspend Action = "suspend"
)

// CheckRequest is the inbound moderation check submitted by the chat layer.
type CheckRequest struct {
	UserID      string   `json:"user_id"`
	Text        string   `json:"text"`
	Language    Language `json:"language,omitempty"`     // defaults to "en"
	RoomContext string   `json:"room_context,omitempty"` // e.g. "vip3-room"
}

// DecisionResult is returned to the caller for every check. It is transient:
// only ViolationEvent and Status are persisted.
type DecisionResult struct {
	Allowed       bool   `json:"allowed"`
	Action        Action `json:"action"`
	Message       string `json:"message,omitempty"` // bilingual EN/VI
	Severity      int    `json:"severity"`          // 0 when allowed
	MatchedRuleID string `json:"matched_rule_id,omitempty"`
	Suspended     bool   `json:"suspended"`
	WindowCount   int    `json:"window_count,omitempty"`
}

// ViolationEvent is the append-only record of a single detected violation.
// Events are never mutated or deleted by this engine.
type ViolationEvent struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	RuleID         string    `json:"rule_id"`
	Category       string    `json:"category"`
	Severity       int       `json:"severity"`
	RoomContext    string    `json:"room_context,omitempty"`
	ContentExcerpt string    `json:"content_excerpt"` // bounded, see MaxExcerptChars
	Action         Action    `json:"action"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Status is the durable per-user moderation record. CumulativeScore and
// TotalViolations are monotonic audit totals over the whole account history;
// the escalation decision is driven by the windowed event count, not by them.
type Status struct {
	UserID          string     `json:"user_id"`
	CumulativeScore int        `json:"cumulative_score"`
	TotalViolations int        `json:"total_violations"`
	LastViolationAt *time.Time `json:"last_violation_at,omitempty"`
	IsSuspended     bool       `json:"is_suspended"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SuspensionAlert is the payload published for human moderator review when a
// user is suspended.
type SuspensionAlert struct {
	UserID         string    `json:"user_id"`
	ViolationCount int       `json:"violation_count"` // count inside the window
	LastExcerpt    string    `json:"last_excerpt"`
	RoomContext    string    `json:"room_context,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
