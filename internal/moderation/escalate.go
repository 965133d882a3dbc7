package moderation

import (
	"fmt"

	"github.com/ChauDoan21165/MercyB-sub006/internal/policy"
)

// EscalationAction maps the per-user violation count inside the trailing
// window (including the violation being recorded) to an enforcement action:
//
//	CLEAN --violation--> WARNED --violation in window--> SUSPENDED
//
// Counts below WarnThreshold return ActionAllow: the violation is recorded
// but not enforced. With the default warn_threshold of 1 every violation
// warns; operators open a grace tier by raising it. There is no transition
// back to CLEAN: old events age out of the window naturally, but a suspension
// is a one-way gate that only an administrative action clears.
func EscalationAction(windowCount int, pol *policy.Policy) Action {
	switch {
	case windowCount >= pol.SuspendThreshold:
		return ActionSuspend
	case windowCount >= pol.WarnThreshold:
		return ActionWarn
	default:
		return ActionAllow
	}
}

// Bilingual user-facing message templates. The warn template is annotated
// with the running count over the number of warnings tolerated before
// suspension, e.g. "1/1 violations".
const (
	warnTemplateEN = "Warning: your message violates the community guidelines (%d/%d violations)."
	warnTemplateVI = "Cảnh báo: tin nhắn của bạn vi phạm quy tắc cộng đồng (%d/%d vi phạm)."

	suspendTemplateEN = "Your account has been suspended for repeated violations (%d in the review window). Contact a moderator to appeal."
	suspendTemplateVI = "Tài khoản của bạn đã bị tạm khóa do vi phạm nhiều lần (%d vi phạm). Vui lòng liên hệ quản trị viên để khiếu nại."
)

// DecisionMessage renders the bilingual user-facing message for an action.
func DecisionMessage(action Action, windowCount int, pol *policy.Policy) string {
	switch action {
	case ActionWarn:
		maxWarnings := pol.SuspendThreshold - 1
		return fmt.Sprintf(warnTemplateEN, windowCount, maxWarnings) +
			" / " + fmt.Sprintf(warnTemplateVI, windowCount, maxWarnings)
	case ActionSuspend:
		return fmt.Sprintf(suspendTemplateEN, windowCount) +
			" / " + fmt.Sprintf(suspendTemplateVI, windowCount)
	default:
		return ""
	}
}
