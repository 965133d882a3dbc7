package moderation

import "github.com/ChauDoan21165/MercyB-sub006/internal/policy"

// Match describes the worst rule violation found in a piece of text.
type Match struct {
	RuleID   string
	Category string
	Severity int
}

// MatchText scans normalized text against every rule and returns the match
// with the highest severity, or nil when the text is clean.
//
// Every rule is evaluated rather than returning on the first hit: a message
// that trips both a mild profanity rule and a slur rule must be judged by the
// slur, regardless of which rule appears first in the configuration. Ties on
// severity keep the rule encountered first in configuration order.
func MatchText(normalized string, rules []*policy.Rule) *Match {
	if normalized == "" {
		return nil
	}

	var best *Match
	for _, rule := range rules {
		if best != nil && rule.Severity <= best.Severity {
			continue
		}
		if rule.Matches(normalized) {
			best = &Match{
				RuleID:   rule.ID,
				Category: rule.Category,
				Severity: rule.Severity,
			}
		}
	}
	return best
}
