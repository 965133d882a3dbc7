// Package policy loads and compiles the moderation policy: the ordered rule
// set, the severity scoring table, the violation window, and the escalation
// thresholds. A Policy is immutable after Load; operators tune enforcement by
// editing the JSON policy file and reloading, never by redeploying.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// MinSeverity and MaxSeverity bound the severity scale used by rules
	// and the scoring table.
	MinSeverity = 1
	MaxSeverity = 5

	// DefaultWindowHours is the trailing window over which violations are
	// counted for escalation.
	DefaultWindowHours = 24

	// Default escalation thresholds: first violation in the window warns,
	// the second suspends.
	DefaultWarnThreshold    = 1
	DefaultSuspendThreshold = 2
)

// defaultWeights maps severity 1..5 to its score weight (index 0 unused).
var defaultWeights = [MaxSeverity + 1]int{0, 1, 1, 2, 2, 3}

// Rule is a single language-tagged violation rule. Patterns are regular
// expressions compiled case-insensitively at load time; a leading or trailing
// `\b` is rewritten into a Unicode-aware word edge so patterns anchored on
// accented letters match.
type Rule struct {
	ID       string   `json:"id"`
	Language string   `json:"language"`
	Category string   `json:"category"`
	Severity int      `json:"severity"`
	Patterns []string `json:"patterns"`

	compiled []*regexp.Regexp
}

// Matches reports whether any of the rule's patterns match the given
// (already normalized) text.
func (r *Rule) Matches(text string) bool {
	for _, re := range r.compiled {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Config is the raw JSON policy document.
type Config struct {
	Version          string         `json:"version"`
	WindowHours      int            `json:"window_hours"`
	WarnThreshold    int            `json:"warn_threshold"`
	SuspendThreshold int            `json:"suspend_threshold"`
	SeverityWeights  map[string]int `json:"severity_weights"` // "1".."5" -> weight
	Rules            []Rule         `json:"rules"`
}

// Policy is the compiled, immutable form of a Config. Safe for unlimited
// concurrent readers; hot reload swaps the whole value atomically.
type Policy struct {
	Version          string
	Window           time.Duration
	WarnThreshold    int
	SuspendThreshold int

	weights [MaxSeverity + 1]int
	rules   []*Rule
	byLang  map[string][]*Rule
}

// Load reads, validates, and compiles a policy file. Any error here is fatal
// at startup: the service must refuse to run with a partial policy.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy: %s: %w", path, err)
	}
	return p, nil
}

// Parse validates and compiles a raw JSON policy document.
func Parse(data []byte) (*Policy, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return Compile(cfg)
}

// Compile turns a Config into an immutable Policy, filling defaults and
// compiling every rule pattern. It rejects the whole document on the first
// invalid rule rather than running with a partial rule set.
func Compile(cfg Config) (*Policy, error) {
	p := &Policy{
		Version:          cfg.Version,
		WarnThreshold:    cfg.WarnThreshold,
		SuspendThreshold: cfg.SuspendThreshold,
		byLang:           make(map[string][]*Rule),
	}

	hours := cfg.WindowHours
	if hours == 0 {
		hours = DefaultWindowHours
	}
	if hours < 0 {
		return nil, fmt.Errorf("window_hours must be positive, got %d", hours)
	}
	p.Window = time.Duration(hours) * time.Hour

	if p.WarnThreshold == 0 {
		p.WarnThreshold = DefaultWarnThreshold
	}
	if p.SuspendThreshold == 0 {
		p.SuspendThreshold = DefaultSuspendThreshold
	}
	if p.WarnThreshold < 1 || p.SuspendThreshold <= p.WarnThreshold {
		return nil, fmt.Errorf("invalid thresholds: warn=%d suspend=%d", p.WarnThreshold, p.SuspendThreshold)
	}

	p.weights = defaultWeights
	for key, weight := range cfg.SeverityWeights {
		sev, err := strconv.Atoi(key)
		if err != nil || sev < MinSeverity || sev > MaxSeverity {
			return nil, fmt.Errorf("severity_weights: invalid severity key %q", key)
		}
		if weight <= 0 {
			return nil, fmt.Errorf("severity_weights: weight for severity %d must be positive, got %d", sev, weight)
		}
		p.weights[sev] = weight
	}

	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("policy has no rules")
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for i := range cfg.Rules {
		rule := cfg.Rules[i]
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("rule %q: duplicate id", rule.ID)
		}
		seen[rule.ID] = true
		if rule.Language == "" {
			return nil, fmt.Errorf("rule %q: missing language", rule.ID)
		}
		if rule.Severity < MinSeverity || rule.Severity > MaxSeverity {
			return nil, fmt.Errorf("rule %q: severity %d out of range [%d,%d]", rule.ID, rule.Severity, MinSeverity, MaxSeverity)
		}
		if len(rule.Patterns) == 0 {
			return nil, fmt.Errorf("rule %q: no patterns", rule.ID)
		}

		rule.compiled = make([]*regexp.Regexp, 0, len(rule.Patterns))
		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile(caseInsensitive(unicodeBoundaries(pattern)))
			if err != nil {
				return nil, fmt.Errorf("rule %q: pattern %q: %w", rule.ID, pattern, err)
			}
			rule.compiled = append(rule.compiled, re)
		}

		p.rules = append(p.rules, &rule)
		p.byLang[rule.Language] = append(p.byLang[rule.Language], &rule)
	}

	return p, nil
}

// caseInsensitive prepends the (?i) flag unless the pattern already sets it.
func caseInsensitive(pattern string) string {
	if strings.HasPrefix(pattern, "(?i") {
		return pattern
	}
	return "(?i)" + pattern
}

// Unicode-aware word edges. RE2's \b is an ASCII word boundary, so a pattern
// anchored on an accented letter (đ, ế, ĩ — most of the Vietnamese rule set)
// would never match. RE2 has no lookaround either, so the edges are expressed
// as consuming groups: start of text or a non-letter/digit/underscore.
const (
	boundaryStart = `(?:^|[^\p{L}\p{N}_])`
	boundaryEnd   = `(?:$|[^\p{L}\p{N}_])`
)

// unicodeBoundaries rewrites a leading or trailing \b into the Unicode-aware
// edge groups above. Interior \b occurrences are left alone and keep RE2's
// ASCII semantics; rule patterns anchor at the edges only.
func unicodeBoundaries(pattern string) string {
	if strings.HasPrefix(pattern, `\b`) {
		pattern = boundaryStart + pattern[2:]
	}
	if strings.HasSuffix(pattern, `\b`) && !strings.HasSuffix(pattern, `\\b`) {
		pattern = pattern[:len(pattern)-len(`\b`)] + boundaryEnd
	}
	return pattern
}

// RulesFor returns the rules for a language in configuration order. The
// returned slice must not be modified.
func (p *Policy) RulesFor(language string) []*Rule {
	return p.byLang[language]
}

// Rules returns every rule in configuration order.
func (p *Policy) Rules() []*Rule {
	return p.rules
}

// Weight returns the scoring weight for a severity level. Severities outside
// the scale weigh zero.
func (p *Policy) Weight(severity int) int {
	if severity < MinSeverity || severity > MaxSeverity {
		return 0
	}
	return p.weights[severity]
}
