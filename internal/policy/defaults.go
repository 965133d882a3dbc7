package policy

// Default returns the built-in policy used when no policy file is configured.
// It mirrors the shipped mercyb-policy.json: English and Vietnamese rule sets
// across the profanity, harassment, hate, and threat categories. Production
// deployments are expected to load a versioned policy file instead.
func Default() *Policy {
	p, err := Compile(Config{
		Version: "builtin-1",
		Rules:   defaultRules(),
	})
	if err != nil {
		// The built-in rules are covered by tests; a compile failure here
		// is a programming error, not a runtime condition.
		panic("policy: built-in rules failed to compile: " + err.Error())
	}
	return p
}

func defaultRules() []Rule {
	return []Rule{
		// --- English ---
		{
			ID:       "en-profanity-mild",
			Language: "en",
			Category: "profanity",
			Severity: 2,
			Patterns: []string{
				`\b(bastard|jackass|douchebag)\b`,
				`\bpiss off\b`,
			},
		},
		{
			ID:       "en-profanity-strong",
			Language: "en",
			Category: "profanity",
			Severity: 3,
			Patterns: []string{
				`\bf[u\*@#!]+ck\w*\b`,
				`\bf[\*@#!]+ing\b`,
				`\bsh[i\*@!1]t\w*\b`,
				`\basshole\b`,
			},
		},
		{
			ID:       "en-harassment",
			Language: "en",
			Category: "harassment",
			Severity: 4,
			Patterns: []string{
				`\bkill yourself\b`,
				`\bgo die\b`,
				`\byou (are|r) (worthless|pathetic|trash)\b`,
			},
		},
		{
			ID:       "en-hate",
			Language: "en",
			Category: "hate",
			Severity: 5,
			Patterns: []string{
				`\bn[i1!]gg[e3]r\b`,
				`\bf[a@]gg?[o0]t\b`,
			},
		},
		{
			ID:       "en-threat",
			Language: "en",
			Category: "threat",
			Severity: 5,
			Patterns: []string{
				`\bi('ll| will) (hurt|find|kill) you\b`,
				`\bbomb threat\b`,
			},
		},

		// --- Vietnamese ---
		// Patterns rely on precomposed accented characters; the normalizer
		// must never strip diacritics.
		{
			ID:       "vi-profanity-mild",
			Language: "vi",
			Category: "profanity",
			Severity: 2,
			Patterns: []string{
				`\bđồ (ngu|điên|khùng)\b`,
				`\bvô duyên\b`,
			},
		},
		{
			ID:       "vi-profanity-strong",
			Language: "vi",
			Category: "profanity",
			Severity: 3,
			Patterns: []string{
				`\b(đm|đmm|vcl|vkl|cc)\b`,
				`\bđịt mẹ\b`,
				`\bcon (chó|đĩ)\b`,
			},
		},
		{
			ID:       "vi-harassment",
			Language: "vi",
			Category: "harassment",
			Severity: 4,
			Patterns: []string{
				`\bchết đi\b`,
				`\bcút đi\b`,
				`\bđồ rác rưởi\b`,
			},
		},
		{
			ID:       "vi-threat",
			Language: "vi",
			Category: "threat",
			Severity: 5,
			Patterns: []string{
				`\btao (sẽ )?(giết|đánh) mày\b`,
				`\bxử mày\b`,
			},
		},
	}
}
