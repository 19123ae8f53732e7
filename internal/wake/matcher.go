package wake

import (
	"regexp"
	"strings"

	"careva/internal/domain"
)

// Matcher decides whether recognized text contains a wake phrase. It is
// pure and deterministic: patterns are evaluated in a fixed order and
// the first hit wins, so identical input always yields the same match.
type Matcher struct {
	patterns []*regexp.Regexp
	fuzzy    []string
}

// Ordered wake phrase patterns: explicit forms first, then near-miss
// phonetic variants, then the bare catch-word as last resort. The bare
// "nova" pattern is intentionally permissive and fires on any utterance
// containing that word.
var defaultPatterns = []string{
	`\b(hey\s*nova|hi\s*nova|okay\s*nova|ok\s*nova)\b`,
	`\b(nova\s*help|nova\s*assist|nova\s*please)\b`,
	`\b(activate\s*nova|start\s*nova|nova\s*start)\b`,
	`\b(wake\s*up\s*nova|nova\s*wake\s*up)\b`,
	`\b(talk\s*to\s*nova|speak\s*to\s*nova)\b`,
	`\b(hey\s*noah|hi\s*noah|hey\s*nava)\b`,
	`\b(hey\s*no\s*va|hi\s*no\s*va)\b`,
	`\bnova\b`,
}

// Concatenated-fuzzy fallbacks for the phrase run together without
// spaces, checked only when no pattern matches.
var defaultFuzzy = []string{"hanova", "henova", "haynova", "hinova", "heynava"}

// NewMatcher compiles the built-in wake phrase patterns.
func NewMatcher() *Matcher {
	patterns := make([]*regexp.Regexp, 0, len(defaultPatterns))
	for _, p := range defaultPatterns {
		patterns = append(patterns, regexp.MustCompile("(?i)"+p))
	}
	return &Matcher{patterns: patterns, fuzzy: defaultFuzzy}
}

// Match reports whether text contains a wake phrase. Offset points at
// the phrase start within the normalized text; Remainder is the trimmed
// text after the matched span.
func (m *Matcher) Match(text string) domain.WakeMatch {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return domain.WakeMatch{}
	}

	for _, pattern := range m.patterns {
		loc := pattern.FindStringIndex(normalized)
		if loc == nil {
			continue
		}
		return domain.WakeMatch{
			Found:       true,
			MatchedText: normalized[loc[0]:loc[1]],
			Offset:      loc[0],
			Remainder:   strings.TrimSpace(normalized[loc[1]:]),
		}
	}

	for _, phrase := range m.fuzzy {
		index := strings.Index(normalized, phrase)
		if index < 0 {
			continue
		}
		return domain.WakeMatch{
			Found:       true,
			MatchedText: phrase,
			Offset:      index,
			Remainder:   strings.TrimSpace(normalized[index+len(phrase):]),
		}
	}

	return domain.WakeMatch{}
}
