package textmatch

// MatchThreshold is the partial ratio a token must exceed to count as present.
const MatchThreshold = 85

// Matcher checks that a source's expected tokens appear in an item's title
// or description.
type Matcher struct {
	english []string
	sinhala []string
}

// NewMatcher builds a matcher from the two token sets. Blank tokens are dropped.
func NewMatcher(english, sinhala []string) Matcher {
	return Matcher{english: normalizeTokens(english), sinhala: normalizeTokens(sinhala)}
}

// Empty reports whether the matcher has no tokens and therefore passes everything.
func (m Matcher) Empty() bool {
	return len(m.english) == 0 && len(m.sinhala) == 0
}

// Match passes when either token set has every token scoring above
// MatchThreshold against the title or the description.
func (m Matcher) Match(title, description string) bool {
	if m.Empty() {
		return true
	}
	title = Normalize(title)
	description = Normalize(description)
	return allPresent(m.english, title, description) || allPresent(m.sinhala, title, description)
}

func allPresent(tokens []string, title, description string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, token := range tokens {
		score := PartialRatio(token, title)
		if description != "" {
			score = max(score, PartialRatio(token, description))
		}
		if score <= MatchThreshold {
			return false
		}
	}
	return true
}

func normalizeTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if n := Normalize(token); n != "" {
			out = append(out, n)
		}
	}
	return out
}
