package knowledge

import (
	"regexp"
	"strings"
)

// nonWordRe matches everything outside letters, digits and whitespace.
// Unicode classes keep non-Latin storefront content searchable.
var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// NormalizeQuery turns free text into a to_tsquery('simple', ...) input
// with prefix matching: lowercase, strip punctuation, drop single-character
// tokens, join the survivors with OR. "Blue Wand!" becomes
// "blue:* | wand:*", so the token "harr" still matches "harry".
//
// OR semantics are deliberate: lexical hits rescue candidates whose
// embedding similarity falls below the floor, so a partial token match must
// be enough to qualify.
//
// Returns "" when no token survives; callers must then skip the lexical
// predicate entirely (to_tsquery rejects empty input).
func NormalizeQuery(q string) string {
	cleaned := nonWordRe.ReplaceAllString(strings.ToLower(q), " ")

	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		tokens = append(tokens, f+":*")
	}

	return strings.Join(tokens, " | ")
}
