// Package security provides input hardening for prompt construction.
package security

import (
	"regexp"
	"strings"
	"unicode"
)

// Placeholder replaces each neutralized token in sanitized text.
const Placeholder = "[filtered]"

// Sanitizer neutralizes role-override and control tokens in tenant-supplied
// text before it is placed into a system prompt.
//
// Note: no filter is perfect. This catches common patterns; the immutable
// security-boundary block appended by the prompt builder is the primary
// control, sanitization is depth.
//
// Known limitation: homoglyph attacks are not detected. Visually similar
// Unicode characters can bypass pattern matching; full normalization would
// require a confusables mapping (see unicode.org/reports/tr39).
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// NewSanitizer creates a Sanitizer with the default pattern set.
func NewSanitizer() *Sanitizer {
	patterns := []string{
		// Bracketed role markers: [SYSTEM], [assistant], [INST] ...
		`(?i)\[\s*/?\s*(system|assistant|user|instruction|inst)\s*\]`,

		// Tag-style role markers: <system>, </instruction>, <|im_start|> ...
		`(?i)</?\s*(system|assistant|instruction|prompt)\s*>`,
		`<\|[^|]*\|>`,

		// Override attempts.
		`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`,
		`(?i)disregard\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?)`,
		`(?i)forget\s+(all\s+)?(previous|above|prior)\s+(instructions?|context)`,
		`(?i)override\s+(all\s+)?(previous|above|prior)\s+(instructions?|rules?)`,

		// Injected role blocks in chat-markup style.
		`(?i)^\s*(system|assistant)\s*:\s*`,
		`(?i)---+\s*(system|new\s+instructions?)`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}

	return &Sanitizer{patterns: compiled}
}

// Sanitize returns s with each matched injection token replaced by
// Placeholder and raw control characters removed. The surrounding text is
// preserved so legitimate tenant instructions keep their meaning.
func (v *Sanitizer) Sanitize(s string) string {
	out := stripControl(s)
	for _, re := range v.patterns {
		out = re.ReplaceAllString(out, Placeholder)
	}
	return out
}

// Matches reports whether s contains any injection pattern. Used for
// logging suspicious tenant configuration without blocking it.
func (v *Sanitizer) Matches(s string) bool {
	normalized := stripControl(s)
	for _, re := range v.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// stripControl removes raw control characters and zero-width/format runes
// that could evade pattern matching, preserving newlines and tabs.
func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
