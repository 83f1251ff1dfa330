// Package sanitize strips sensitive content from text before it reaches the
// durable store or either of the retrieval indexes.
package sanitize

import "regexp"

// patterns is an ordered list of regexes applied in a single pass over the
// input. Order matters: the private-block pattern runs first so secrets
// already wrapped in <private> tags are not double-matched by a narrower
// pattern underneath it.
var patterns = []*regexp.Regexp{
	// Explicit opt-out block, non-greedy and newline-spanning.
	regexp.MustCompile(`(?s)<private>.*?</private>`),
	// API-key-like tokens: sk/pk/api_key prefix followed by 20+ word chars.
	regexp.MustCompile(`(?i)\b(?:sk|pk|api_key)[-_]?[A-Za-z0-9]{20,}\b`),
	// Secret assignments: password|secret|token = <value>.
	regexp.MustCompile(`(?i)\b(password|secret|token)\s*[:=]\s*\S+`),
	// AWS access key ids.
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	// GitHub personal access tokens.
	regexp.MustCompile(`\bghp_[A-Za-z0-9]{36,}\b`),
	// JWT-shaped triples: header.payload.signature, base64url segments.
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`),
	// Bearer auth headers.
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._-]{10,}\b`),
	// Email addresses.
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	// 16-digit PAN-shaped numbers, with or without separators.
	regexp.MustCompile(`\b(?:\d[ -]?){15}\d\b`),
}

const redactedLiteral = "[REDACTED]"

// Sanitize replaces every match of the sensitive-content pattern set with
// the literal [REDACTED] and reports whether any replacement occurred. It
// must run on every text field before that field reaches the durable store
// or either retrieval index.
func Sanitize(text string) (clean string, redacted bool) {
	clean = text
	for _, pat := range patterns {
		replaced := pat.ReplaceAllString(clean, redactedLiteral)
		if replaced != clean {
			redacted = true
			clean = replaced
		}
	}
	return clean, redacted
}

// Fields sanitizes a set of related text fields in one call (for example a
// knowledge item's content and context) and reports whether any of them
// were redacted, so a caller can log or flag the write once rather than
// per field.
func Fields(fields ...*string) (redacted bool) {
	for _, f := range fields {
		if f == nil {
			continue
		}
		clean, did := Sanitize(*f)
		*f = clean
		redacted = redacted || did
	}
	return redacted
}
