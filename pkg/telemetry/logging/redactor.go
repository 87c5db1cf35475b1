package logging

import (
	"log/slog"
	"regexp"
)

// Redactor scrubs identifier-shaped values from log output. The node
// logs only salted patient hashes by design; the redactor is the last
// line of defense when upstream payloads leak direct identifiers into
// an error message.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a redactor with the built-in patterns.
func NewRedactor() *Redactor {
	compile := func(name, expr, replacement string) redactPattern {
		return redactPattern{name: name, regex: regexp.MustCompile(expr), replacement: replacement}
	}
	return &Redactor{
		patterns: []redactPattern{
			// National ID / SSN shaped
			compile("national_id", `\b\d{3}-\d{2}-\d{4}\b`, "[REDACTED-ID]"),
			// Email addresses
			compile("email", `\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`, "[REDACTED-EMAIL]"),
			// Phone numbers (loose international)
			compile("phone", `\+?\d{1,3}[-.\s]?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}\b`, "[REDACTED-PHONE]"),
			// Medical record numbers as logged by upstream systems
			compile("mrn", `\b(?i:mrn)[-:\s]*\d{5,}\b`, "[REDACTED-MRN]"),
			// Bearer tokens
			compile("bearer_token", `(?i:bearer)\s+[a-zA-Z0-9._\-]+`, "Bearer [REDACTED]"),
		},
	}
}

// Redact applies every pattern to a string.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// RedactAttr scrubs a slog attribute's string value. Non-string values
// pass through untouched; structured fields carry hashes, not raw
// identifiers.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(r.Redact(a.Value.String()))
	}
	return a
}
