package redact

import "regexp"

// Placeholder tokens. Neither contains digits or an @ sign, so running
// Redact over already-redacted text is a no-op.
const (
	EmailPlaceholder = "[EMAIL REDACTED]"
	PhonePlaceholder = "[PHONE REDACTED]"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)

	// NANP-style 10-digit numbers: optional area-code parentheses, groups
	// separated by dash, dot, or space. This is the documented phone
	// contract; shorter or international formats pass through untouched.
	phonePattern = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)

	exactEmailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
)

// Redact replaces every email address and phone number in text with a
// category placeholder. It is pure, total, and idempotent; found reports
// whether anything was replaced.
func Redact(text string) (string, bool) {
	out := emailPattern.ReplaceAllString(text, EmailPlaceholder)
	out = phonePattern.ReplaceAllString(out, PhonePlaceholder)
	return out, out != text
}

// IsEmailAddress reports whether s is a single well-formed email address,
// using the same pattern the redactor matches on.
func IsEmailAddress(s string) bool {
	return exactEmailPattern.MatchString(s)
}
