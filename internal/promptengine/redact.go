package promptengine

import (
	"regexp"
	"strings"
)

var (
	// confidentialTagRegex matches <confidential>...</confidential> blocks
	confidentialTagRegex = regexp.MustCompile(`(?s)<confidential>.*?</confidential>`)

	// secretValueRegex matches inline API keys and bearer tokens
	secretValueRegex = regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{16,}|AIza[a-zA-Z0-9_-]{16,}|bearer\s+[a-zA-Z0-9._-]{16,})`)
)

// Redact removes confidential blocks and masks secret-looking values before
// text is sent to an external provider.
func Redact(text string) string {
	text = confidentialTagRegex.ReplaceAllString(text, "")
	text = secretValueRegex.ReplaceAllString(text, "[REDACTED]")
	return strings.TrimSpace(text)
}

// IsEntirelyConfidential reports whether nothing would survive redaction.
func IsEntirelyConfidential(text string) bool {
	stripped := confidentialTagRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(stripped) == ""
}
