// Package redact provides PII redaction applied to every conversation
// segment before it reaches extraction. The default implementation is a
// conservative pattern scrubber; production deployments can plug in a
// model-backed redactor behind the same interface.
package redact

import (
	"regexp"
	"strings"
)

// Redactor replaces personally identifying information in text with
// placeholder tokens.
type Redactor interface {
	Redact(text string) string
}

// Noop performs no redaction. Useful for tests and trusted input.
type Noop struct{}

func (Noop) Redact(text string) string { return text }

// Pattern redaction placeholders.
const (
	emailPlaceholder = "[email]"
	phonePlaceholder = "[phone]"
	cardPlaceholder  = "[card]"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// 7+ digit runs with optional separators, enough to catch phone
	// numbers without mangling short quantities or years.
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-().]{6,}\d`)
	cardRe  = regexp.MustCompile(`\b\d(?:[ \-]?\d){12,18}\b`)
)

// Scrubber is the default regex-based Redactor. It removes emails,
// phone-number-like digit runs, and card-number-like digit runs.
type Scrubber struct{}

// NewScrubber creates the default pattern-based redactor.
func NewScrubber() *Scrubber { return &Scrubber{} }

func (s *Scrubber) Redact(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	text = emailRe.ReplaceAllString(text, emailPlaceholder)
	text = cardRe.ReplaceAllString(text, cardPlaceholder)
	text = phoneRe.ReplaceAllString(text, phonePlaceholder)
	return text
}

// Ensure implementations satisfy Redactor.
var (
	_ Redactor = (*Scrubber)(nil)
	_ Redactor = Noop{}
)
