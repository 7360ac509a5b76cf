package processor

import (
	"regexp"
	"sort"
)

// Placeholders substituted for redacted spans. They never rematch any of the
// detection patterns, so sanitizing sanitized text is a no-op.
const (
	placeholderPhone   = "[PHONE_NUMBER]"
	placeholderAmount  = "[AMOUNT]"
	placeholderAccount = "[ACCOUNT_NUMBER]"
	placeholderName    = "[CUSTOMER_NAME]"
)

var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b0\d{9}\b`),
	regexp.MustCompile(`\b\d{3} \d{3} \d{3}\b`),
	regexp.MustCompile(`\b\d{4} \d{3} \d{3}\b`),
}

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:zig|zwl|usd|dollars?)\b`),
	regexp.MustCompile(`(?i)\b(?:zig|zwl|usd)\s*\d+(?:\.\d+)?\b`),
	regexp.MustCompile(`\$\d+(?:\.\d+)?\b`),
}

var accountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{8,12}\b`),
	regexp.MustCompile(`\b[A-Z]{2}\d{6,10}\b`),
}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+ [A-Z][a-z]+\b`),
	regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`),
}

// Sanitizer redacts personally identifiable information from call transcripts
// before they are stored or sent to analysis.
type Sanitizer struct {
	knownNames []string
}

// NewSanitizer creates a sanitizer. Names in the list are always redacted,
// independent of the capitalized-name heuristic.
func NewSanitizer(knownNames []string) *Sanitizer {
	return &Sanitizer{knownNames: knownNames}
}

// Sanitize redacts phone numbers, money amounts, account numbers and personal
// names from a transcript. The operation is idempotent.
func (s *Sanitizer) Sanitize(text string) string {
	for _, pattern := range phonePatterns {
		text = pattern.ReplaceAllString(text, placeholderPhone)
	}
	for _, pattern := range amountPatterns {
		text = pattern.ReplaceAllString(text, placeholderAmount)
	}
	for _, pattern := range accountPatterns {
		text = pattern.ReplaceAllString(text, placeholderAccount)
	}

	for _, name := range s.knownNames {
		if name == "" {
			continue
		}
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		text = pattern.ReplaceAllString(text, placeholderName)
	}

	text = s.redactHeuristicNames(text)
	return text
}

// redactHeuristicNames masks capitalized multi-word name candidates. The first
// candidate is kept: transcripts open with the agent introducing themselves,
// and the agent name is not customer data.
func (s *Sanitizer) redactHeuristicNames(text string) string {
	var spans [][]int
	for _, pattern := range namePatterns {
		spans = append(spans, pattern.FindAllStringIndex(text, -1)...)
	}
	if len(spans) == 0 {
		return text
	}

	// Longer spans win: "John Peter Moyo" also matches the two-word pattern,
	// and the contained match must not be redacted separately.
	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0] != spans[j][0] {
			return spans[i][0] < spans[j][0]
		}
		return spans[i][1] > spans[j][1]
	})
	kept := spans[:1]
	for _, span := range spans[1:] {
		if span[0] < kept[len(kept)-1][1] {
			continue
		}
		kept = append(kept, span)
	}

	// The first candidate is always kept, whether or not earlier passes left
	// placeholders behind, so repeated sanitization is stable.
	for i := len(kept) - 1; i >= 1; i-- {
		span := kept[i]
		text = text[:span[0]] + placeholderName + text[span[1]:]
	}
	return text
}
