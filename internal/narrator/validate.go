package narrator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// terminalRunes are the characters a complete narrative may end with.
const terminalRunes = `.!?"')`

// validateNarrative checks a provider response for the obvious failure
// modes: empty output, runaway output, and truncation (a multi-paragraph
// narrative that stops mid-sentence). Returns the trimmed text and, when
// invalid, the reason.
func validateNarrative(raw string, maxChars int) (text string, reason string, ok bool) {
	text = strings.TrimSpace(raw)

	if text == "" {
		return "", "empty response", false
	}

	if len(text) > maxChars {
		return "", fmt.Sprintf("response length %d exceeds cap of %d", len(text), maxChars), false
	}

	if strings.Contains(text, "\n\n") {
		last, _ := utf8.DecodeLastRuneInString(text)
		if !strings.ContainsRune(terminalRunes, last) {
			return "", "multi-paragraph narrative missing terminal punctuation", false
		}
	}

	return text, "", true
}
