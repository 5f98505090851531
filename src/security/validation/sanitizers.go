// backend/src/security/validation/sanitizers.go
package validation

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// strictHTMLPolicy removes all HTML tags.
var strictHTMLPolicy = bluemonday.StrictPolicy()

// SanitizeText strips HTML before text reaches the database.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(s)
}

// CleanText trims, strips markup and drops non-printable runes. bluemonday escapes
// ampersands and quotes, which are unescaped again since output is JSON, not HTML.
func CleanText(s string) string {
	cleaned := SanitizeText(StripUnprintable(strings.TrimSpace(s)))
	return htmlEntityReplacer.Replace(cleaned)
}

var htmlEntityReplacer = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", `"`, "&lt;", "<", "&gt;", ">")

// SanitizeForFormulaInjection prepends a single quote when the value starts with a
// character spreadsheets treat as a formula trigger.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 {
		return s
	}
	switch trimmed[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// StripUnprintable removes non-printable characters, keeping tab, newline and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}
