package validation

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxSanitizedTextLength = 10000

var (
	sqlInjectionPattern     = regexp.MustCompile(`(?i)(\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|UNION|SCRIPT)\b)|[';]|(--)|(\*/)`)
	scriptTagPattern        = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	eventHandlerPattern     = regexp.MustCompile(`(?i)\bon\w+\s*=`)
	javascriptURLPattern    = regexp.MustCompile(`(?i)javascript:`)
	pathTraversalPattern    = regexp.MustCompile(`\.\.[/\\]`)
	commandInjectionPattern = regexp.MustCompile("[;&|`$(){}\\[\\]]")
	controlCharsPattern     = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	whitespacePattern       = regexp.MustCompile(`\s+`)
)

var (
	richTextPolicy = newRichTextPolicy()
	strictPolicy   = bluemonday.StrictPolicy()
)

func newRichTextPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "em", "strong", "p", "br", "ul", "ol", "li")
	p.AllowAttrs("class").Globally()
	return p
}

// ContainsSQLInjection reports SQL keywords, quotes, statement separators or comment markers.
func ContainsSQLInjection(value string) bool {
	return sqlInjectionPattern.MatchString(value)
}

// ContainsXSS reports script tags, inline event handlers or javascript: URLs.
func ContainsXSS(value string) bool {
	return scriptTagPattern.MatchString(value) ||
		eventHandlerPattern.MatchString(value) ||
		javascriptURLPattern.MatchString(value)
}

// ContainsPathTraversal reports ../ or ..\ sequences.
func ContainsPathTraversal(value string) bool {
	return pathTraversalPattern.MatchString(value)
}

// ContainsCommandInjection reports shell metacharacters.
func ContainsCommandInjection(value string) bool {
	return commandInjectionPattern.MatchString(value)
}

// ContainsHTML reports whether value carries any markup. Plain ampersands and quotes do not count.
func ContainsHTML(value string) bool {
	return html.UnescapeString(strictPolicy.Sanitize(value)) != value
}

// SanitizeHTML keeps the basic formatting tags allowed in space descriptions.
func SanitizeHTML(value string) string {
	return richTextPolicy.Sanitize(value)
}

// SanitizeText strips control characters, collapses whitespace and caps the length.
func SanitizeText(value string) string {
	value = controlCharsPattern.ReplaceAllString(strings.TrimSpace(value), "")
	value = whitespacePattern.ReplaceAllString(value, " ")
	if utf8.RuneCountInString(value) > maxSanitizedTextLength {
		value = string([]rune(value)[:maxSanitizedTextLength])
	}
	return value
}
