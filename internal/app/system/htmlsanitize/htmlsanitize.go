// Package htmlsanitize cleans the rich text stored in page sections.
//
// The public renderer emits stored rich text verbatim, so everything that
// can write section payloads runs them through Sections (or Section) first.
// Plain-text fields are left alone; the templates escape those.
package htmlsanitize

import (
	"html/template"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared rich-text policy, creating it on first use.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()

		// Tables from the editor's table extension.
		policy.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td")
		policy.AllowAttrs("colspan", "rowspan").OnElements("th", "td")
		policy.AllowAttrs("class").OnElements("table", "th", "td", "tr")
		policy.AllowAttrs("style").OnElements("table", "th", "td")

		policy.AllowElements("u", "s", "sub", "sup", "mark")

		// Text alignment and heading anchors.
		policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("p", "h1", "h2", "h3", "h4", "span")
		policy.AllowDataAttributes()
	})
	return policy
}

// Sanitize removes scripts, event handlers, unsafe URLs and unknown markup
// from html, keeping formatting, lists, links and tables.
func Sanitize(html string) string {
	if html == "" {
		return ""
	}
	return getPolicy().Sanitize(html)
}

// SanitizeToHTML sanitizes html for direct use in a template.
func SanitizeToHTML(html string) template.HTML {
	return template.HTML(Sanitize(html))
}

// IsPlainText reports whether content has no markup.
func IsPlainText(content string) bool {
	if content == "" {
		return true
	}
	return !strings.Contains(content, "<") || !strings.Contains(content, ">")
}

// PlainTextToHTML escapes text and turns it into a paragraph, with line
// breaks kept as <br>.
func PlainTextToHTML(text string) string {
	if text == "" {
		return ""
	}
	escaped := template.HTMLEscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return "<p>" + escaped + "</p>"
}

// RichText returns the stored form of an incoming rich-text field. Plain text
// (for example from an API client that does not speak HTML) becomes a
// paragraph; markup is sanitized. Whitespace-only input is stored as "".
func RichText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if IsPlainText(content) {
		return PlainTextToHTML(content)
	}
	return Sanitize(content)
}
