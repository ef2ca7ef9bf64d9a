// Package render turns provider message bodies into terminal and API
// friendly text.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/nhle/dragonmail/internal/model"
)

var (
	// strictPolicy removes every tag and skips script and style content.
	strictPolicy = bluemonday.StrictPolicy()

	// emailPolicy keeps the formatting elements mail bodies use.
	emailPolicy = newEmailPolicy()

	// blockBreaks matches tags that end a visual line.
	blockBreaks = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|tr|h[1-6]|blockquote|table)>`)

	blankRuns = regexp.MustCompile(`\n{3,}`)
	trailing  = regexp.MustCompile(`[ \t]+\n`)
)

func newEmailPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("p", "br", "div", "span", "h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowElements("strong", "em", "u", "s", "code", "pre", "blockquote")
	p.AllowElements("table", "thead", "tbody", "tr", "th", "td")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowAttrs("style").OnElements("span", "div", "p")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	return p
}

// HTMLToText strips markup from an HTML body, keeping line structure.
func HTMLToText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	text := blockBreaks.ReplaceAllString(body, "$0\n")
	text = strictPolicy.Sanitize(text)
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = trailing.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// SanitizeHTML removes anything unsafe from an HTML body while keeping
// its formatting.
func SanitizeHTML(body string) string {
	return emailPolicy.Sanitize(body)
}

// Body returns the best plain-text rendering of a detailed message:
// the text part when present, otherwise the stripped HTML, otherwise the
// intro.
func Body(msg model.Message) string {
	if text := strings.TrimSpace(msg.Text); text != "" {
		return text
	}
	if text := HTMLToText(msg.HTMLBody()); text != "" {
		return text
	}
	return msg.Intro
}

// Sender formats the From line of a message.
func Sender(msg model.Message) string {
	if msg.From.Address == "" && msg.From.Name == "" {
		return "(unknown sender)"
	}
	return msg.From.String()
}

// Subject returns the subject or a placeholder.
func Subject(msg model.Message) string {
	if s := strings.TrimSpace(msg.Subject); s != "" {
		return s
	}
	return "(no subject)"
}

// FormatSize formats a byte size into a human-readable string.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
