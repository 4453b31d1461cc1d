package filter

import (
	"context"
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bautismal/atmosphere/core/broadcaster"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Text builds a filter that rewrites the payload of text messages with fn.
// Binary messages pass through untouched.
func Text(fn func(string) string) broadcaster.Filter {
	return broadcaster.FilterFunc(func(_ context.Context, m broadcaster.Message) broadcaster.Result {
		if m.Type == broadcaster.BinaryMessage {
			return broadcaster.Transformed(m)
		}
		out := fn(m.Text())
		if out == m.Text() {
			return broadcaster.Transformed(m)
		}
		return broadcaster.Transformed(m.WithText(out))
	})
}

// Upper upper-cases text using Unicode-aware rules.
func Upper() broadcaster.Filter {
	return Text(func(s string) string {
		return cases.Upper(language.Und).String(s)
	})
}

// Lower lower-cases text using Unicode-aware rules.
func Lower() broadcaster.Filter {
	return Text(func(s string) string {
		return cases.Lower(language.Und).String(s)
	})
}

// EscapeHTML escapes markup so clients rendering messages as HTML show it literally.
func EscapeHTML() broadcaster.Filter {
	return Text(html.EscapeString)
}

// StripHTML removes tags and decodes entities.
func StripHTML() broadcaster.Filter {
	return Text(stripHTML)
}

// Truncate cuts text to at most n runes.
func Truncate(n int) broadcaster.Filter {
	return Text(func(s string) string { return maxLength(s, n) })
}

// RemoveControlChars drops control characters other than newline, carriage
// return and tab.
func RemoveControlChars() broadcaster.Filter {
	return Text(removeControlChars)
}

// SingleLine collapses line breaks and runs of whitespace into single spaces.
func SingleLine() broadcaster.Filter {
	return Text(singleLine)
}

// Trim removes leading and trailing whitespace.
func Trim() broadcaster.Filter {
	return Text(strings.TrimSpace)
}

func stripHTML(s string) string {
	return html.UnescapeString(htmlTagRegex.ReplaceAllString(s, ""))
}

func maxLength(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

func singleLine(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}
