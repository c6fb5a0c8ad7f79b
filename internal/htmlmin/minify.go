// Package htmlmin shrinks full-HTML payloads before they go out over the
// wire, the same minification concern the teacher applies to rendered
// fragments, carried forward unchanged onto TemplateUpdated's HTML field.
package htmlmin

import (
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

var (
	minifier *minify.M
	once     sync.Once
)

func getMinifier() *minify.M {
	once.Do(func() {
		minifier = minify.New()
		minifier.AddFunc("text/html", html.Minify)
	})
	return minifier
}

// HTML minifies htmlContent, falling back to the original content if
// minification errors (a malformed fragment still needs to reach the
// client for hash verification to fail loudly rather than silently drop).
func HTML(htmlContent string) string {
	if !strings.Contains(htmlContent, "<") {
		return normalizeWhitespace(htmlContent)
	}
	minified, err := getMinifier().String("text/html", htmlContent)
	if err != nil {
		return htmlContent
	}
	return minified
}

func normalizeWhitespace(text string) string {
	text = strings.TrimSpace(text)
	words := strings.Fields(text)
	return strings.Join(words, " ")
}
