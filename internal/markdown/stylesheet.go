package markdown

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
)

// Stylesheet returns the CSS for the class names the converter puts on highlighted code.
func Stylesheet(style string) (string, error) {
	if style == "" {
		style = DefaultStyle
	}
	s, ok := styles.Registry[strings.ToLower(style)]
	if !ok {
		return "", fmt.Errorf("unknown highlight style %q", style)
	}

	formatter := html.New(
		html.WithClasses(true),
		html.ClassPrefix(""),
	)

	var b strings.Builder
	if err := formatter.WriteCSS(&b, s); err != nil {
		return "", fmt.Errorf("write highlight css: %w", err)
	}
	return b.String(), nil
}
