package htmlpage

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

const pageTemplate = "page"

type templateRenderer struct {
	tmpl *template.Template
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":  strings.Join,
		"lower": strings.ToLower,
		"default": func(fallback, value string) string {
			if strings.TrimSpace(value) == "" {
				return fallback
			}
			return value
		},
	}
}

func newDefaultRenderer() (*templateRenderer, error) {
	base, err := template.New(pageTemplate).Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}
	return &templateRenderer{tmpl: base}, nil
}

// newFileRenderer parses a user template. The whole file is the page template.
func newFileRenderer(path string) (*templateRenderer, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // template path comes from the build config
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	tmpl, err := template.New(pageTemplate).Funcs(templateFuncs()).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", filepath.Base(path), err)
	}
	return &templateRenderer{tmpl: tmpl}, nil
}

func (r *templateRenderer) render(w io.Writer, data any) error {
	return r.tmpl.ExecuteTemplate(w, pageTemplate, data)
}
