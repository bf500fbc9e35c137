// Package htmlpage emits HTML pages that load the bundle.
package htmlpage

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"path"
	"strings"

	"github.com/euforicio/bundlekit/internal/asset"
	"github.com/euforicio/bundlekit/internal/compiler"
)

// Name identifies the plugin in hook traces and errors.
const Name = "HTMLPagePlugin"

const (
	// DefaultFilename is used for pages without a filename.
	DefaultFilename = "index.html"
	// DefaultTitle is used for pages without a title.
	DefaultTitle = "bundlekit"
)

// Page describes one generated HTML file.
type Page struct {
	Title string
	// Template is a path to an html/template file. Empty selects the built-in page.
	Template string
	Filename string
	Lang     string
	Meta     map[string]string
}

type viewData struct {
	Title   string
	Lang    string
	Meta    map[string]string
	Scripts []string
	Styles  []string
	Page    string
}

// Plugin renders pages on ProcessAssets, after the bundle and stylesheets exist.
type Plugin struct {
	pages    []Page
	fallback *templateRenderer
}

// New returns a plugin emitting pages. Without pages it emits a single default index.html.
func New(pages ...Page) *Plugin {
	if len(pages) == 0 {
		pages = []Page{{}}
	}
	normalized := make([]Page, len(pages))
	for i, page := range pages {
		if strings.TrimSpace(page.Filename) == "" {
			page.Filename = DefaultFilename
		}
		if strings.TrimSpace(page.Title) == "" {
			page.Title = DefaultTitle
		}
		if page.Lang == "" {
			page.Lang = "en"
		}
		page.Filename = asset.NormalizeName(page.Filename)
		normalized[i] = page
	}
	return &Plugin{pages: normalized}
}

// Apply implements compiler.Plugin.
func (p *Plugin) Apply(c *compiler.Compiler) error {
	fallback, err := newDefaultRenderer()
	if err != nil {
		return fmt.Errorf("load page template: %w", err)
	}
	p.fallback = fallback

	logger := c.Logger().With(slog.String("plugin", Name))
	publicPath := c.Options().PublicPath
	c.Hooks.ProcessAssets.Tap(Name, func(comp *compiler.Compilation) error {
		for _, page := range p.pages {
			html, err := p.render(comp, page, publicPath)
			if err != nil {
				return fmt.Errorf("page %s: %w", page.Filename, err)
			}
			if err := comp.EmitAsset(page.Filename, asset.NewRaw(html)); err != nil {
				return err
			}
			logger.Debug("emitted page", slog.String("page", page.Filename), slog.Int("bytes", len(html)))
		}
		return nil
	})
	return nil
}

func (p *Plugin) render(comp *compiler.Compilation, page Page, publicPath string) ([]byte, error) {
	renderer := p.fallback
	if page.Template != "" {
		// Parsed on every build so template edits show up in watch mode.
		custom, err := newFileRenderer(page.Template)
		if err != nil {
			return nil, err
		}
		renderer = custom
	}

	data := viewData{
		Title: page.Title,
		Lang:  page.Lang,
		Meta:  page.Meta,
		Page:  page.Filename,
	}
	for _, name := range comp.EntryFiles() {
		data.Scripts = append(data.Scripts, assetURL(publicPath, page.Filename, name))
	}
	for _, name := range comp.Assets().Names() {
		if strings.HasSuffix(name, ".css") {
			data.Styles = append(data.Styles, assetURL(publicPath, page.Filename, name))
		}
	}

	var buf bytes.Buffer
	if err := renderer.render(&buf, data); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if page.Template == "" {
		return buf.Bytes(), nil
	}
	return inject(buf.Bytes(), data), nil
}

// inject adds tags for scripts and styles the template did not reference itself.
// Tags go before </head>, then </body>, then at the end of the document.
func inject(doc []byte, data viewData) []byte {
	var tags strings.Builder
	for _, href := range data.Styles {
		if !referenced(doc, "href", href) {
			fmt.Fprintf(&tags, "<link rel=\"stylesheet\" href=\"%s\">", template.HTMLEscapeString(href))
		}
	}
	for _, src := range data.Scripts {
		if !referenced(doc, "src", src) {
			fmt.Fprintf(&tags, "<script defer src=\"%s\"></script>", template.HTMLEscapeString(src))
		}
	}
	if tags.Len() == 0 {
		return doc
	}

	lower := bytes.ToLower(doc)
	at := bytes.LastIndex(lower, []byte("</head>"))
	if at < 0 {
		at = bytes.LastIndex(lower, []byte("</body>"))
	}
	if at < 0 {
		at = len(doc)
	}
	out := make([]byte, 0, len(doc)+tags.Len())
	out = append(out, doc[:at]...)
	out = append(out, tags.String()...)
	return append(out, doc[at:]...)
}

func referenced(doc []byte, attr, url string) bool {
	return bytes.Contains(doc, []byte(attr+`="`+url+`"`))
}

// assetURL returns the URL a page uses to load an asset: publicPath-prefixed when set,
// otherwise relative to the page's directory.
func assetURL(publicPath, page, name string) string {
	if publicPath != "" {
		return strings.TrimSuffix(publicPath, "/") + "/" + name
	}
	dir := path.Dir(page)
	if dir == "." {
		return name
	}
	return strings.Repeat("../", strings.Count(dir, "/")+1) + name
}
