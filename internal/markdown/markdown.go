// Package markdown converts Markdown source to HTML and loads .md modules into bundles.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"
)

// DefaultStyle is the chroma style used for fenced code blocks.
const DefaultStyle = "github"

// Metadata captures optional frontmatter data found at the top of a document.
type Metadata struct {
	Raw         map[string]any
	Title       string
	Description string
	Tags        []string
}

// IsZero reports whether the metadata carries any meaningful values.
func (m Metadata) IsZero() bool {
	if m.Title != "" || m.Description != "" || len(m.Tags) > 0 {
		return false
	}
	return len(m.Raw) == 0
}

// Document represents a rendered markdown file.
//
//nolint:govet // field order optimized for readability, not memory
type Document struct {
	HTML     string
	Metadata Metadata
	Modified time.Time
	Raw      string
}

type cacheEntry struct {
	modTime time.Time
	doc     Document
}

// Service renders markdown into HTML.
// It uses Goldmark with GitHub-flavored markdown extensions, class-based chroma
// highlighting and heading anchors. Documents loaded from disk are cached by path and
// modification time so watch-mode rebuilds only convert files that changed.
type Service struct {
	md     goldmark.Markdown
	logger *slog.Logger
	cache  sync.Map // map[string]cacheEntry
}

// Option customizes a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	diagrams DiagramRenderer
}

// WithDiagrams renders ```d2 fences to inline SVG with r instead of highlighting them.
func WithDiagrams(r DiagramRenderer) Option {
	return func(o *serviceOptions) {
		o.diagrams = r
	}
}

// NewService constructs a markdown converter.
// The converter includes:
//   - GitHub-flavored markdown extensions (tables, strikethrough, task lists, autolinks)
//   - Syntax highlighting through chroma CSS classes (see Stylesheet)
//   - YAML frontmatter parsing for document metadata
//   - Raw HTML passthrough
//   - Optional D2 diagrams (see WithDiagrams)
//
// If logger is nil, the default slog logger is used.
func NewService(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "markdown")
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}

	highlight := highlighting.NewHighlighting(
		highlighting.WithStyle(DefaultStyle),
		highlighting.WithFormatOptions(
			html.WithLineNumbers(false),
			html.WithClasses(true),
		),
		highlighting.WithWrapperRenderer(DiagramWrapper()),
	)

	parserOpts := []parser.Option{parser.WithAutoHeadingID()}
	rendererOpts := []renderer.Option{htmlrenderer.WithUnsafe()}
	if o.diagrams != nil {
		parserOpts = append(parserOpts, parser.WithASTTransformers(
			util.Prioritized(&diagramTransformer{renderer: o.diagrams, logger: logger}, 100),
		))
		rendererOpts = append(rendererOpts, renderer.WithNodeRenderers(
			util.Prioritized(diagramNodeRenderer{}, 100),
		))
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			goldmarkmeta.Meta,
			highlight,
			&anchor.Extender{
				Position: anchor.After,
			},
		),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(rendererOpts...),
	)

	return &Service{
		md:     md,
		logger: logger,
	}
}

// Convert renders source to HTML. Malformed markdown never fails; goldmark renders what it
// cannot parse as literal text.
func (s *Service) Convert(source string) (string, error) {
	doc, err := s.convert(context.Background(), []byte(source))
	if err != nil {
		return "", err
	}
	return doc.HTML, nil
}

// Render converts content loaded from path, caching results by path and modification time.
// A zero modTime disables caching for the call.
func (s *Service) Render(ctx context.Context, path string, modTime time.Time, content []byte) (Document, error) {
	if entry, ok := s.cache.Load(path); ok {
		if cached, ok := entry.(cacheEntry); ok {
			if !cached.modTime.IsZero() && modTime.Equal(cached.modTime) {
				return cached.doc, nil
			}
		}
	}

	doc, err := s.convert(ctx, content)
	if err != nil {
		return Document{}, err
	}
	doc.Modified = modTime

	if !modTime.IsZero() {
		s.cache.Store(path, cacheEntry{modTime: modTime, doc: doc})
	}
	s.logger.Debug("rendered markdown", slog.String("path", path), slog.Int("bytes", len(doc.HTML)))
	return doc, nil
}

// Invalidate removes the cached entry for the given path.
func (s *Service) Invalidate(path string) {
	s.cache.Delete(path)
}

func (s *Service) convert(ctx context.Context, content []byte) (Document, error) {
	parserCtx := parser.NewContext()
	parserCtx.Set(renderContextKey, ctx)
	buf := bytes.NewBuffer(nil)

	if err := s.md.Convert(content, buf, parser.WithContext(parserCtx)); err != nil {
		return Document{}, fmt.Errorf("render markdown: %w", err)
	}

	return Document{
		HTML:     buf.String(),
		Metadata: extractMetadata(parserCtx),
		Raw:      string(content),
	}, nil
}

func extractMetadata(ctx parser.Context) Metadata {
	raw := goldmarkmeta.Get(ctx)
	var meta Metadata
	if raw == nil {
		return meta
	}

	meta.Raw = make(map[string]any)
	for k, v := range raw {
		meta.Raw[k] = v
		switch k {
		case "title":
			if str, ok := toString(v); ok {
				meta.Title = str
			}
		case "description", "summary":
			if str, ok := toString(v); ok {
				meta.Description = str
			}
		case "tags", "keywords":
			meta.Tags = toStringSlice(v)
		}
	}

	if len(meta.Raw) == 0 {
		meta.Raw = nil
	}

	return meta
}

func toString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if str, ok := toString(item); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	default:
		if str, ok := toString(v); ok {
			return []string{str}
		}
		return nil
	}
}
