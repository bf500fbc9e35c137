// Package d2 compiles D2 diagram sources into inline SVG.
package d2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"
)

// DefaultTimeout bounds a single diagram compile.
const DefaultTimeout = 12 * time.Second

// ErrEmptyDiagram is returned for a blank ```d2 fence.
var ErrEmptyDiagram = errors.New("empty d2 diagram")

// Renderer compiles diagrams with the embedded D2 compiler. Layout engines are picked by the
// diagram's own vars block; dagre is the default and elk is also available.
type Renderer struct {
	logger  *slog.Logger
	timeout time.Duration
}

// New returns a renderer. A non-positive timeout means DefaultTimeout.
func New(logger *slog.Logger, timeout time.Duration) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Renderer{logger: logger.With("component", "d2"), timeout: timeout}
}

// Render compiles source and returns the SVG document. The light theme is the default, and
// the dark theme is applied through prefers-color-scheme.
func (r *Renderer) Render(ctx context.Context, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrEmptyDiagram
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = d2log.With(ctx, r.logger)
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return "", fmt.Errorf("init ruler: %w", err)
	}

	themeID := d2themescatalog.NeutralDefault.ID
	darkThemeID := d2themescatalog.DarkFlagshipTerrastruct.ID
	pad := int64(d2svg.DEFAULT_PADDING)
	renderOpts := &d2svg.RenderOpts{
		ThemeID:     &themeID,
		DarkThemeID: &darkThemeID,
		Pad:         &pad,
	}

	start := time.Now()
	diagram, _, err := d2lib.Compile(ctx, source, &d2lib.CompileOptions{
		Ruler:          ruler,
		LayoutResolver: layoutResolver,
	}, renderOpts)
	if err != nil {
		return "", fmt.Errorf("compile d2: %w", err)
	}
	if diagram == nil {
		return "", errors.New("compile d2: no diagram produced")
	}

	svg, err := d2svg.Render(diagram, renderOpts)
	if err != nil {
		return "", fmt.Errorf("render svg: %w", err)
	}
	r.logger.Debug("rendered diagram", slog.Duration("took", time.Since(start)), slog.Int("bytes", len(svg)))
	return string(svg), nil
}

func layoutResolver(engine string) (d2graph.LayoutGraph, error) {
	switch strings.ToLower(engine) {
	case "", "dagre":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2dagrelayout.Layout(ctx, g, nil)
		}, nil
	case "elk":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2elklayout.Layout(ctx, g, nil)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported d2 layout %q", engine)
	}
}
