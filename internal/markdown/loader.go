package markdown

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/euforicio/bundlekit/internal/asset"
	"github.com/euforicio/bundlekit/internal/compiler"
)

// LoaderName identifies the markdown loader in build logs and errors.
const LoaderName = "markdown-loader"

// Filter selects the modules handled by the loader.
const Filter = `\.(md|markdown)$`

// LoaderOptions configure the markdown loader plugin.
type LoaderOptions struct {
	// Stylesheet, when set, emits the highlight CSS under this asset name.
	Stylesheet string
	// Style is the chroma style for the stylesheet. Defaults to DefaultStyle.
	Style string
}

// Loader makes `import html from "./page.md"` resolve to the rendered HTML string.
type Loader struct {
	svc  *Service
	opts LoaderOptions
}

// NewLoader returns a loader plugin backed by svc.
func NewLoader(svc *Service, opts LoaderOptions) *Loader {
	if opts.Style == "" {
		opts.Style = DefaultStyle
	}
	return &Loader{svc: svc, opts: opts}
}

// Apply implements compiler.Plugin.
func (l *Loader) Apply(c *compiler.Compiler) error {
	if l.svc == nil {
		return fmt.Errorf("%s: markdown service is required", LoaderName)
	}
	if err := c.AddLoader(compiler.Loader{
		Name:   LoaderName,
		Filter: Filter,
		Load:   l.load,
	}); err != nil {
		return err
	}

	if l.opts.Stylesheet == "" {
		return nil
	}
	css, err := Stylesheet(l.opts.Style)
	if err != nil {
		return err
	}
	name := l.opts.Stylesheet
	c.Hooks.ProcessAssets.Tap(LoaderName, func(comp *compiler.Compilation) error {
		return comp.EmitAsset(name, asset.NewRawString(css))
	})
	return nil
}

func (l *Loader) load(ctx context.Context, args compiler.LoadArgs) (string, error) {
	var modTime time.Time
	if info, err := os.Stat(args.Path); err == nil {
		modTime = info.ModTime()
	} else {
		l.svc.logger.Warn("stat markdown module", slog.String("path", args.Path), slog.Any("err", err))
	}
	doc, err := l.svc.Render(ctx, args.Path, modTime, args.Source)
	if err != nil {
		return "", err
	}
	return doc.HTML, nil
}
