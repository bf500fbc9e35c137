// Package build assembles a compiler and its plugins from a Config.
package build

import (
	"fmt"
	"log/slog"

	"github.com/euforicio/bundlekit/internal/compiler"
	"github.com/euforicio/bundlekit/internal/config"
	"github.com/euforicio/bundlekit/internal/markdown"
	"github.com/euforicio/bundlekit/internal/markdown/d2"
	"github.com/euforicio/bundlekit/internal/plugin/clean"
	"github.com/euforicio/bundlekit/internal/plugin/compress"
	"github.com/euforicio/bundlekit/internal/plugin/copyfiles"
	"github.com/euforicio/bundlekit/internal/plugin/htmlpage"
	"github.com/euforicio/bundlekit/internal/plugin/manifest"
	"github.com/euforicio/bundlekit/internal/plugin/removecomments"
)

// Build is a configured compiler plus the markdown service its loader renders with.
type Build struct {
	Compiler *compiler.Compiler
	Markdown *markdown.Service
}

// New builds the plugin list for cfg. cfg must already be finalized.
//
// Order matters where plugins share a hook. On ProcessAssets the markdown stylesheet is
// emitted before pages link it, and pages before copied files. On Emit comments are removed
// before compressed siblings and the manifest are computed.
func New(cfg config.Config, logger *slog.Logger) (*Build, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var mdOpts []markdown.Option
	if cfg.Markdown.D2 {
		mdOpts = append(mdOpts, markdown.WithDiagrams(d2.New(logger, 0)))
	}
	md := markdown.NewService(logger, mdOpts...)

	plugins := []compiler.Plugin{
		markdown.NewLoader(md, markdown.LoaderOptions{
			Stylesheet: cfg.Markdown.Stylesheet,
			Style:      cfg.Markdown.Style,
		}),
	}

	if len(cfg.Pages) > 0 {
		pages := make([]htmlpage.Page, 0, len(cfg.Pages))
		for _, p := range cfg.Pages {
			pages = append(pages, htmlpage.Page{
				Title:    p.Title,
				Template: p.Template,
				Filename: p.Filename,
				Meta:     p.Meta,
			})
		}
		plugins = append(plugins, htmlpage.New(pages...))
	}

	if len(cfg.Copy) > 0 {
		patterns := make([]copyfiles.Pattern, 0, len(cfg.Copy))
		for _, c := range cfg.Copy {
			patterns = append(patterns, copyfiles.Pattern{From: c.From, To: c.To, Ignore: c.Ignore})
		}
		cp, err := copyfiles.New(patterns...)
		if err != nil {
			return nil, fmt.Errorf("copy plugin: %w", err)
		}
		plugins = append(plugins, cp)
	}

	if cfg.RemoveComments {
		plugins = append(plugins, removecomments.New())
	}

	if cfg.Compress.Gzip || cfg.Compress.Zstd {
		cz, err := compress.New(compress.Options{
			Gzip:      cfg.Compress.Gzip,
			Zstd:      cfg.Compress.Zstd,
			Threshold: cfg.Compress.Threshold,
		})
		if err != nil {
			return nil, fmt.Errorf("compress plugin: %w", err)
		}
		plugins = append(plugins, cz)
	}

	if cfg.Manifest != "" {
		plugins = append(plugins, manifest.New(cfg.Manifest))
	}

	if cfg.Clean {
		cl, err := clean.New(cfg.CleanKeep...)
		if err != nil {
			return nil, fmt.Errorf("clean plugin: %w", err)
		}
		plugins = append(plugins, cl)
	}

	c, err := compiler.New(compiler.Options{
		Context:    cfg.Context,
		Entry:      cfg.Entry,
		OutputPath: cfg.Output.Path,
		Filename:   cfg.Output.Filename,
		PublicPath: cfg.Output.PublicPath,
		Mode:       cfg.Mode,
		Sourcemap:  cfg.Sourcemap,
	}, logger, plugins...)
	if err != nil {
		return nil, err
	}
	return &Build{Compiler: c, Markdown: md}, nil
}
