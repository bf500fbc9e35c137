package compiler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/euforicio/bundlekit/internal/asset"
)

// BundleError reports the errors esbuild produced for a build.
type BundleError struct {
	Messages []string
}

func (e *BundleError) Error() string {
	if len(e.Messages) == 1 {
		return "bundle: " + e.Messages[0]
	}
	return fmt.Sprintf("bundle: %d errors:\n%s", len(e.Messages), strings.Join(e.Messages, "\n"))
}

func (c *Compiler) buildOptions(ctx context.Context) api.BuildOptions {
	opts := api.BuildOptions{
		AbsWorkingDir: c.opts.Context,
		EntryPoints:   c.entryPoints(),
		Bundle:        true,
		Write:         false,
		Format:        api.FormatIIFE,
		Platform:      api.PlatformBrowser,
		Target:        api.ES2020,
		LogLevel:      api.LogLevelSilent,
		Sourcemap:     api.SourceMapNone,
		PublicPath:    c.opts.PublicPath,
	}

	if strings.Contains(c.opts.Filename, "[name]") || len(opts.EntryPoints) > 1 {
		opts.Outdir = c.opts.OutputPath
		opts.EntryNames = entryNames(c.opts.Filename)
	} else {
		opts.Outfile = filepath.Join(c.opts.OutputPath, filepath.FromSlash(c.opts.Filename))
	}

	if c.opts.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}

	switch c.opts.Mode {
	case ModeProduction:
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
		opts.Define = map[string]string{"process.env.NODE_ENV": `"production"`}
	case ModeDevelopment:
		opts.Define = map[string]string{"process.env.NODE_ENV": `"development"`}
	}

	for _, l := range c.loaders {
		opts.Plugins = append(opts.Plugins, l.esbuildPlugin(ctx))
	}
	return opts
}

func (c *Compiler) entryPoints() []string {
	entries := make([]string, 0, len(c.opts.Entry))
	for _, e := range c.opts.Entry {
		if filepath.IsAbs(e) {
			entries = append(entries, e)
			continue
		}
		entries = append(entries, filepath.Join(c.opts.Context, filepath.FromSlash(e)))
	}
	return entries
}

// entryNames converts an output filename such as "js/[name].js" into an esbuild entry-name
// template. A filename without "[name]" still gets one so multiple entries do not collide.
func entryNames(filename string) string {
	tmpl := strings.TrimSuffix(filepath.ToSlash(filename), ".js")
	if !strings.Contains(tmpl, "[name]") {
		tmpl = "[name]"
	}
	return tmpl
}

func (c *Compiler) bundle(ctx context.Context, comp *Compilation) error {
	result := api.Build(c.buildOptions(ctx))

	for _, msg := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		comp.Warn(strings.TrimSpace(msg))
	}

	if len(result.Errors) > 0 {
		formatted := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		msgs := make([]string, 0, len(formatted))
		for _, m := range formatted {
			msgs = append(msgs, strings.TrimSpace(m))
		}
		return &BundleError{Messages: msgs}
	}
	if len(result.OutputFiles) == 0 {
		return &BundleError{Messages: []string{"esbuild returned no output files"}}
	}

	for _, of := range result.OutputFiles {
		rel, err := filepath.Rel(c.opts.OutputPath, of.Path)
		if err != nil {
			return fmt.Errorf("resolve output %s: %w", of.Path, err)
		}
		name := asset.NormalizeName(rel)
		if err := comp.EmitAsset(name, asset.NewRaw(of.Contents)); err != nil {
			return err
		}
		if strings.HasSuffix(name, ".js") {
			comp.entries = append(comp.entries, name)
		}
	}
	return nil
}
