// Package copyfiles emits static files and directories as build assets.
package copyfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/euforicio/bundlekit/internal/asset"
	"github.com/euforicio/bundlekit/internal/compiler"
)

// Name identifies the plugin in hook traces and errors.
const Name = "CopyPlugin"

// Pattern copies From into the output directory under To.
type Pattern struct {
	// From is a file or directory. Relative paths resolve against the compiler context.
	From string
	// To is the destination directory inside the output. Empty means the output root.
	To string
	// Ignore holds glob patterns matched against slash-separated paths relative to From.
	Ignore []string
}

type compiledPattern struct {
	Pattern
	ignore []glob.Glob
}

// Plugin copies files on ProcessAssets.
type Plugin struct {
	patterns []compiledPattern
}

// New compiles the ignore globs of patterns.
func New(patterns ...Pattern) (*Plugin, error) {
	p := &Plugin{}
	for _, pat := range patterns {
		if strings.TrimSpace(pat.From) == "" {
			return nil, errors.New("copy pattern requires a source")
		}
		cp := compiledPattern{Pattern: pat}
		for _, expr := range pat.Ignore {
			g, err := glob.Compile(expr, '/')
			if err != nil {
				return nil, fmt.Errorf("compile ignore %q: %w", expr, err)
			}
			cp.ignore = append(cp.ignore, g)
		}
		p.patterns = append(p.patterns, cp)
	}
	return p, nil
}

// Apply implements compiler.Plugin.
func (p *Plugin) Apply(c *compiler.Compiler) error {
	base := c.Options().Context
	logger := c.Logger().With(slog.String("plugin", Name))
	c.Hooks.ProcessAssets.Tap(Name, func(comp *compiler.Compilation) error {
		for _, pat := range p.patterns {
			from := pat.From
			if !filepath.IsAbs(from) {
				from = filepath.Join(base, filepath.FromSlash(from))
			}
			files, err := pat.collect(from)
			if err != nil {
				return err
			}
			for name, src := range files {
				a, err := asset.NewFile(src)
				if err != nil {
					return err
				}
				if err := comp.EmitAsset(name, a); err != nil {
					return err
				}
			}
			logger.Debug("copied files", slog.String("from", from), slog.Int("files", len(files)))
		}
		return nil
	})
	return nil
}

// collect maps asset names to source files for one pattern.
func (pat compiledPattern) collect(from string) (map[string]string, error) {
	info, err := os.Stat(from)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("unable to locate %s: %w", from, err)
		}
		return nil, err
	}

	to := strings.Trim(filepath.ToSlash(pat.To), "/")
	files := make(map[string]string)
	if !info.IsDir() {
		rel := filepath.Base(from)
		if !pat.ignored(rel) {
			files[path.Join(to, rel)] = from
		}
		return files, nil
	}

	err = filepath.WalkDir(from, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(from, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if pat.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		files[path.Join(to, rel)] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", from, err)
	}
	return files, nil
}

func (pat compiledPattern) ignored(rel string) bool {
	for _, g := range pat.ignore {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
