// Package clean keeps the output directory limited to the assets of the latest build.
package clean

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/euforicio/bundlekit/internal/compiler"
)

// Name identifies the plugin in hook traces and errors.
const Name = "CleanPlugin"

// Plugin wipes the output directory before the first build and removes stale files after
// every successful build. Paths matching a keep glob are never removed.
type Plugin struct {
	keep []glob.Glob

	mu    sync.Mutex
	wiped bool
}

// New compiles keep patterns, matched against slash-separated paths relative to the output.
func New(keep ...string) (*Plugin, error) {
	p := &Plugin{}
	for _, expr := range keep {
		g, err := glob.Compile(expr, '/')
		if err != nil {
			return nil, fmt.Errorf("compile keep %q: %w", expr, err)
		}
		p.keep = append(p.keep, g)
	}
	return p, nil
}

// Apply implements compiler.Plugin.
func (p *Plugin) Apply(c *compiler.Compiler) error {
	out := c.Options().OutputPath
	if rel, err := filepath.Rel(out, c.Options().Context); err == nil &&
		rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s: refusing to clean %s, it contains the build context", Name, out)
	}
	logger := c.Logger().With(slog.String("plugin", Name))

	c.Hooks.BeforeRun.Tap(Name, func(*compiler.Compilation) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.wiped {
			return nil
		}
		removed, err := p.sweep(out, nil)
		if err != nil {
			return err
		}
		p.wiped = true
		logger.Debug("cleaned output", slog.String("dir", out), slog.Int("removed", removed))
		return nil
	})

	c.Hooks.Done.Tap(Name, func(stats *compiler.Stats) error {
		current := make(map[string]struct{}, len(stats.Assets))
		for _, a := range stats.Assets {
			current[a.Name] = struct{}{}
		}
		removed, err := p.sweep(out, current)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("removed stale assets", slog.Int("count", removed))
		}
		return nil
	})
	return nil
}

// sweep deletes files under dir that are neither kept nor listed in current, then prunes
// directories left empty. A missing dir is not an error.
func (p *Plugin) sweep(dir string, current map[string]struct{}) (int, error) {
	var (
		removed int
		dirs    []string
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if p.kept(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		if _, ok := current[rel]; ok {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("clean %s: %w", dir, err)
	}

	// Deepest first so parents empty out before they are visited.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err == nil && len(entries) == 0 {
			_ = os.Remove(d)
		}
	}
	return removed, nil
}

func (p *Plugin) kept(rel string) bool {
	for _, g := range p.keep {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
