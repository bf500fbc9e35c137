// Package compiler drives a build: it bundles entry points with esbuild, lets plugins add and
// rewrite assets through lifecycle hooks, and writes the result to the output directory.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/euforicio/bundlekit/internal/asset"
)

// Build modes. ModeNone leaves output untouched, ModeProduction minifies.
const (
	ModeNone        = "none"
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// ErrNoEntry is returned by Run when no entry point is configured.
var ErrNoEntry = errors.New("no entry point configured")

// Plugin installs itself on a compiler by tapping hooks or registering loaders.
type Plugin interface {
	Apply(c *Compiler) error
}

// PluginFunc adapts a function to the Plugin interface.
type PluginFunc func(c *Compiler) error

// Apply calls fn(c).
func (fn PluginFunc) Apply(c *Compiler) error { return fn(c) }

// Options configure a compiler.
type Options struct {
	// Context is the directory entries and loaders resolve against.
	Context string
	// Entry lists entry modules relative to Context.
	Entry []string
	// OutputPath is the directory assets are written to.
	OutputPath string
	// Filename names the bundle. "[name]" expands to the entry's base name.
	Filename   string
	PublicPath string
	Mode       string
	Sourcemap  bool
}

// Compiler runs builds. One build runs at a time; concurrent Run calls queue on a mutex.
type Compiler struct {
	Hooks Hooks

	opts    Options
	logger  *slog.Logger
	loaders []Loader

	runMu sync.Mutex
	mu    sync.RWMutex
	last  *Stats
}

// New constructs a compiler and applies plugins in order.
func New(opts Options, logger *slog.Logger, plugins ...Plugin) (*Compiler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(opts.OutputPath) == "" {
		return nil, errors.New("output path is required")
	}
	if strings.TrimSpace(opts.Filename) == "" {
		opts.Filename = "bundle.js"
	}
	if opts.Mode == "" {
		opts.Mode = ModeProduction
	}
	if opts.Context == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve context: %w", err)
		}
		opts.Context = wd
	}
	for _, dir := range []*string{&opts.Context, &opts.OutputPath} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", *dir, err)
		}
		*dir = abs
	}

	c := &Compiler{
		Hooks:  newHooks(),
		opts:   opts,
		logger: logger.With("component", "compiler"),
	}
	for _, p := range plugins {
		if p == nil {
			continue
		}
		if err := p.Apply(c); err != nil {
			return nil, fmt.Errorf("apply plugin %T: %w", p, err)
		}
	}
	return c, nil
}

// Options returns the compiler configuration.
func (c *Compiler) Options() Options {
	return c.opts
}

// Logger returns the compiler logger. Plugins derive their own from it.
func (c *Compiler) Logger() *slog.Logger {
	return c.logger
}

// LastStats returns the stats of the most recent successful build, or nil.
func (c *Compiler) LastStats() *Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Run performs one build.
func (c *Compiler) Run(ctx context.Context) (*Stats, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if len(c.opts.Entry) == 0 {
		return nil, ErrNoEntry
	}

	start := time.Now()
	comp := newCompilation(c, uuid.NewString())
	trace := func(hook, tap string) {
		c.logger.Debug("hook", slog.String("hook", hook), slog.String("tap", tap))
	}

	if err := c.Hooks.BeforeRun.call(comp, trace); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.bundle(ctx, comp); err != nil {
		return nil, err
	}

	if err := c.Hooks.ProcessAssets.call(comp, trace); err != nil {
		return nil, err
	}
	if err := c.Hooks.Emit.call(comp, trace); err != nil {
		return nil, err
	}

	if err := asset.Write(ctx, c.opts.OutputPath, comp.assets); err != nil {
		return nil, fmt.Errorf("write assets: %w", err)
	}

	stats, err := newStats(comp, start)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.last = stats
	c.mu.Unlock()

	if err := c.Hooks.Done.call(stats, trace); err != nil {
		return stats, err
	}

	c.logger.Info("build complete",
		slog.String("hash", stats.Hash),
		slog.Int("assets", len(stats.Assets)),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// Compilation is the state of one build pass.
type Compilation struct {
	ID       string
	compiler *Compiler
	assets   asset.Map
	entries  []string
	warnings []string
}

func newCompilation(c *Compiler, id string) *Compilation {
	return &Compilation{
		ID:       id,
		compiler: c,
		assets:   asset.Map{},
	}
}

// Options returns the configuration of the owning compiler.
func (comp *Compilation) Options() Options {
	return comp.compiler.opts
}

// Logger returns the compiler logger.
func (comp *Compilation) Logger() *slog.Logger {
	return comp.compiler.logger
}

// Assets returns the mutable asset map of this build.
func (comp *Compilation) Assets() asset.Map {
	return comp.assets
}

// EntryFiles lists the emitted JavaScript files produced for entry points.
func (comp *Compilation) EntryFiles() []string {
	return append([]string(nil), comp.entries...)
}

// Warnings returns the warnings collected so far.
func (comp *Compilation) Warnings() []string {
	return append([]string(nil), comp.warnings...)
}

// Warn records a non-fatal problem that is reported with the build stats.
func (comp *Compilation) Warn(msg string) {
	comp.warnings = append(comp.warnings, msg)
}

// EmitAsset adds a new asset. Emitting a different asset under an existing name is a conflict.
func (comp *Compilation) EmitAsset(name string, a asset.Asset) error {
	name = asset.NormalizeName(name)
	if existing, ok := comp.assets[name]; ok && existing != a {
		return fmt.Errorf("conflict: multiple assets emit to the same filename %s", name)
	}
	comp.assets[name] = a
	return nil
}
