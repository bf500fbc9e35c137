package clean_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/euforicio/bundlekit/internal/asset"
	"github.com/euforicio/bundlekit/internal/compiler"
	"github.com/euforicio/bundlekit/internal/plugin/clean"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func TestCleanWipesThenRemovesStaleAssets(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	out := filepath.Join(root, "dist")
	write(t, filepath.Join(root, "main.js"), "console.log(1);\n")
	write(t, filepath.Join(out, "old", "leftover.js"), "old")
	write(t, filepath.Join(out, ".gitkeep"), "")

	extra := "extra.txt"
	emitter := compiler.PluginFunc(func(c *compiler.Compiler) error {
		c.Hooks.ProcessAssets.Tap("emitter", func(comp *compiler.Compilation) error {
			if extra == "" {
				return nil
			}
			return comp.EmitAsset(extra, asset.NewRawString("x"))
		})
		return nil
	})

	plugin, err := clean.New(".gitkeep")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c, err := compiler.New(compiler.Options{
		Context:    root,
		Entry:      []string{"main.js"},
		OutputPath: out,
		Mode:       compiler.ModeNone,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), emitter, plugin)
	if err != nil {
		t.Fatalf("New compiler: %v", err)
	}

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if exists(filepath.Join(out, "old")) {
		t.Fatalf("expected previous output to be wiped")
	}
	if !exists(filepath.Join(out, ".gitkeep")) {
		t.Fatalf("expected kept file to survive")
	}
	if !exists(filepath.Join(out, "extra.txt")) || !exists(filepath.Join(out, "bundle.js")) {
		t.Fatalf("expected current assets on disk")
	}

	// A file written between builds is not touched by the wipe, only by the stale sweep.
	write(t, filepath.Join(out, "sub", "note.txt"), "n")
	extra = ""
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if exists(filepath.Join(out, "extra.txt")) {
		t.Fatalf("expected stale asset to be removed")
	}
	if exists(filepath.Join(out, "sub")) {
		t.Fatalf("expected emptied directory to be pruned")
	}
	if !exists(filepath.Join(out, "bundle.js")) || !exists(filepath.Join(out, ".gitkeep")) {
		t.Fatalf("expected bundle and kept file to survive")
	}
}

func TestCleanMissingOutput(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	write(t, filepath.Join(root, "main.js"), "1;\n")
	plugin, err := clean.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c, err := compiler.New(compiler.Options{
		Context:    root,
		Entry:      []string{"main.js"},
		OutputPath: filepath.Join(root, "never-created"),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), plugin)
	if err != nil {
		t.Fatalf("New compiler: %v", err)
	}
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestNewRejectsBadGlob(t *testing.T) {
	t.Parallel()
	if _, err := clean.New("[oops"); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestCleanRefusesOutputContainingContext(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	write(t, filepath.Join(root, "main.js"), "1;\n")
	write(t, filepath.Join(root, "notes.txt"), "keep me")

	for _, out := range []string{root, filepath.Dir(root)} {
		plugin, err := clean.New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, err = compiler.New(compiler.Options{
			Context:    root,
			Entry:      []string{"main.js"},
			OutputPath: out,
		}, slog.New(slog.NewTextHandler(io.Discard, nil)), plugin)
		if err == nil || !strings.Contains(err.Error(), clean.Name) {
			t.Fatalf("output %s: expected %s to refuse, got %v", out, clean.Name, err)
		}
	}
	if !exists(filepath.Join(root, "main.js")) || !exists(filepath.Join(root, "notes.txt")) {
		t.Fatalf("expected project files untouched")
	}
}
