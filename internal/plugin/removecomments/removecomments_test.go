package removecomments_test

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
	"github.com/euforicio/bundlekit/internal/plugin/removecomments"
)

func TestStrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "marker before code", in: "/******/ var a = 1;", want: "var a = 1;"},
		{name: "two asterisks", in: "console.log('ok');/**/\n", want: "console.log('ok');"},
		{name: "only one whitespace consumed", in: "/***/  x", want: " x"},
		{name: "tab", in: "/***/\tx", want: "x"},
		{name: "unicode space", in: "/***/\u00a0x", want: "x"},
		{name: "line separator", in: "/***/\u2028x", want: "x"},
		{name: "several markers", in: "/******/ a;\n/******/ b;\n", want: "a;\nb;\n"},
		{name: "normal comment kept", in: "/* normal comment */ x", want: "/* normal comment */ x"},
		{name: "decorated comment kept", in: "/**** comment ****/x", want: "/**** comment ****/x"},
		{name: "jsdoc kept", in: "/** @type {number} */ let n;", want: "/** @type {number} */ let n;"},
		{name: "single asterisk kept", in: "/*/ x", want: "/*/ x"},
		{name: "no match", in: "const a = 2 * 3 / 4;", want: "const a = 2 * 3 / 4;"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := string(removecomments.Strip([]byte(tt.in))); got != tt.want {
				t.Fatalf("Strip(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyRewritesOnlyJavaScript(t *testing.T) {
	t.Parallel()
	css := asset.NewRawString("/******/ body{}")
	html := asset.NewRawString("<script>/******/ x</script>")
	mjs := asset.NewRawString("/******/ export {}")
	js := asset.NewRawString("/******/ (() => {\n/******/ \tvar x = 1;\n})();\n")

	assets := asset.Map{
		"main.css":   css,
		"index.html": html,
		"lib.mjs":    mjs,
		"bundle.js":  js,
	}
	if err := removecomments.Apply(assets); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if assets["main.css"] != asset.Asset(css) || assets["index.html"] != asset.Asset(html) || assets["lib.mjs"] != asset.Asset(mjs) {
		t.Fatalf("expected non-js assets to be left untouched")
	}
	if assets["bundle.js"] == asset.Asset(js) {
		t.Fatalf("expected bundle.js to be replaced by a new asset")
	}

	src, err := assets["bundle.js"].Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if string(src) != "(() => {\n\tvar x = 1;\n})();\n" {
		t.Fatalf("unexpected content %q", src)
	}
	if assets["bundle.js"].Size() != len(src) {
		t.Fatalf("size %d does not match content length %d", assets["bundle.js"].Size(), len(src))
	}

	orig, _ := js.Source()
	if !strings.HasPrefix(string(orig), "/******/") {
		t.Fatalf("expected original asset to be left unmodified, got %q", orig)
	}
	if len(assets) != 4 {
		t.Fatalf("expected key set to be unchanged, got %v", assets.Names())
	}
}

func TestApplyUnmatchedContentKeepsSize(t *testing.T) {
	t.Parallel()
	assets := asset.Map{"plain.js": asset.NewRawString("/* keep */ let a;")}
	if err := removecomments.Apply(assets); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	src, _ := assets["plain.js"].Source()
	if string(src) != "/* keep */ let a;" || assets["plain.js"].Size() != len(src) {
		t.Fatalf("unexpected result %q (size %d)", src, assets["plain.js"].Size())
	}
}

type failingAsset struct{ err error }

func (f failingAsset) Source() ([]byte, error) { return nil, f.err }
func (f failingAsset) Size() int               { return 0 }

func TestApplyPropagatesReadErrors(t *testing.T) {
	t.Parallel()
	readErr := errors.New("disk gone")
	assets := asset.Map{"broken.js": failingAsset{err: readErr}}
	if err := removecomments.Apply(assets); !errors.Is(err, readErr) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestPluginRunsOnEmit(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	entry := filepath.Join(root, "main.js")
	if err := os.WriteFile(entry, []byte("console.log('ok');\n"), 0o644); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	out := filepath.Join(root, "dist")

	marker := compiler.PluginFunc(func(c *compiler.Compiler) error {
		c.Hooks.ProcessAssets.Tap("marker", func(comp *compiler.Compilation) error {
			src, err := comp.Assets()["bundle.js"].Source()
			if err != nil {
				return err
			}
			comp.Assets().Set("bundle.js", asset.NewRawString("/******/ "+string(src)))
			return comp.EmitAsset("vendor.txt", asset.NewRawString("/******/ untouched"))
		})
		return nil
	})

	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	c, err := compiler.New(compiler.Options{
		Context:    root,
		Entry:      []string{"main.js"},
		OutputPath: out,
		Mode:       compiler.ModeNone,
	}, logger, marker, removecomments.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.Contains(logs.String(), "remove comments plugin start") {
		t.Fatalf("expected install log line, got %s", logs.String())
	}
	if taps := c.Hooks.Emit.Taps(); len(taps) != 1 || taps[0] != removecomments.Name {
		t.Fatalf("unexpected emit taps: %v", taps)
	}

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	bundle, err := os.ReadFile(filepath.Join(out, "bundle.js"))
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if strings.Contains(string(bundle), "/******/") {
		t.Fatalf("expected marker to be stripped, got %s", bundle)
	}
	if !strings.Contains(string(bundle), "console.log") {
		t.Fatalf("expected code to survive, got %s", bundle)
	}
	vendor, err := os.ReadFile(filepath.Join(out, "vendor.txt"))
	if err != nil {
		t.Fatalf("read vendor: %v", err)
	}
	if string(vendor) != "/******/ untouched" {
		t.Fatalf("expected non-js asset untouched, got %q", vendor)
	}
}

func TestPluginInstallsWithoutOutput(t *testing.T) {
	t.Parallel()
	c, err := compiler.New(compiler.Options{OutputPath: t.TempDir()},
		slog.New(slog.NewTextHandler(io.Discard, nil)), removecomments.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(c.Hooks.Emit.Taps()) != 1 {
		t.Fatalf("expected one emit tap")
	}
}
