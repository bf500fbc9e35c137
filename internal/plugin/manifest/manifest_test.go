package manifest_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/euforicio/bundlekit/internal/asset"
	"github.com/euforicio/bundlekit/internal/compiler"
	"github.com/euforicio/bundlekit/internal/plugin/manifest"
)

func TestBuildHashesAssets(t *testing.T) {
	t.Parallel()
	assets := asset.Map{
		"bundle.js":     asset.NewRawString("console.log(1);"),
		"index.html":    asset.NewRawString("<html></html>"),
		"manifest.json": asset.NewRawString("{}"),
	}
	m, err := manifest.Build(assets, []string{"bundle.js"}, "manifest.json")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := m.Assets["manifest.json"]; ok {
		t.Fatalf("manifest must not list itself")
	}
	sum := blake3.Sum256([]byte("console.log(1);"))
	got := m.Assets["bundle.js"]
	if got.Hash != hex.EncodeToString(sum[:]) || got.Size != len("console.log(1);") {
		t.Fatalf("unexpected entry %+v", got)
	}
	if len(m.Entrypoints) != 1 || m.Entrypoints[0] != "bundle.js" {
		t.Fatalf("unexpected entrypoints %v", m.Entrypoints)
	}
}

func TestPluginWritesManifest(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.js"), []byte("console.log('m');\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := filepath.Join(root, "dist")
	c, err := compiler.New(compiler.Options{
		Context:    root,
		Entry:      []string{"main.js"},
		OutputPath: out,
		PublicPath: "/assets/",
		Mode:       compiler.ModeNone,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), manifest.New("meta/assets.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(out, "meta", "assets.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m manifest.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	bundle, err := os.ReadFile(filepath.Join(out, "bundle.js"))
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	sum := blake3.Sum256(bundle)
	if m.Assets["bundle.js"].Hash != hex.EncodeToString(sum[:]) {
		t.Fatalf("manifest hash does not match written bundle")
	}
	if m.PublicPath != "/assets/" {
		t.Fatalf("unexpected public path %q", m.PublicPath)
	}
}
