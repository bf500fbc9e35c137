package asset_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/euforicio/bundlekit/internal/asset"
)

func TestRawSizeTracksContent(t *testing.T) {
	t.Parallel()
	a := asset.NewRawString("héllo")
	src, err := a.Source()
	if err != nil {
		t.Fatalf("Source returned error: %v", err)
	}
	if a.Size() != len(src) {
		t.Fatalf("expected size %d, got %d", len(src), a.Size())
	}
	if a.Size() != 6 {
		t.Fatalf("expected byte length 6, got %d", a.Size())
	}
}

func TestFileSourceFailsAfterRemoval(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logo.txt")
	if err := os.WriteFile(path, []byte("logo"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := asset.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if f.Size() != 4 {
		t.Fatalf("expected size 4, got %d", f.Size())
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}
	if _, err := f.Source(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestMapGetAndNames(t *testing.T) {
	t.Parallel()
	m := asset.Map{}
	m.Set("z.css", asset.NewRawString("z"))
	m.Set("bundle.js", asset.NewRawString("js"))
	m.Set("index.html", asset.NewRawString("<html>"))

	names := m.Names()
	want := []string{"bundle.js", "index.html", "z.css"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected order: %v", names)
		}
	}
	if m.TotalSize() != 2+6+1 {
		t.Fatalf("unexpected total size %d", m.TotalSize())
	}
	if _, err := m.Get("missing.js"); !errors.Is(err, asset.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	m.Delete("z.css")
	if m.Has("z.css") {
		t.Fatalf("expected z.css to be deleted")
	}
}

func TestWriteCreatesNestedFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := asset.Map{
		"bundle.js":        asset.NewRawString("console.log(1)"),
		"assets/css/a.css": asset.NewRawString("body{}"),
		"about.html":       asset.NewRawString("<p>about</p>"),
	}
	if err := asset.Write(context.Background(), dir, m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for name, want := range map[string]string{
		"bundle.js":        "console.log(1)",
		"assets/css/a.css": "body{}",
		"about.html":       "<p>about</p>",
	} {
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Fatalf("%s: got %q want %q", name, got, want)
		}
	}
}

func TestWriteRejectsEscapingNames(t *testing.T) {
	t.Parallel()
	m := asset.Map{"../evil.js": asset.NewRawString("x")}
	if err := asset.Write(context.Background(), t.TempDir(), m); err == nil {
		t.Fatalf("expected error for escaping asset name")
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"./about.html":      "about.html",
		"js/../bundle.js":   "bundle.js",
		"assets//img/a.png": "assets/img/a.png",
	}
	for in, want := range cases {
		if got := asset.NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileSizeTracksEdits(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "robots.txt")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := asset.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := os.WriteFile(path, []byte("User-agent: *\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	src, err := f.Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if f.Size() != len(src) {
		t.Fatalf("expected size %d after edit, got %d", len(src), f.Size())
	}
}
