// Package asset models named build outputs held in memory until they are written to disk.
package asset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned by Map.Get when no asset is stored under a name.
var ErrNotFound = errors.New("asset not found")

// Asset is a unit of build output. Source returns the current content and
// Size its length in bytes.
type Asset interface {
	Source() ([]byte, error)
	Size() int
}

// Raw is an in-memory asset. Its size is always derived from the content it wraps.
type Raw struct {
	content []byte
}

// NewRaw wraps content in a Raw asset.
func NewRaw(content []byte) *Raw {
	return &Raw{content: content}
}

// NewRawString wraps a string in a Raw asset.
func NewRawString(content string) *Raw {
	return &Raw{content: []byte(content)}
}

// Source returns the wrapped content.
func (r *Raw) Source() ([]byte, error) {
	return r.content, nil
}

// Size returns len(content).
func (r *Raw) Size() int {
	return len(r.content)
}

// File is an asset backed by a file on disk. The file is read on every call
// to Source, so a file removed after the asset was created surfaces as an error.
type File struct {
	Path string
	size int
}

// NewFile stats path and returns a File asset for it.
func NewFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat asset source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("asset source %s is a directory", path)
	}
	return &File{Path: path, size: int(info.Size())}, nil
}

// Source reads the file.
func (f *File) Source() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read asset source: %w", err)
	}
	return data, nil
}

// Size stats the file again so it tracks edits made after the asset was created. When the
// file is gone it falls back to the size seen at creation; Source reports the error.
func (f *File) Size() int {
	if info, err := os.Stat(f.Path); err == nil {
		return int(info.Size())
	}
	return f.size
}

// Map holds the assets of one compilation keyed by output-relative, slash-separated name.
type Map map[string]Asset

// Get returns the asset stored under name.
func (m Map) Get(name string) (Asset, error) {
	a, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return a, nil
}

// Set stores a under name, replacing any previous asset.
func (m Map) Set(name string, a Asset) {
	m[name] = a
}

// Has reports whether name is present.
func (m Map) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// Delete removes name from the map.
func (m Map) Delete(name string) {
	delete(m, name)
}

// Names returns every asset name in lexical order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalSize sums the reported size of every asset.
func (m Map) TotalSize() int {
	total := 0
	for _, a := range m {
		total += a.Size()
	}
	return total
}

// NormalizeName converts a path relative to the output directory into an asset name.
func NormalizeName(rel string) string {
	name := filepath.ToSlash(filepath.Clean(rel))
	return strings.TrimPrefix(name, "./")
}

// Write stores every asset of m under dir, creating directories as needed.
func Write(ctx context.Context, dir string, m Map) error {
	for _, name := range m.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeOne(dir, name, m[name]); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func writeOne(dir, name string, a Asset) error {
	if strings.HasPrefix(name, "../") || name == ".." || filepath.IsAbs(name) {
		return fmt.Errorf("asset name escapes output directory: %s", name)
	}
	data, err := a.Source()
	if err != nil {
		return err
	}
	dest := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil { //nolint:gosec // standard directory permissions
		return err
	}
	return os.WriteFile(dest, data, 0o644) //nolint:gosec // standard file permissions
}
