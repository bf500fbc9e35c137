// Package manifest emits a JSON index of the build output with content hashes.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/euforicio/bundlekit/internal/asset"
	"github.com/euforicio/bundlekit/internal/compiler"
)

// Name identifies the plugin in hook traces and errors.
const Name = "ManifestPlugin"

// DefaultFilename is used when New receives an empty name.
const DefaultFilename = "manifest.json"

// Entry describes one asset.
type Entry struct {
	Size int    `json:"size"`
	Hash string `json:"hash"`
}

// Manifest is the document written to the output directory.
type Manifest struct {
	PublicPath  string           `json:"publicPath,omitempty"`
	Entrypoints []string         `json:"entrypoints"`
	Assets      map[string]Entry `json:"assets"`
}

// Plugin writes the manifest on Emit. Apply it last so it sees every other asset.
type Plugin struct {
	filename string
}

// New returns a manifest plugin writing to filename.
func New(filename string) *Plugin {
	if filename == "" {
		filename = DefaultFilename
	}
	return &Plugin{filename: asset.NormalizeName(filename)}
}

// Apply implements compiler.Plugin.
func (p *Plugin) Apply(c *compiler.Compiler) error {
	logger := c.Logger().With(slog.String("plugin", Name))
	publicPath := c.Options().PublicPath
	c.Hooks.Emit.Tap(Name, func(comp *compiler.Compilation) error {
		m, err := Build(comp.Assets(), comp.EntryFiles(), p.filename)
		if err != nil {
			return err
		}
		m.PublicPath = publicPath
		raw, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		comp.Assets().Set(p.filename, asset.NewRaw(append(raw, '\n')))
		logger.Debug("wrote manifest", slog.String("file", p.filename), slog.Int("assets", len(m.Assets)))
		return nil
	})
	return nil
}

// Build hashes every asset except the manifest itself.
func Build(assets asset.Map, entrypoints []string, self string) (Manifest, error) {
	m := Manifest{
		Entrypoints: entrypoints,
		Assets:      make(map[string]Entry, len(assets)),
	}
	if m.Entrypoints == nil {
		m.Entrypoints = []string{}
	}
	for _, name := range assets.Names() {
		if name == self {
			continue
		}
		src, err := assets[name].Source()
		if err != nil {
			return Manifest{}, fmt.Errorf("read %s: %w", name, err)
		}
		sum := blake3.Sum256(src)
		m.Assets[name] = Entry{
			Size: len(src),
			Hash: hex.EncodeToString(sum[:]),
		}
	}
	return m, nil
}
