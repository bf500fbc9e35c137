// Package compress emits precompressed .gz and .zst siblings for text assets so a static
// server can answer Accept-Encoding without compressing on the fly.
package compress

import (
	"bytes"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/euforicio/bundlekit/internal/asset"
	"github.com/euforicio/bundlekit/internal/compiler"
)

// Name identifies the plugin in hook traces and errors.
const Name = "CompressPlugin"

// MinRatio is the largest compressed/original size ratio worth emitting.
const MinRatio = 0.8

var compressible = map[string]bool{
	".js":   true,
	".mjs":  true,
	".css":  true,
	".html": true,
	".json": true,
	".map":  true,
	".svg":  true,
	".txt":  true,
	".xml":  true,
}

// Options select encodings. Assets smaller than Threshold bytes are skipped.
type Options struct {
	Gzip      bool
	Zstd      bool
	Threshold int
}

// Plugin taps Emit. Apply it after plugins that rewrite assets on Emit so the siblings
// match the final content.
type Plugin struct {
	opts Options
	zstd *zstd.Encoder
}

// New returns a compress plugin.
func New(opts Options) (*Plugin, error) {
	p := &Plugin{opts: opts}
	if opts.Zstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		p.zstd = enc
	}
	return p, nil
}

// Apply implements compiler.Plugin.
func (p *Plugin) Apply(c *compiler.Compiler) error {
	if !p.opts.Gzip && !p.opts.Zstd {
		return nil
	}
	logger := c.Logger().With(slog.String("plugin", Name))
	c.Hooks.Emit.Tap(Name, func(comp *compiler.Compilation) error {
		added, err := p.compressAll(comp.Assets())
		if err != nil {
			return err
		}
		logger.Debug("compressed assets", slog.Int("added", added))
		return nil
	})
	return nil
}

func (p *Plugin) compressAll(assets asset.Map) (int, error) {
	added := 0
	for _, name := range assets.Names() {
		a := assets[name]
		if !compressible[strings.ToLower(path.Ext(name))] || a.Size() < p.opts.Threshold {
			continue
		}
		src, err := a.Source()
		if err != nil {
			return added, fmt.Errorf("read %s: %w", name, err)
		}
		if p.opts.Gzip {
			gz, err := Gzip(src)
			if err != nil {
				return added, fmt.Errorf("gzip %s: %w", name, err)
			}
			if worthIt(gz, src) {
				assets.Set(name+".gz", asset.NewRaw(gz))
				added++
			}
		}
		if p.zstd != nil {
			zst := p.zstd.EncodeAll(src, nil)
			if worthIt(zst, src) {
				assets.Set(name+".zst", asset.NewRaw(zst))
				added++
			}
		}
	}
	return added, nil
}

// Gzip compresses src at the best compression level.
func Gzip(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func worthIt(compressed, original []byte) bool {
	if len(original) == 0 {
		return false
	}
	return float64(len(compressed))/float64(len(original)) <= MinRatio
}
