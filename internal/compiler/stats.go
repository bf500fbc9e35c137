package compiler

import (
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/zeebo/blake3"
)

const hashLength = 20

// AssetStat describes one written asset.
type AssetStat struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Stats summarize a finished build.
type Stats struct {
	ID         string        `json:"id"`
	Hash       string        `json:"hash"`
	Mode       string        `json:"mode"`
	OutputPath string        `json:"outputPath"`
	StartTime  time.Time     `json:"startTime"`
	Duration   time.Duration `json:"duration"`
	Assets     []AssetStat   `json:"assets"`
	EntryFiles []string      `json:"entryFiles"`
	Warnings   []string      `json:"warnings,omitempty"`
	TotalSize  int           `json:"totalSize"`
}

// newStats hashes every asset in name order, so identical output gives an identical hash.
func newStats(comp *Compilation, start time.Time) (*Stats, error) {
	h := blake3.New()
	names := comp.assets.Names()
	assets := make([]AssetStat, 0, len(names))
	for _, name := range names {
		a := comp.assets[name]
		src, err := a.Source()
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", name, err)
		}
		_, _ = io.WriteString(h, name)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(src)
		assets = append(assets, AssetStat{Name: name, Size: a.Size()})
	}

	sum := hex.EncodeToString(h.Sum(nil))
	return &Stats{
		ID:         comp.ID,
		Hash:       sum[:hashLength],
		Mode:       comp.compiler.opts.Mode,
		OutputPath: comp.compiler.opts.OutputPath,
		StartTime:  start,
		Duration:   time.Since(start),
		Assets:     assets,
		EntryFiles: comp.EntryFiles(),
		Warnings:   comp.Warnings(),
		TotalSize:  comp.assets.TotalSize(),
	}, nil
}

// WriteTable prints the asset table in the style of a bundler summary.
func (s *Stats) WriteTable(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "hash: %s\nmode: %s\ntime: %s\n\n", s.Hash, s.Mode, s.Duration.Round(time.Millisecond)); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	if _, err := fmt.Fprintln(tw, "Asset\tSize\t"); err != nil {
		return err
	}
	for _, a := range s.Assets {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t\n", a.Name, FormatSize(a.Size)); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, warn := range s.Warnings {
		if _, err := fmt.Fprintf(w, "\nWARNING %s\n", warn); err != nil {
			return err
		}
	}
	return nil
}

// FormatSize renders a byte count with a binary unit.
func FormatSize(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d bytes", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
