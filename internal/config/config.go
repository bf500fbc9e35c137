// Package config manages build configuration from config files, environment variables and flags.
//
// Precedence, lowest first: Default, config file, BUNDLEKIT_* environment, command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

const envPrefix = "BUNDLEKIT_"

// Build modes accepted by the compiler.
const (
	ModeNone        = "none"
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config holds the configuration for a build and the dev server.
type Config struct {
	Mode           string         `json:"mode" yaml:"mode"`
	Context        string         `json:"context" yaml:"context"`
	Entry          []string       `json:"entry" yaml:"entry"`
	Output         OutputConfig   `json:"output" yaml:"output"`
	Sourcemap      bool           `json:"sourcemap" yaml:"sourcemap"`
	Pages          []PageConfig   `json:"pages" yaml:"pages"`
	Copy           []CopyConfig   `json:"copy" yaml:"copy"`
	Clean          bool           `json:"clean" yaml:"clean"`
	CleanKeep      []string       `json:"cleanKeep" yaml:"cleanKeep"`
	RemoveComments bool           `json:"removeComments" yaml:"removeComments"`
	Compress       CompressConfig `json:"compress" yaml:"compress"`
	Manifest       string         `json:"manifest" yaml:"manifest"`
	Markdown       MarkdownConfig `json:"markdown" yaml:"markdown"`
	Dev            DevConfig      `json:"dev" yaml:"dev"`

	// ConfigFile is the file the configuration was loaded from, if any.
	ConfigFile string `json:"-" yaml:"-"`
	Verbose    bool   `json:"-" yaml:"-"`
}

// OutputConfig controls where and under which name the bundle is written.
type OutputConfig struct {
	Path       string `json:"path" yaml:"path"`
	Filename   string `json:"filename" yaml:"filename"`
	PublicPath string `json:"publicPath" yaml:"publicPath"`
}

// PageConfig describes one generated HTML page.
type PageConfig struct {
	Title    string            `json:"title" yaml:"title"`
	Template string            `json:"template" yaml:"template"`
	Filename string            `json:"filename" yaml:"filename"`
	Meta     map[string]string `json:"meta" yaml:"meta"`
}

// CopyConfig copies static files into the output directory.
type CopyConfig struct {
	From   string   `json:"from" yaml:"from"`
	To     string   `json:"to" yaml:"to"`
	Ignore []string `json:"ignore" yaml:"ignore"`
}

// CompressConfig adds precompressed siblings for text assets.
type CompressConfig struct {
	Gzip      bool `json:"gzip" yaml:"gzip"`
	Zstd      bool `json:"zstd" yaml:"zstd"`
	Threshold int  `json:"threshold" yaml:"threshold"`
}

// MarkdownConfig configures the markdown loader.
type MarkdownConfig struct {
	Stylesheet string `json:"stylesheet" yaml:"stylesheet"`
	Style      string `json:"style" yaml:"style"`
	// D2 renders ```d2 fences to inline SVG at build time.
	D2 bool `json:"d2" yaml:"d2"`
}

// DevConfig configures the development server.
type DevConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	// Open launches the system browser once the server is listening.
	Open bool `json:"open" yaml:"open"`
}

// Default returns ready-to-use defaults prior to file/env/flag overrides.
func Default() Config {
	return Config{
		Mode:    ModeNone,
		Context: ".",
		Entry:   []string{"./src/main.js"},
		Output: OutputConfig{
			Path:     "dist",
			Filename: "bundle.js",
		},
		Clean:          true,
		RemoveComments: true,
		Compress: CompressConfig{
			Threshold: 1024,
		},
		Markdown: MarkdownConfig{
			Style: "github",
		},
		Dev: DevConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.ConfigFile, "config", "c", cfg.ConfigFile, "path to a bundlekit.config.{jsonc,json,yaml,yml} file")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "build mode: none, development or production")
	fs.StringVar(&cfg.Context, "context", cfg.Context, "base directory for entries, templates and copy sources")
	fs.StringSliceVarP(&cfg.Entry, "entry", "e", cfg.Entry, "entry module(s), relative to the context")
	fs.StringVarP(&cfg.Output.Path, "out", "o", cfg.Output.Path, "output directory")
	fs.StringVar(&cfg.Output.Filename, "filename", cfg.Output.Filename, "bundle filename ([name] expands to the entry name)")
	fs.StringVar(&cfg.Output.PublicPath, "public-path", cfg.Output.PublicPath, "public URL prefix for emitted assets")
	fs.BoolVar(&cfg.Sourcemap, "sourcemap", cfg.Sourcemap, "emit linked source maps")
	fs.BoolVar(&cfg.Clean, "clean", cfg.Clean, "wipe the output directory before the first build")
	fs.StringSliceVar(&cfg.CleanKeep, "clean-keep", cfg.CleanKeep, "glob(s), relative to the output directory, the clean step never removes")
	fs.BoolVar(&cfg.RemoveComments, "remove-comments", cfg.RemoveComments, "strip /****/ markers from emitted JavaScript")
	fs.StringVar(&cfg.Manifest, "manifest", cfg.Manifest, "emit an asset manifest under this name")
	fs.StringVar(&cfg.Dev.Host, "host", cfg.Dev.Host, "dev server bind host")
	fs.IntVarP(&cfg.Dev.Port, "port", "p", cfg.Dev.Port, "dev server port (0 = auto-assign)")
	fs.BoolVar(&cfg.Dev.Open, "open", cfg.Dev.Open, "open the dev server in a browser")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging")
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("MODE", func(v string) { cfg.Mode = v })
	applyStringEnv("CONTEXT", func(v string) { cfg.Context = v })
	applyStringEnv("ENTRY", func(v string) { cfg.Entry = splitList(v) })
	applyStringEnv("OUT", func(v string) { cfg.Output.Path = v })
	applyStringEnv("FILENAME", func(v string) { cfg.Output.Filename = v })
	applyStringEnv("PUBLIC_PATH", func(v string) { cfg.Output.PublicPath = v })
	applyBoolEnv("SOURCEMAP", func(v bool) { cfg.Sourcemap = v })
	applyBoolEnv("CLEAN", func(v bool) { cfg.Clean = v })
	applyStringEnv("CLEAN_KEEP", func(v string) { cfg.CleanKeep = splitList(v) })
	applyBoolEnv("REMOVE_COMMENTS", func(v bool) { cfg.RemoveComments = v })
	applyStringEnv("HOST", func(v string) { cfg.Dev.Host = v })
	applyIntEnv("PORT", func(v int) { cfg.Dev.Port = v })
	applyBoolEnv("OPEN", func(v bool) { cfg.Dev.Open = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyIntEnv(key string, apply func(int)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Finalize resolves paths against the context directory and validates the result.
func Finalize(cfg *Config) error {
	if cfg.Context == "" {
		cfg.Context = "."
	}
	ctxDir, err := filepath.Abs(cfg.Context)
	if err != nil {
		return fmt.Errorf("resolve context directory: %w", err)
	}
	cfg.Context = ctxDir

	if cfg.Output.Path == "" {
		cfg.Output.Path = "dist"
	}
	cfg.Output.Path = resolve(ctxDir, cfg.Output.Path)

	if cfg.Output.Filename == "" {
		cfg.Output.Filename = "bundle.js"
	}
	if cfg.Markdown.Style == "" {
		cfg.Markdown.Style = "github"
	}

	for i := range cfg.Pages {
		if cfg.Pages[i].Filename == "" {
			cfg.Pages[i].Filename = "index.html"
		}
		if cfg.Pages[i].Template != "" {
			cfg.Pages[i].Template = resolve(ctxDir, cfg.Pages[i].Template)
		}
	}
	for i := range cfg.Copy {
		if cfg.Copy[i].From != "" {
			cfg.Copy[i].From = resolve(ctxDir, cfg.Copy[i].From)
		}
	}

	return Validate(*cfg)
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, filepath.FromSlash(p))
}
