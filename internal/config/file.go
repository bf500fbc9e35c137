package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/tidwall/jsonc"
)

// ErrUnsupportedFormat is returned for config files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// FileNames lists the config files looked up in the context directory, in order.
var FileNames = []string{
	"bundlekit.config.jsonc",
	"bundlekit.config.json",
	"bundlekit.config.yaml",
	"bundlekit.config.yml",
}

// LoadFile decodes the config file at path on top of cfg. Fields missing from the file keep
// their current value. Unknown keys are rejected.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonc", ".json":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
	case ".yaml", ".yml":
		if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
			return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	cfg.ConfigFile = path
	// Paths inside the file are relative to the file unless it sets a context.
	if cfg.Context == "" || cfg.Context == "." {
		cfg.Context = filepath.Dir(path)
	} else if !filepath.IsAbs(cfg.Context) {
		cfg.Context = filepath.Join(filepath.Dir(path), cfg.Context)
	}
	return nil
}

// Discover returns the config file to load for args: an explicit --config/-c flag, then
// BUNDLEKIT_CONFIG, then the first of FileNames found in the --context (or BUNDLEKIT_CONTEXT,
// or current) directory. It returns "" when there is nothing to load.
func Discover(args []string) (string, error) {
	explicit, dir := scanArgs(args)
	if explicit == "" {
		explicit, _ = lookupNonEmpty("CONFIG")
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}

	if dir == "" {
		dir, _ = lookupNonEmpty("CONTEXT")
	}
	if dir == "" {
		dir = "."
	}
	for _, name := range FileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

// Load builds a Config from defaults, the discovered config file and the environment.
// Command-line flags are applied afterwards by parsing a FlagSet registered with RegisterFlags.
func Load(args []string) (Config, error) {
	cfg := Default()
	path, err := Discover(args)
	if err != nil {
		return cfg, err
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// scanArgs pulls --config and --context out of args without a full flag parse.
func scanArgs(args []string) (configPath, contextDir string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		var name, value string
		switch {
		case strings.HasPrefix(arg, "--config="), strings.HasPrefix(arg, "--context="):
			name, value, _ = strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		case strings.HasPrefix(arg, "-c="):
			name, value = "config", strings.TrimPrefix(arg, "-c=")
		case arg == "--config" || arg == "-c" || arg == "--context":
			if i+1 >= len(args) {
				continue
			}
			name, value = strings.TrimLeft(arg, "-"), args[i+1]
			i++
		default:
			continue
		}
		if name == "c" {
			name = "config"
		}
		if name == "config" {
			configPath = value
		} else {
			contextDir = value
		}
	}
	return configPath, contextDir
}
