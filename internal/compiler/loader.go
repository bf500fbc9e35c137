package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/evanw/esbuild/pkg/api"
)

// LoadArgs carry one module to a loader.
type LoadArgs struct {
	// Path is the absolute path of the module being loaded.
	Path   string
	Source []byte
}

// Loader turns a module matching Filter into source the bundler understands.
// By default the result is imported as a string (the default export); set
// Module when the loader returns JavaScript.
type Loader struct {
	Name   string
	Filter string
	Module bool
	Load   func(ctx context.Context, args LoadArgs) (string, error)
}

// AddLoader registers l for every subsequent build.
func (c *Compiler) AddLoader(l Loader) error {
	if l.Name == "" {
		return fmt.Errorf("loader name is required")
	}
	if l.Load == nil {
		return fmt.Errorf("loader %s: load function is required", l.Name)
	}
	if _, err := regexp.Compile(l.Filter); err != nil {
		return fmt.Errorf("loader %s: invalid filter: %w", l.Name, err)
	}
	c.loaders = append(c.loaders, l)
	return nil
}

// Loaders returns the registered loader names.
func (c *Compiler) Loaders() []string {
	names := make([]string, len(c.loaders))
	for i, l := range c.loaders {
		names[i] = l.Name
	}
	return names
}

func (l Loader) esbuildPlugin(ctx context.Context) api.Plugin {
	return api.Plugin{
		Name: l.Name,
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: l.Filter, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				raw, err := os.ReadFile(args.Path) //nolint:gosec // path resolved by esbuild from the build context
				if err != nil {
					return api.OnLoadResult{}, fmt.Errorf("read %s: %w", args.Path, err)
				}
				out, err := l.Load(ctx, LoadArgs{Path: args.Path, Source: raw})
				if err != nil {
					return api.OnLoadResult{}, err
				}
				kind := api.LoaderText
				if l.Module {
					kind = api.LoaderJS
				}
				return api.OnLoadResult{
					Contents:   &out,
					Loader:     kind,
					ResolveDir: filepath.Dir(args.Path),
				}, nil
			})
		},
	}
}
