package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gobwas/glob"
)

var (
	errEscapesOutput   = errors.New("must stay inside the output directory")
	errContainsContext = errors.New("path must not be the context directory or one of its parents")
)

// Validate checks cfg for values the compiler cannot work with.
func Validate(cfg Config) error {
	err := validation.ValidateStruct(&cfg,
		validation.Field(&cfg.Mode, validation.Required, validation.In(ModeNone, ModeDevelopment, ModeProduction)),
		validation.Field(&cfg.Entry, validation.Required, validation.Each(validation.Required)),
		validation.Field(&cfg.Output, validation.By(outsideContext(cfg.Context))),
		validation.Field(&cfg.Pages),
		validation.Field(&cfg.Copy),
		validation.Field(&cfg.CleanKeep, validation.Each(validation.Required, validation.By(validGlob))),
		validation.Field(&cfg.Compress),
		validation.Field(&cfg.Manifest, validation.By(insideOutput)),
		validation.Field(&cfg.Markdown),
		validation.Field(&cfg.Dev),
	)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate implements validation.Validatable.
func (o OutputConfig) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Path, validation.Required),
		validation.Field(&o.Filename, validation.Required, validation.By(insideOutput), validation.By(hasSuffix(".js"))),
	)
}

// Validate implements validation.Validatable.
func (p PageConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Filename, validation.Required, validation.By(insideOutput), validation.By(hasSuffix(".html"))),
	)
}

// Validate implements validation.Validatable.
func (c CopyConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.From, validation.Required),
		validation.Field(&c.To, validation.By(insideOutput)),
		validation.Field(&c.Ignore, validation.Each(validation.Required)),
	)
}

// Validate implements validation.Validatable.
func (c CompressConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Threshold, validation.Min(0)),
	)
}

// Validate implements validation.Validatable.
func (m MarkdownConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Stylesheet, validation.By(insideOutput), validation.By(hasSuffix(".css"))),
	)
}

// Validate implements validation.Validatable.
func (d DevConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Port, validation.Min(0), validation.Max(65535)),
	)
}

func insideOutput(value any) error {
	name, _ := value.(string)
	if name == "" {
		return nil
	}
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return errEscapesOutput
	}
	return nil
}

// outsideContext rejects an output directory that equals or contains the context. Cleaning
// such a directory would delete the sources being built.
func outsideContext(contextDir string) validation.RuleFunc {
	return func(value any) error {
		out, _ := value.(OutputConfig)
		if strings.TrimSpace(out.Path) == "" {
			return nil
		}
		ctxDir, err := filepath.Abs(contextDir)
		if err != nil {
			return nil
		}
		dir := filepath.FromSlash(out.Path)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(ctxDir, dir)
		}
		rel, err := filepath.Rel(filepath.Clean(dir), ctxDir)
		if err != nil {
			return nil
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return nil
		}
		return errContainsContext
	}
}

func validGlob(value any) error {
	expr, _ := value.(string)
	if expr == "" {
		return nil
	}
	if _, err := glob.Compile(expr, '/'); err != nil {
		return fmt.Errorf("invalid glob: %v", err)
	}
	return nil
}

func hasSuffix(suffix string) validation.RuleFunc {
	return func(value any) error {
		name, _ := value.(string)
		if name == "" || strings.HasSuffix(name, suffix) {
			return nil
		}
		return fmt.Errorf("must end with %s", suffix)
	}
}
