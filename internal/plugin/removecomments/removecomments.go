// Package removecomments strips asterisk-run comment markers from emitted JavaScript.
//
// The pattern is deliberately narrow: a slash, two or more asterisks, a slash, and at most
// one trailing whitespace character. It matches separators such as "/******/ " and "/**/"
// but leaves "/* note */" and "/** doc **/" alone, because any character other than an
// asterisk between the delimiters breaks the match.
package removecomments

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/euforicio/bundlekit/internal/asset"
	"github.com/euforicio/bundlekit/internal/compiler"
)

// Name is the tap name used for the emit hook.
const Name = "RemoveCommentsPlugin"

const jsSuffix = ".js"

// whitespace mirrors the ECMAScript \s class, which is wider than RE2's ASCII-only \s.
const whitespace = `[\t\n\v\f\r\p{Zs}\x{2028}\x{2029}\x{FEFF}]`

var commentPattern = regexp.MustCompile(`/\*{2,}/` + whitespace + `?`)

// Strip removes every non-overlapping match of the marker pattern from src.
func Strip(src []byte) []byte {
	return commentPattern.ReplaceAllLiteral(src, nil)
}

// Apply rewrites every asset whose name ends in ".js". Each rewritten entry is replaced with
// a new asset so its size always matches its content; other entries keep their value.
// The first asset that cannot be read stops the transform and its error is returned.
func Apply(assets asset.Map) error {
	for name, a := range assets {
		if !strings.HasSuffix(name, jsSuffix) {
			continue
		}
		src, err := a.Source()
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		assets[name] = asset.NewRaw(Strip(src))
	}
	return nil
}

// Plugin installs Apply on the compiler's emit hook.
type Plugin struct{}

// New returns the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Apply implements compiler.Plugin.
func (p *Plugin) Apply(c *compiler.Compiler) error {
	c.Logger().Info("remove comments plugin start", slog.String("plugin", Name))
	c.Hooks.Emit.Tap(Name, func(comp *compiler.Compilation) error {
		return Apply(comp.Assets())
	})
	return nil
}
