package markdown

import (
	"bytes"
	"strings"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/util"
)

// diagramLanguages are fence languages passed through untouched for a client-side renderer.
var diagramLanguages = map[string]string{
	"mermaid":  "mermaid",
	"dot":      "graphviz",
	"graphviz": "graphviz",
}

// DiagramWrapper keeps diagram fences (```mermaid, ```dot) out of the highlighter and wraps
// them in a <div> named after the renderer that hydrates them, e.g. <div class="mermaid">.
// Other fences the highlighter left alone get a plain <pre><code class="language-x">.
func DiagramWrapper() highlighting.WrapperRenderer {
	return func(w util.BufWriter, ctx highlighting.CodeBlockContext, entering bool) {
		if ctx.Highlighted() {
			return
		}

		lang, _ := ctx.Language()
		if class, ok := diagramLanguages[strings.ToLower(string(bytes.TrimSpace(lang)))]; ok {
			if entering {
				_, _ = w.WriteString(`<div class="` + class + `">`)
			} else {
				_, _ = w.WriteString("</div>\n")
			}
			return
		}

		if !entering {
			_, _ = w.WriteString("</code></pre>\n")
			return
		}
		_, _ = w.WriteString("<pre><code")
		if trimmed := bytes.TrimSpace(lang); len(trimmed) > 0 {
			_, _ = w.WriteString(` class="language-`)
			_, _ = w.Write(util.EscapeHTML(trimmed))
			_ = w.WriteByte('"')
		}
		_ = w.WriteByte('>')
	}
}
