package markdown

import (
	"bytes"
	"context"
	"html"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// DiagramRenderer turns a ```d2 fence into inline SVG. *d2.Renderer satisfies it.
type DiagramRenderer interface {
	Render(ctx context.Context, source string) (string, error)
}

// renderContextKey carries the caller's context into AST transformers.
var renderContextKey = parser.NewContextKey()

// KindDiagram is the node kind of a rendered ```d2 fence.
var KindDiagram = ast.NewNodeKind("Diagram")

// Diagram replaces a ```d2 fence in the AST. A failed render keeps the source visible.
type Diagram struct {
	ast.BaseBlock
	Source string
	SVG    string
	Error  string
}

// Kind implements ast.Node.
func (d *Diagram) Kind() ast.NodeKind { return KindDiagram }

// IsRaw implements ast.Node.
func (d *Diagram) IsRaw() bool { return true }

// Dump implements ast.Node.
func (d *Diagram) Dump(source []byte, level int) {
	ast.DumpHelper(d, source, level, map[string]string{"Error": d.Error}, nil)
}

type diagramTransformer struct {
	renderer DiagramRenderer
	logger   *slog.Logger
}

func (t *diagramTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	ctx, _ := pc.Get(renderContextKey).(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}

	var fences []*ast.FencedCodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fence, ok := n.(*ast.FencedCodeBlock); ok {
			if strings.EqualFold(strings.TrimSpace(string(fence.Language(reader.Source()))), "d2") {
				fences = append(fences, fence)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for _, fence := range fences {
		var src bytes.Buffer
		lines := fence.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			src.Write(seg.Value(reader.Source()))
		}
		node := &Diagram{Source: src.String()}
		svg, err := t.renderer.Render(ctx, node.Source)
		if err != nil {
			t.logger.Warn("render diagram", slog.Any("err", err))
			node.Error = err.Error()
		} else {
			node.SVG = svg
		}
		node.SetBlankPreviousLines(fence.HasBlankPreviousLines())
		parent := fence.Parent()
		parent.ReplaceChild(parent, fence, node)
	}
}

type diagramNodeRenderer struct{}

func (diagramNodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDiagram, renderDiagram)
}

func renderDiagram(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	d, ok := node.(*Diagram)
	if !ok {
		return ast.WalkSkipChildren, nil
	}
	if d.Error != "" {
		_, _ = w.WriteString(`<div class="d2-block d2-error"><pre>` + html.EscapeString(d.Source) + `</pre><p>` +
			html.EscapeString(d.Error) + "</p></div>\n")
		return ast.WalkSkipChildren, nil
	}
	_, _ = w.WriteString(`<div class="d2-block">`)
	_, _ = w.WriteString(d.SVG)
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}
