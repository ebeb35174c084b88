package email

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// buttonMarker turns a markdown link into a call-to-action button:
// [!button|Get tickets](https://example.com/tickets).
var buttonMarker = []byte("!button|")

// buttonStyle repeats the layout's .btn rule inline for mail clients that
// drop <style> blocks.
const buttonStyle = "display:inline-block;background-color:#2E86C1;color:#ffffff;" +
	"padding:12px 20px;text-decoration:none;border-radius:5px;margin-top:10px;"

var kindButton = ast.NewNodeKind("Button")

type buttonNode struct {
	ast.BaseInline
	Destination []byte
	Label       []byte
}

func (n *buttonNode) Kind() ast.NodeKind {
	return kindButton
}

func (n *buttonNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Destination": string(n.Destination),
		"Label":       string(n.Label),
	}, nil)
}

// buttonTransformer swaps marked links for button nodes after parsing.
type buttonTransformer struct{}

func (buttonTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	source := reader.Source()

	var links []*ast.Link
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if link, ok := n.(*ast.Link); ok && entering {
			links = append(links, link)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for _, link := range links {
		label, ok := bytes.CutPrefix(linkLabel(link, source), buttonMarker)
		if !ok {
			continue
		}
		btn := &buttonNode{
			Destination: link.Destination,
			Label:       bytes.TrimSpace(label),
		}
		link.Parent().ReplaceChild(link.Parent(), link, btn)
	}
}

func linkLabel(link *ast.Link, source []byte) []byte {
	var label []byte
	for c := link.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			label = append(label, t.Segment.Value(source)...)
		}
	}
	return label
}

type buttonRenderer struct{}

func (r buttonRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(kindButton, r.render)
}

func (buttonRenderer) render(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	n := node.(*buttonNode)
	_, _ = w.WriteString(`<a href="`)
	if !html.IsDangerousURL(n.Destination) {
		_, _ = w.Write(util.EscapeHTML(util.URLEscape(n.Destination, true)))
	}
	_, _ = w.WriteString(`" class="btn" style="` + buttonStyle + `" target="_blank">`)
	_, _ = w.Write(util.EscapeHTML(n.Label))
	_, _ = w.WriteString(`</a>`)
	return ast.WalkSkipChildren, nil
}

// buttonExtension registers the call-to-action syntax with goldmark.
type buttonExtension struct{}

func (buttonExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(buttonTransformer{}, 100),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(buttonRenderer{}, 100),
	))
}
