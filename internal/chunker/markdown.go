package chunker

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// headingTitle returns the plain text of a heading line with the '#'
// markers and inline markup removed. Lines that goldmark does not read as
// an ATX heading (e.g. "#tag") fall back to trimming the markers.
func headingTitle(line string) string {
	source := []byte(line)
	doc := md.Parser().Parse(text.NewReader(source))

	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			title = extractText(heading, source)
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

// extractText collects the text of all inline descendants of node
func extractText(node ast.Node, source []byte) string {
	var buf strings.Builder
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.CodeSpan:
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				if seg, ok := c.(*ast.Text); ok {
					buf.Write(seg.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
