// ABOUTME: Renders markdown to terminal text by walking the goldmark AST
// ABOUTME: Headings, emphasis, code, lists, quotes, and links map to simple text styles

package render

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Renderer converts markdown to terminal text.
type Renderer struct {
	md goldmark.Markdown

	heading *color.Color
	strong  *color.Color
	em      *color.Color
	code    *color.Color
	link    *color.Color
	quote   *color.Color
	muted   *color.Color
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithoutColor renders plain text.
func WithoutColor() Option {
	return func(r *Renderer) {
		for _, c := range r.styles() {
			c.DisableColor()
		}
	}
}

// New creates a renderer with GitHub-flavored strikethrough and tables.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		md:      goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Table)),
		heading: color.New(color.FgCyan, color.Bold),
		strong:  color.New(color.Bold),
		em:      color.New(color.Italic),
		code:    color.New(color.FgYellow),
		link:    color.New(color.FgBlue, color.Underline),
		quote:   color.New(color.Faint),
		muted:   color.New(color.FgHiBlack),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) styles() []*color.Color {
	return []*color.Color{r.heading, r.strong, r.em, r.code, r.link, r.quote, r.muted}
}

// Markdown renders src. Blocks are separated by blank lines.
func (r *Renderer) Markdown(src string) string {
	source := []byte(src)
	doc := r.md.Parser().Parse(text.NewReader(source))
	return strings.TrimRight(r.blocks(doc, source, "\n\n"), "\n")
}

func (r *Renderer) blocks(parent ast.Node, src []byte, sep string) string {
	var out []string
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		if s := r.block(c, src); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, sep)
}

func (r *Renderer) block(n ast.Node, src []byte) string {
	switch n := n.(type) {
	case *ast.Heading:
		return r.heading.Sprint(r.inline(n, src))
	case *ast.Paragraph, *ast.TextBlock:
		return r.inline(n, src)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := segmentLines(n, src)
		for i, l := range lines {
			lines[i] = "    " + r.code.Sprint(l)
		}
		return strings.Join(lines, "\n")
	case *ast.HTMLBlock:
		return strings.Join(segmentLines(n, src), "\n")
	case *ast.List:
		var items []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if item, ok := c.(*ast.ListItem); ok {
				items = append(items, r.listItem(n, item, src))
			}
		}
		return strings.Join(items, "\n")
	case *ast.Blockquote:
		body := r.blocks(n, src, "\n\n")
		lines := strings.Split(body, "\n")
		for i, l := range lines {
			lines[i] = r.quote.Sprint("│ " + l)
		}
		return strings.Join(lines, "\n")
	case *ast.ThematicBreak:
		return r.muted.Sprint(strings.Repeat("─", 40))
	case *extast.Table:
		return r.table(n, src)
	default:
		return r.blocks(n, src, "\n\n")
	}
}

func (r *Renderer) listItem(list *ast.List, item *ast.ListItem, src []byte) string {
	marker := "• "
	if list.IsOrdered() {
		index := 0
		for c := list.FirstChild(); c != nil && c != ast.Node(item); c = c.NextSibling() {
			index++
		}
		marker = strconv.Itoa(list.Start+index) + ". "
	}
	sep := "\n"
	if !list.IsTight {
		sep = "\n\n"
	}
	body := r.blocks(item, src, sep)
	pad := strings.Repeat(" ", len(marker))
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		switch {
		case i == 0:
			lines[i] = marker + l
		case l != "":
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) table(t *extast.Table, src []byte) string {
	var rows [][]string
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, r.inline(cell, src))
		}
		rows = append(rows, cells)
	}
	lines := make([]string, 0, len(rows))
	for i, cells := range rows {
		line := strings.Join(cells, " | ")
		if i == 0 {
			line = r.strong.Sprint(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) inline(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.Emphasis:
			inner := r.inline(c, src)
			if c.Level >= 2 {
				b.WriteString(r.strong.Sprint(inner))
			} else {
				b.WriteString(r.em.Sprint(inner))
			}
		case *ast.CodeSpan:
			b.WriteString(r.code.Sprint(r.inline(c, src)))
		case *ast.Link:
			label := r.inline(c, src)
			dest := string(c.Destination)
			b.WriteString(label)
			if dest != "" && dest != label {
				b.WriteString(" (" + r.link.Sprint(dest) + ")")
			}
		case *ast.AutoLink:
			b.WriteString(r.link.Sprint(string(c.URL(src))))
		case *ast.Image:
			b.WriteString(r.muted.Sprint("[image: " + r.inline(c, src) + "]"))
		case *ast.RawHTML:
			for i := 0; i < c.Segments.Len(); i++ {
				seg := c.Segments.At(i)
				b.Write(seg.Value(src))
			}
		case *extast.Strikethrough:
			b.WriteString("~" + r.inline(c, src) + "~")
		default:
			b.WriteString(r.inline(c, src))
		}
	}
	return b.String()
}

func segmentLines(n ast.Node, src []byte) []string {
	segs := n.Lines()
	lines := make([]string, 0, segs.Len())
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		lines = append(lines, strings.TrimRight(string(seg.Value(src)), "\n"))
	}
	return lines
}
