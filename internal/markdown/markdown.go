// Package markdown converts model-generated markdown into a small, safe
// document tree. Only headings, lists, paragraphs and bold text survive; raw
// HTML is dropped and every other construct degrades to plain text.
package markdown

import (
	"encoding/json"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Inline is a run of text, optionally bold.
type Inline struct {
	Text string `json:"text"`
	Bold bool   `json:"bold,omitempty"`
}

// Block is one of Heading, List or Paragraph.
type Block interface {
	kind() string
}

// Heading is a section title. Level is 1-6.
type Heading struct {
	Level   int      `json:"level"`
	Inlines []Inline `json:"inlines"`
}

// List is a bullet or numbered list; each item is a run of inlines.
type List struct {
	Ordered bool       `json:"ordered,omitempty"`
	Items   [][]Inline `json:"items"`
}

// Paragraph is a block of running text.
type Paragraph struct {
	Inlines []Inline `json:"inlines"`
}

func (Heading) kind() string   { return "heading" }
func (List) kind() string      { return "list" }
func (Paragraph) kind() string { return "paragraph" }

// Document is an ordered sequence of blocks.
type Document struct {
	Blocks []Block `json:"blocks"`
}

// MarshalJSON tags every block with its type.
func (d Document) MarshalJSON() ([]byte, error) {
	type tagged struct {
		Type  string `json:"type"`
		Block Block  `json:"block"`
	}
	out := struct {
		Blocks []tagged `json:"blocks"`
	}{Blocks: make([]tagged, 0, len(d.Blocks))}
	for _, b := range d.Blocks {
		out.Blocks = append(out.Blocks, tagged{Type: b.kind(), Block: b})
	}
	return json.Marshal(out)
}

// PlainText flattens the document into newline separated text.
func (d Document) PlainText() string {
	var sb strings.Builder
	for i, b := range d.Blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch v := b.(type) {
		case Heading:
			sb.WriteString(joinInlines(v.Inlines))
		case Paragraph:
			sb.WriteString(joinInlines(v.Inlines))
		case List:
			for j, item := range v.Items {
				if j > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString("- ")
				sb.WriteString(joinInlines(item))
			}
		}
	}
	return sb.String()
}

// ErrorDocument is shown in place of commentary that could not be generated.
func ErrorDocument(msg string) Document {
	return Document{Blocks: []Block{
		Heading{Level: 3, Inlines: []Inline{{Text: "Analysis unavailable", Bold: true}}},
		Paragraph{Inlines: []Inline{{Text: msg}}},
	}}
}

var md = goldmark.New()

// Parse converts src into a Document.
func Parse(src string) Document {
	source := []byte(src)
	root := md.Parser().Parse(text.NewReader(source))

	var doc Document
	appendBlocks(&doc, root, source)
	return doc
}

func appendBlocks(doc *Document, parent ast.Node, src []byte) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Heading:
			if in := inlines(v, src); len(in) > 0 {
				doc.Blocks = append(doc.Blocks, Heading{Level: v.Level, Inlines: in})
			}
		case *ast.List:
			l := List{Ordered: v.IsOrdered()}
			for item := v.FirstChild(); item != nil; item = item.NextSibling() {
				if in := inlines(item, src); len(in) > 0 {
					l.Items = append(l.Items, in)
				}
			}
			if len(l.Items) > 0 {
				doc.Blocks = append(doc.Blocks, l)
			}
		case *ast.Blockquote:
			appendBlocks(doc, v, src)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if s := strings.TrimSpace(blockLines(n, src)); s != "" {
				doc.Blocks = append(doc.Blocks, Paragraph{Inlines: []Inline{{Text: s}}})
			}
		case *ast.HTMLBlock, *ast.ThematicBreak:
		default:
			if in := inlines(n, src); len(in) > 0 {
				doc.Blocks = append(doc.Blocks, Paragraph{Inlines: in})
			}
		}
	}
}

func inlines(n ast.Node, src []byte) []Inline {
	var out []Inline
	collect(n, src, false, &out)

	// Trim outer whitespace of the run.
	for len(out) > 0 && strings.TrimSpace(out[0].Text) == "" {
		out = out[1:]
	}
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1].Text) == "" {
		out = out[:len(out)-1]
	}
	if len(out) > 0 {
		out[0].Text = strings.TrimLeft(out[0].Text, " ")
		out[len(out)-1].Text = strings.TrimRight(out[len(out)-1].Text, " ")
	}
	return out
}

func collect(n ast.Node, src []byte, bold bool, out *[]Inline) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			s := string(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				s += " "
			}
			push(out, s, bold)
		case *ast.String:
			push(out, string(v.Value), bold)
		case *ast.Emphasis:
			collect(v, src, bold || v.Level >= 2, out)
		case *ast.AutoLink:
			push(out, string(v.Label(src)), bold)
		case *ast.RawHTML:
		case *ast.List:
			push(out, " ", bold)
			collect(v, src, bold, out)
		case *ast.Paragraph, *ast.TextBlock, *ast.ListItem:
			if len(*out) > 0 {
				push(out, " ", bold)
			}
			collect(v, src, bold, out)
		default:
			collect(c, src, bold, out)
		}
	}
}

// push appends s, merging it into the previous inline when the style matches.
func push(out *[]Inline, s string, bold bool) {
	if s == "" {
		return
	}
	if n := len(*out); n > 0 && (*out)[n-1].Bold == bold {
		(*out)[n-1].Text += s
		return
	}
	*out = append(*out, Inline{Text: s, Bold: bold})
}

func blockLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}

func joinInlines(in []Inline) string {
	var sb strings.Builder
	for _, i := range in {
		sb.WriteString(i.Text)
	}
	return sb.String()
}
