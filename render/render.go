// Package render converts Hacker News comment markup to plain text.
package render

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Text renders comment HTML as plain text.
// Paragraphs are separated by a blank line, links are shown as their target,
// and preformatted blocks keep their whitespace.
func Text(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	nodes, err := html.ParseFragment(strings.NewReader(rawHTML), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return strings.TrimSpace(rawHTML)
	}

	w := &writer{}
	for _, n := range nodes {
		w.node(n, false)
	}
	return w.String()
}

type writer struct {
	b strings.Builder
}

func (w *writer) node(n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		if pre {
			w.b.WriteString(n.Data)
			return
		}
		w.inline(n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.node(c, pre)
		}
		return
	}

	switch n.DataAtom {
	case atom.P:
		w.paragraph()
	case atom.Br:
		w.b.WriteString("\n")
		return
	case atom.Pre:
		w.paragraph()
		pre = true
	case atom.A:
		if href := attr(n, "href"); href != "" {
			w.inline(href)
			return
		}
	case atom.Script, atom.Style:
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c, pre)
	}

	if n.DataAtom == atom.Pre {
		w.paragraph()
	}
}

// paragraph starts a new block unless the output is empty or already at one.
func (w *writer) paragraph() {
	s := w.b.String()
	if s == "" || strings.HasSuffix(s, "\n\n") {
		return
	}
	if strings.HasSuffix(s, "\n") {
		w.b.WriteString("\n")
		return
	}
	w.b.WriteString("\n\n")
}

// inline writes text with runs of whitespace collapsed.
func (w *writer) inline(s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" && !w.atBoundary() {
			w.b.WriteByte(' ')
		}
		return
	}
	if startsWithSpace(s) && !w.atBoundary() {
		w.b.WriteByte(' ')
	}
	w.b.WriteString(strings.Join(fields, " "))
	if endsWithSpace(s) {
		w.b.WriteByte(' ')
	}
}

func (w *writer) atBoundary() bool {
	s := w.b.String()
	return s == "" || strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\n")
}

func (w *writer) String() string {
	lines := strings.Split(w.b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == ' ' || r == '\n' || r == '\t'
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == ' ' || r == '\n' || r == '\t'
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Excerpt truncates text to at most n runes, adding an ellipsis when cut.
func Excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + "…"
}
