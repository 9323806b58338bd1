package corpus

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hyperjump/shirabe/internal/models"
)

// HTML text modes.
const (
	HTMLTextPlain    = "plain"
	HTMLTextMarkdown = "markdown"
)

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Li: true, atom.Td: true, atom.Th: true,
	atom.Blockquote: true, atom.Pre: true, atom.Dd: true, atom.Dt: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

var skipTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Head: true, atom.Noscript: true, atom.Template: true,
}

func isHeading(a atom.Atom) bool {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

// FromHTML turns every innermost block element with text into a document with id
// "node_<n>", recording its xpath and tag. A heading's id attribute, or the last
// <a name> seen before or inside it, becomes the bookmark of the heading and of every
// block up to the next heading. textMode is HTMLTextPlain (default) or HTMLTextMarkdown.
func FromHTML(r io.Reader, source, textMode string) ([]models.Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	w := &htmlWalker{source: source, markdown: textMode == HTMLTextMarkdown}
	if err := w.walk(root, ""); err != nil {
		return nil, err
	}
	return w.docs, nil
}

type htmlWalker struct {
	source   string
	markdown bool
	docs     []models.Document
	current  *string
	anchor   string
}

func (w *htmlWalker) walk(n *html.Node, parentPath string) error {
	counts := map[string]int{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		counts[c.Data]++
		path := fmt.Sprintf("%s/%s[%d]", parentPath, c.Data, counts[c.Data])
		if c.DataAtom == atom.Html || c.DataAtom == atom.Body {
			path = parentPath + "/" + c.Data
		}
		if skipTags[c.DataAtom] {
			continue
		}
		if name := anchorName(c); name != "" {
			w.anchor = name
		}
		if blockTags[c.DataAtom] && !containsBlock(c) {
			if err := w.emit(c, path); err != nil {
				return err
			}
			continue
		}
		if err := w.walk(c, path); err != nil {
			return err
		}
	}
	return nil
}

func (w *htmlWalker) emit(n *html.Node, path string) error {
	if isHeading(n.DataAtom) {
		id := attr(n, "id")
		if id == "" {
			id = innerAnchor(n)
		}
		if id == "" {
			id = w.anchor
		}
		w.anchor = ""
		if id == "" {
			w.current = nil
		} else {
			w.current = models.StringPtr(id)
		}
	} else if inner := innerAnchor(n); inner != "" {
		w.anchor = inner
	}

	text, err := w.text(n)
	if err != nil {
		return err
	}
	if !hasWord(text) {
		return nil
	}
	idx := len(w.docs)
	doc := models.Document{
		ID:        fmt.Sprintf("node_%d", idx),
		Text:      text,
		Source:    w.source,
		NodeIndex: idx,
		XPath:     path,
		TagName:   n.Data,
	}
	if w.current != nil {
		doc.Bookmark = models.StringPtr(*w.current)
	}
	w.docs = append(w.docs, doc)
	return nil
}

func (w *htmlWalker) text(n *html.Node) (string, error) {
	if !w.markdown {
		var b strings.Builder
		collectText(n, &b)
		return Preprocess(b.String()), nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("render %s: %w", n.Data, err)
	}
	md, err := htmltomarkdown.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("convert %s to markdown: %w", n.Data, err)
	}
	return strings.TrimSpace(md), nil
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	if n.Type == html.ElementNode && skipTags[n.DataAtom] {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func containsBlock(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (blockTags[c.DataAtom] || containsBlock(c)) {
			return true
		}
	}
	return false
}

// anchorName returns the target name of an <a name="..."> or <a id="..."> without href.
func anchorName(n *html.Node) string {
	if n.Type != html.ElementNode || n.DataAtom != atom.A || attr(n, "href") != "" {
		return ""
	}
	if name := attr(n, "name"); name != "" {
		return name
	}
	return attr(n, "id")
}

// innerAnchor returns the last anchor name inside n.
func innerAnchor(n *html.Node) string {
	found := ""
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if name := anchorName(c); name != "" {
			found = name
		}
		if inner := innerAnchor(c); inner != "" {
			found = inner
		}
	}
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
