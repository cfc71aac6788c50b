// Package dom holds a parsed snapshot of a page's document. Snapshots are
// taken from the live tab at event time and are only ever read.
package dom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document is an immutable, indexed view over a parsed HTML snapshot
type Document struct {
	root     *html.Node
	query    *goquery.Document
	elements []*html.Node
	ordinals map[*html.Node]int
}

// Parse builds a Document from serialized markup (usually documentElement.outerHTML)
func Parse(markup string) (*Document, error) {
	root, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return FromNode(root), nil
}

// FromNode wraps an already parsed tree
func FromNode(root *html.Node) *Document {
	d := &Document{
		root:     root,
		query:    goquery.NewDocumentFromNode(root),
		ordinals: make(map[*html.Node]int),
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			d.ordinals[n] = len(d.elements)
			d.elements = append(d.elements, n)
			// template content lives in a separate fragment in the page
			if strings.EqualFold(n.Data, "template") {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return d
}

// Root returns the document node
func (d *Document) Root() *html.Node {
	return d.root
}

// Len returns the number of elements in the snapshot
func (d *Document) Len() int {
	return len(d.elements)
}

// ElementAt returns the element at the given position of a full document
// traversal (getElementsByTagName('*') order), or nil when out of range.
func (d *Document) ElementAt(ordinal int) *html.Node {
	if ordinal < 0 || ordinal >= len(d.elements) {
		return nil
	}
	return d.elements[ordinal]
}

// Ordinal returns the traversal position of n, or -1 if n is not part of this snapshot
func (d *Document) Ordinal(n *html.Node) int {
	if i, ok := d.ordinals[n]; ok {
		return i
	}
	return -1
}

// Contains reports whether n is still attached to this document
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// QueryAll returns every element matching a CSS selector. Invalid selectors match nothing.
func (d *Document) QueryAll(selector string) []*html.Node {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	return live(d.query.Find(selector).Nodes)
}

// QueryXPath returns the first element matching an XPath expression.
// Positional expressions are evaluated against the element traversal order.
func (d *Document) QueryXPath(expr string) (*html.Node, error) {
	if ord, ok := ParsePositional(expr); ok {
		return d.ElementAt(ord), nil
	}
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	if nodes = live(nodes); len(nodes) > 0 {
		return nodes[0], nil
	}
	return nil, nil
}

// FindAll returns every element matching an XPath expression, ignoring malformed expressions
func (d *Document) FindAll(expr string) []*html.Node {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil
	}
	return live(nodes)
}

// Positional returns the (//*)[n] expression for a traversal ordinal
func Positional(ordinal int) string {
	return fmt.Sprintf("(//*)[%d]", ordinal+1)
}

// ParsePositional is the inverse of Positional
func ParsePositional(expr string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(expr), "(//*)[")
	if !ok {
		return 0, false
	}
	num, ok := strings.CutSuffix(rest, "]")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// InTemplate reports whether n sits inside a <template> element's content
func InTemplate(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && strings.EqualFold(p.Data, "template") {
			return true
		}
	}
	return false
}

// live drops template content from a match set
func live(nodes []*html.Node) []*html.Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if !InTemplate(n) {
			out = append(out, n)
		}
	}
	return out
}

// Tag returns the lower-cased tag name of an element node
func Tag(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Attr returns an attribute value, or "" when absent
func Attr(n *html.Node, key string) string {
	v, _ := LookupAttr(n, key)
	return v
}

// LookupAttr returns an attribute value and whether it was present
func LookupAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// Attributes returns a copy of all attributes on n
func Attributes(n *html.Node) map[string]string {
	if n == nil || len(n.Attr) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		out[a.Key] = a.Val
	}
	return out
}

// Classes returns the whitespace separated class list of n
func Classes(n *html.Node) []string {
	return strings.Fields(Attr(n, "class"))
}

// ElementChildren returns the element children of n in document order
func ElementChildren(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// ElementParent returns the closest ancestor that is an element, or nil
func ElementParent(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// Closest returns n or the nearest ancestor element matching pred
func Closest(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && pred(p) {
			return p
		}
	}
	return nil
}

// Text returns the collapsed text content of n, truncated to max runes (0 = no limit)
func Text(n *html.Node, max int) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch {
		case c.Type == html.TextNode:
			b.WriteString(c.Data)
			b.WriteByte(' ')
		case c.Type == html.ElementNode && strings.EqualFold(c.Data, "template"):
			return
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	text := strings.Join(strings.Fields(b.String()), " ")
	if max > 0 {
		runes := []rune(text)
		if len(runes) > max {
			text = string(runes[:max])
		}
	}
	return text
}
