// Package locator derives short, stable locators for elements of a document snapshot.
package locator

import (
	"fmt"
	"strings"

	"github.com/v0xg/sessionrec/internal/dom"
	"golang.org/x/net/html"
)

// Locator identifies an element for later re-resolution. Selector uniqueness is
// best effort: it holds for the snapshot it was derived from and nothing later.
type Locator struct {
	Selector string `json:"selector,omitempty"`
	Fallback string `json:"fallbackLocator,omitempty"`
}

// Empty reports whether neither locator could be derived
func (l Locator) Empty() bool {
	return l.Selector == "" && l.Fallback == ""
}

// transientClassMarkers flag classes toggled by interaction state
var transientClassMarkers = []string{"hover", "active", "focus"}

// Derive computes the locator for el within doc. It never fails: an element that
// is not (or no longer) part of doc yields whatever could be computed.
func Derive(doc *dom.Document, el *html.Node) Locator {
	var loc Locator
	if el == nil || el.Type != html.ElementNode {
		return loc
	}
	if doc != nil {
		if ord := doc.Ordinal(el); ord >= 0 {
			loc.Fallback = dom.Positional(ord)
		}
	}
	loc.Selector = selectorFor(doc, el)
	return loc
}

// selectorFor walks the priority chain; first match wins
func selectorFor(doc *dom.Document, el *html.Node) string {
	if id := dom.Attr(el, "id"); id != "" {
		return idSelector(id)
	}
	if v := dom.Attr(el, "data-testid"); v != "" {
		return attrSelector("data-testid", v)
	}
	if v := dom.Attr(el, "aria-label"); v != "" {
		return attrSelector("aria-label", v)
	}
	if doc == nil || !doc.Contains(el) {
		return ""
	}
	if sel := classSelector(doc, el); sel != "" {
		return sel
	}
	return StructuralPath(el)
}

// classSelector returns tag.class1.class2 when it matches exactly el in doc
func classSelector(doc *dom.Document, el *html.Node) string {
	var stable []string
	for _, cls := range dom.Classes(el) {
		if isTransientClass(cls) || !isValidIdent(cls) {
			continue
		}
		stable = append(stable, cls)
	}
	if len(stable) == 0 {
		return ""
	}
	sel := dom.Tag(el) + "." + strings.Join(stable, ".")
	matches := doc.QueryAll(sel)
	if len(matches) != 1 || matches[0] != el {
		return ""
	}
	return sel
}

// StructuralPath builds a child-combinator path from the root (or the nearest
// ancestor with a usable id) down to el.
func StructuralPath(el *html.Node) string {
	var parts []string
	for n := el; n != nil; n = dom.ElementParent(n) {
		if n != el {
			if id := dom.Attr(n, "id"); id != "" && isValidIdent(id) {
				parts = append(parts, "#"+id)
				break
			}
		}
		part := dom.Tag(n)
		if parent := dom.ElementParent(n); parent != nil {
			siblings := dom.ElementChildren(parent)
			if len(siblings) > 1 {
				for i, s := range siblings {
					if s == n {
						part = fmt.Sprintf("%s:nth-child(%d)", part, i+1)
						break
					}
				}
			}
		}
		parts = append(parts, part)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

// Resolve finds the element a locator points at. The selector is tried first and
// must match exactly one element; otherwise the positional fallback is used.
func Resolve(doc *dom.Document, loc Locator) *html.Node {
	if doc == nil {
		return nil
	}
	if loc.Selector != "" {
		if matches := doc.QueryAll(loc.Selector); len(matches) == 1 {
			return matches[0]
		}
	}
	if loc.Fallback != "" {
		if n, err := doc.QueryXPath(loc.Fallback); err == nil && n != nil {
			return n
		}
	}
	return nil
}

func idSelector(id string) string {
	if isValidIdent(id) {
		return "#" + id
	}
	return attrSelector("id", id)
}

func attrSelector(name, value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return fmt.Sprintf(`[%s="%s"]`, name, value)
}

func isTransientClass(cls string) bool {
	lower := strings.ToLower(cls)
	for _, marker := range transientClassMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isValidIdent reports whether s can be used verbatim after # or . in a selector
func isValidIdent(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	if len(s) > 1 && s[0] == '-' && s[1] >= '0' && s[1] <= '9' {
		return false
	}
	return !strings.ContainsAny(s, ".:#[]()>~+*/\\\"' \t\n,=")
}
