// Package xmlview provides namespaced XML attribute extraction over a
// parsed SOAP/WS-MAN response tree. It is the single place WS-MAN namespace
// qualification is applied.
package xmlview

import (
	"strings"

	"github.com/beevik/etree"
)

// Common WS-MAN / CIM namespace prefixes used by DCIM resource replies.
const (
	NSWSMan  = "http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
	NSWSA    = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	NSXSI    = "http://www.w3.org/2001/XMLSchema-instance"
)

// View wraps a parsed XML document (or element) and exposes namespace-aware
// lookups. A View is read-only and may be derived (Find/FindAll) without
// re-parsing.
type View struct {
	root *etree.Element
}

// Parse builds a View from raw XML bytes. Malformed XML is the caller's
// responsibility to surface as a ClientError.
func Parse(data []byte) (View, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return View{}, err
	}
	return View{root: doc.Root()}, nil
}

// FromElement wraps an already-resolved element, e.g. one returned by
// FindAll, so helpers compose without re-parsing.
func FromElement(el *etree.Element) View {
	return View{root: el}
}

// IsZero reports whether this View wraps no element at all (distinct from
// an element that exists but carries xsi:nil="true" — see Nil).
func (v View) IsZero() bool { return v.root == nil }

// localName strips a namespace prefix so callers can address elements by
// their unqualified CIM property name (e.g. "AttributeName" rather than
// "n1:AttributeName"), matching how DCIM replies vary prefixes across
// provider firmware revisions.
func localName(tag string) string {
	if idx := strings.IndexByte(tag, ':'); idx >= 0 {
		return tag[idx+1:]
	}
	return tag
}

// Find returns the first direct or nested child element whose local name
// (namespace-prefix stripped) matches name. It returns the zero View if the
// document is empty or no match exists.
func (v View) Find(name string) View {
	if v.root == nil {
		return View{}
	}
	for _, el := range v.root.ChildElements() {
		if localName(el.Tag) == name {
			return View{root: el}
		}
	}
	// fall back to a full-tree search: WS-MAN replies nest
	// Items/Item/<property> several levels deep.
	for _, el := range v.root.FindElements(".//*") {
		if localName(el.Tag) == name {
			return View{root: el}
		}
	}
	return View{}
}

// FindAll returns every element at any depth whose local name matches name.
func (v View) FindAll(name string) []View {
	if v.root == nil {
		return nil
	}
	var out []View
	for _, el := range v.root.FindElements(".//*") {
		if localName(el.Tag) == name {
			out = append(out, View{root: el})
		}
	}
	return out
}

// Attr returns the value of an unqualified attribute, or "" if absent.
func (v View) Attr(name string) string {
	if v.root == nil {
		return ""
	}
	for _, a := range v.root.Attr {
		if a.Key == name {
			return a.Value
		}
	}
	return ""
}

// Nil reports whether this element is present but carries the XML-Schema
// nil="true" marker — a logical absent value distinct from empty string.
func (v View) Nil() bool {
	if v.root == nil {
		return false
	}
	return strings.EqualFold(v.Attr("nil"), "true")
}

// Text returns the element's text content, or nil if the element is
// missing or carries xsi:nil="true".
func (v View) Text() *string {
	if v.root == nil || v.Nil() {
		return nil
	}
	s := v.root.Text()
	return &s
}

// TextOr returns Text() or fallback when the value is absent/nil.
func (v View) TextOr(fallback string) string {
	if t := v.Text(); t != nil {
		return *t
	}
	return fallback
}
