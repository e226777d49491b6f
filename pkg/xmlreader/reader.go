// Package xmlreader provides a pull-style XML node reader.
//
// The reader walks a document one node at a time and exposes the current
// node's kind, local name, attributes and text. Comments, processing
// instructions, directives and whitespace-only text are skipped.
package xmlreader

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/Faultbox/meshforge/pkg/encoding"
)

// Kind identifies the node the reader is positioned on.
type Kind int

const (
	None Kind = iota
	Element
	EndElement
	Text
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Element:
		return "Element"
	case EndElement:
		return "EndElement"
	case Text:
		return "Text"
	default:
		return "None"
	}
}

// Reader is a forward-only XML node reader.
type Reader struct {
	dec   *xml.Decoder
	kind  Kind
	name  string
	attrs []xml.Attr
	text  string
	depth int
	err   error
}

// New creates a reader over r. Non-UTF-8 documents are transcoded through
// the charset named in their XML declaration.
func New(r io.Reader) *Reader {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = encoding.CharsetReader
	return &Reader{dec: dec}
}

// Read advances to the next node. It returns false at end of input or on
// error; Err distinguishes the two.
func (r *Reader) Read() bool {
	if r.err != nil {
		return false
	}
	if r.kind == EndElement {
		r.depth--
	}

	for {
		tok, err := r.dec.Token()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
			}
			r.kind = None
			return false
		}

		switch t := tok.(type) {
		case xml.StartElement:
			r.kind = Element
			r.name = t.Name.Local
			r.attrs = t.Attr
			r.text = ""
			r.depth++
			return true
		case xml.EndElement:
			r.kind = EndElement
			r.name = t.Name.Local
			r.attrs = nil
			r.text = ""
			return true
		case xml.CharData:
			s := strings.TrimSpace(string(t))
			if s == "" {
				continue
			}
			r.kind = Text
			r.text = s
			r.attrs = nil
			return true
		}
	}
}

// Err returns the first non-EOF error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Kind returns the current node kind.
func (r *Reader) Kind() Kind {
	return r.kind
}

// Name returns the local name of the current element or end element.
func (r *Reader) Name() string {
	return r.name
}

// Depth returns the element nesting depth of the current node. The document
// element is at depth 1.
func (r *Reader) Depth() int {
	return r.depth
}

// Attr returns the value of the named attribute on the current element, or
// an empty string.
func (r *Reader) Attr(name string) string {
	v, _ := r.LookupAttr(name)
	return v
}

// LookupAttr returns the named attribute and whether it is present.
func (r *Reader) LookupAttr(name string) (string, bool) {
	for _, a := range r.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Text returns the trimmed character data of the current text node.
func (r *Reader) Text() string {
	return r.text
}

// IsStart reports whether the reader is on an opening tag named name.
func (r *Reader) IsStart(name string) bool {
	return r.kind == Element && r.name == name
}

// IsEnd reports whether the reader is on a closing tag named name.
func (r *Reader) IsEnd(name string) bool {
	return r.kind == EndElement && r.name == name
}

// ReadText consumes the current element and returns its concatenated
// character data. The reader is left on the element's end tag.
func (r *Reader) ReadText() string {
	if r.kind != Element {
		return ""
	}
	depth := r.depth
	var sb strings.Builder
	for r.Read() {
		switch r.kind {
		case Text:
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(r.text)
		case EndElement:
			if r.depth == depth {
				return sb.String()
			}
		}
	}
	return sb.String()
}

// Skip consumes the current element and all of its children. The reader is
// left on the element's end tag.
func (r *Reader) Skip() {
	if r.kind != Element {
		return
	}
	depth := r.depth
	for r.Read() {
		if r.kind == EndElement && r.depth == depth {
			return
		}
	}
}
