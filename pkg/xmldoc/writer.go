package xmldoc

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Writer builds an XML document element by element, declaring root
// namespaces once up front the way eSCL ScanSettings documents do
// ("<scan:ScanSettings xmlns:scan=... xmlns:pwg=...>").
type Writer struct {
	enc    *xml.Encoder
	out    io.Writer
	ns     NsMap
	opened bool
	err    error
}

// NewWriter creates a Writer over w. When indent is non-empty, output
// is pretty-printed with that indent string; an empty indent produces
// compact single-line output, matching the two modes devices are seen
// to accept.
func NewWriter(w io.Writer, ns NsMap, indent string) *Writer {
	enc := xml.NewEncoder(w)
	if indent != "" {
		enc.Indent("", indent)
	}
	return &Writer{enc: enc, out: w, ns: ns}
}

// Root starts the document's root element named "prefix:local",
// declaring every namespace registered in the Writer's NsMap as an
// xmlns attribute on the root.
func (w *Writer) Root(prefix, local string) *Element {
	name := prefix + ":" + local
	attrs := make([]xml.Attr, 0, len(w.ns))
	for p, uri := range w.ns {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "xmlns:" + p}, Value: uri})
	}
	return &Element{w: w, name: name, attrs: attrs}
}

// Close flushes the underlying encoder.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	return w.enc.Flush()
}

// Element is an in-progress element being written; its zero value is
// not usable, construct via Writer.Root or Element.Child.
type Element struct {
	w     *Writer
	name  string
	attrs []xml.Attr
	open  bool
}

// Attr adds an attribute to the element. Must be called before any
// Child, Text, or End call.
func (e *Element) Attr(name, value string) *Element {
	e.attrs = append(e.attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
	return e
}

func (e *Element) ensureOpen() error {
	if e.open {
		return nil
	}
	start := xml.StartElement{Name: xml.Name{Local: e.name}, Attr: e.attrs}
	if err := e.w.enc.EncodeToken(start); err != nil {
		return fmt.Errorf("xmldoc: encode start %s: %w", e.name, err)
	}
	e.open = true
	return nil
}

// Child starts a nested element named "prefix:local" and returns it
// for further attribute/child/text calls.
func (e *Element) Child(prefix, local string) *Element {
	if err := e.ensureOpen(); err != nil {
		e.w.err = err
		return &Element{w: e.w}
	}
	return &Element{w: e.w, name: prefix + ":" + local}
}

// Text writes character data as the element's content.
func (e *Element) Text(s string) *Element {
	if err := e.ensureOpen(); err != nil {
		e.w.err = err
		return e
	}
	if err := e.w.enc.EncodeToken(xml.CharData(s)); err != nil {
		e.w.err = fmt.Errorf("xmldoc: encode text in %s: %w", e.name, err)
	}
	return e
}

// Raw emits already-serialized XML verbatim as the element's content,
// bypassing character-data escaping. Used for splicing a pre-built
// request body (e.g. a SOAP action's inner element) into an envelope
// under construction, where re-encoding it as text would escape its
// angle brackets.
func (e *Element) Raw(xmlBytes []byte) *Element {
	if err := e.ensureOpen(); err != nil {
		e.w.err = err
		return e
	}
	if err := e.w.enc.Flush(); err != nil {
		e.w.err = fmt.Errorf("xmldoc: flush before raw write in %s: %w", e.name, err)
		return e
	}
	if _, err := e.w.out.Write(xmlBytes); err != nil {
		e.w.err = fmt.Errorf("xmldoc: raw write in %s: %w", e.name, err)
	}
	return e
}

// End closes the element, writing an empty element if nothing was
// ever written inside it.
func (e *Element) End() error {
	if e.w.err != nil {
		return e.w.err
	}
	if err := e.ensureOpen(); err != nil {
		return err
	}
	if err := e.w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: e.name}}); err != nil {
		return fmt.Errorf("xmldoc: encode end %s: %w", e.name, err)
	}
	return nil
}
