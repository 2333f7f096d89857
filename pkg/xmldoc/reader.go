// Package xmldoc implements a namespace-aware streaming XML reader and
// writer for the eSCL and WS-Scan SOAP/XML wire formats. It sits on
// top of encoding/xml.Decoder and Encoder: the retrieval pack carries
// no third-party streaming XML library (see DESIGN.md), so this is
// the idiomatic Go foundation for exactly this job.
package xmldoc

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NsMap maps a short prefix ("pwg", "scan") to the namespace URI it
// stands for. Callers register the prefixes they expect to see so
// matching against "pwg:Version"-style patterns works regardless of
// which prefix the device itself used on the wire.
type NsMap map[string]string

// Reader walks an XML document depth-first, tracking the current
// cursor position so callers can ask "am I inside pwg:ScannerStatus"
// without hand-rolling a stack.
type Reader struct {
	dec   *xml.Decoder
	ns    NsMap
	stack []frame
	cur   xml.StartElement
	err   error
}

type frame struct {
	ns, local string
}

// NewReader creates a Reader over r, substituting well-known namespace
// URIs for the short prefixes registered in ns so callers can match
// "scan:ScanSettings" instead of the full xmlns URI.
func NewReader(r io.Reader, ns NsMap) *Reader {
	return &Reader{dec: xml.NewDecoder(r), ns: ns}
}

// Depth reports the current nesting depth (0 at the document root,
// before any element has been entered).
func (r *Reader) Depth() int { return len(r.stack) }

// Err returns the first error encountered by Next, if any.
func (r *Reader) Err() error { return r.err }

// Next advances to the next start or end element, returning the
// decoded token's local name and whether it is a start element. It
// returns ("", false, io.EOF) at end of document.
func (r *Reader) Next() (local string, isStart bool, err error) {
	if r.err != nil {
		return "", false, r.err
	}
	for {
		tok, err := r.dec.Token()
		if err != nil {
			r.err = err
			return "", false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			r.cur = t
			r.stack = append(r.stack, frame{ns: r.resolvePrefix(t.Name.Space), local: t.Name.Local})
			return t.Name.Local, true, nil
		case xml.EndElement:
			local := t.Name.Local
			if len(r.stack) > 0 {
				r.stack = r.stack[:len(r.stack)-1]
			}
			return local, false, nil
		}
	}
}

// resolvePrefix maps a decoded namespace URI back to the short prefix
// registered in NsMap, falling back to the URI itself if unknown.
func (r *Reader) resolvePrefix(uri string) string {
	for prefix, known := range r.ns {
		if known == uri {
			return prefix
		}
	}
	return uri
}

// Match reports whether the current element (the one just entered via
// Next returning isStart=true) matches a "prefix:Local" pattern, e.g.
// "pwg:Version" or "*:Version" to match any namespace.
func (r *Reader) Match(pattern string) bool {
	if len(r.stack) == 0 {
		return false
	}
	top := r.stack[len(r.stack)-1]
	prefix, local, ok := strings.Cut(pattern, ":")
	if !ok {
		return top.local == pattern
	}
	if prefix != "*" && prefix != top.ns {
		return false
	}
	return local == "*" || local == top.local
}

// Text reads character data up to the matching end element for the
// element most recently entered, collapsing CDATA and text token runs.
func (r *Reader) Text() (string, error) {
	var b strings.Builder
	depth := 0
	for {
		tok, err := r.dec.Token()
		if err != nil {
			r.err = err
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				if len(r.stack) > 0 {
					r.stack = r.stack[:len(r.stack)-1]
				}
				return strings.TrimSpace(b.String()), nil
			}
			depth--
		}
	}
}

// Attr returns the value of attribute name on the element most
// recently entered, and whether it was present.
func (r *Reader) Attr(name string) (string, bool) {
	for _, a := range r.cur.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// ValueUint parses s as an unsigned integer, reporting an error on
// overflow or malformed input rather than silently truncating or
// wrapping, since a garbled resolution or job-id value from a device
// must fail loudly rather than propagate as a bogus number.
func ValueUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("xmldoc: value_uint: %w", err)
	}
	return v, nil
}

// Skip consumes tokens until the end element matching the element
// most recently entered, discarding its subtree. Useful for ignoring
// vendor extension elements a handler doesn't understand.
func (r *Reader) Skip() error {
	depth := 0
	for {
		tok, err := r.dec.Token()
		if err != nil {
			r.err = err
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				if len(r.stack) > 0 {
					r.stack = r.stack[:len(r.stack)-1]
				}
				return nil
			}
			depth--
		}
	}
}
