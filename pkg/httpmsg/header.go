// Package httpmsg implements the tolerant incremental HTTP header and
// multipart parsing the transport layer relies on: an ordered header
// field list (stable insertion order, case-insensitive lookup),
// parametrized field parsing ("Content-Type: x; boundary=..."), and
// splitting multipart bodies into parts that alias their parent buffer
// instead of copying.
package httpmsg

import (
	"bufio"
	"bytes"
	"fmt"
	"net/textproto"
	"strings"
)

// Field is one (name, value) header entry. Value may be empty when the
// header was present but carried no value.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered sequence of fields. Lookup is case-insensitive
// and returns the first match, matching net/http's semantics but
// keeping every duplicate around in original order (net/textproto
// collapses duplicates by joining with ", ", which loses insertion
// order — see ParseHeader for how this is recovered).
type Header struct {
	fields []Field
}

// Add appends a field, preserving insertion order.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Get returns the value of the first field matching name
// case-insensitively, and whether it was found.
func (h *Header) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value for fields matching name
// case-insensitively, in insertion order.
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Fields returns the full ordered field list. The returned slice must
// not be mutated by the caller.
func (h *Header) Fields() []Field { return h.fields }

// Len reports the number of fields.
func (h *Header) Len() int { return len(h.fields) }

// ParseHeader parses the header block of an HTTP response (everything
// up to and including the blank line terminating headers, body not
// included) from data. skipFirstLine, when true, treats data's first
// line as an existing status/request line rather than the start of the
// header block.
//
// net/textproto (and the underlying http parser it's built for)
// insists on a status or request line before headers, so when the
// caller hands us a bare header block we synthesize one, matching the
// teacher's SSDP header-parsing technique
// (pkg/discovery/scanners/ssdp/ssdp.go:parseHeaders).
func ParseHeader(data []byte, skipFirstLine bool) (*Header, error) {
	buf := data
	if !skipFirstLine {
		buf = append([]byte("HTTP/1.1 200 OK\r\n"), data...)
	}
	if !bytes.Contains(buf, []byte("\r\n\r\n")) {
		buf = append(append([]byte{}, buf...), []byte("\r\n\r\n")...)
	}

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(buf)))
	if _, err := tp.ReadLine(); err != nil {
		return nil, fmt.Errorf("httpmsg: read status line: %w", err)
	}

	hdr := &Header{}
	for {
		line, err := tp.ReadContinuedLine()
		if err != nil {
			return nil, fmt.Errorf("httpmsg: read header line: %w", err)
		}
		if line == "" {
			break
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			// Malformed field with no value; record the bare name per
			// the "value may be absent" data-model note.
			hdr.Add(strings.TrimSpace(line), "")
			continue
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		hdr.Add(name, value)
	}

	return hdr, nil
}

// Params is an ordered (name, value) container for the parameters of a
// parametrized field such as "Content-Type: multipart/related;
// boundary=xyz; charset=utf-8".
type Params struct {
	Value  string
	fields []Field
}

// Get returns the value of parameter name (case-insensitive), and
// whether it was present.
func (p *Params) Get(name string) (string, bool) {
	for _, f := range p.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// ParseParamField parses a parametrized header field value such as
// "multipart/related; boundary=xyz". It is a hand-rolled state machine
// over tokens, quoted strings (with backslash escapes) and ';'
// separators, since mime.ParseMediaType normalizes the primary
// value to lower-case and doesn't expose the kind of partial/tolerant
// recovery embedded devices occasionally require (trailing ';' with no
// parameter, stray whitespace runs).
func ParseParamField(s string) (*Params, error) {
	i := 0
	n := len(s)

	skipSpace := func() {
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}

	readToken := func() string {
		start := i
		for i < n && s[i] != ';' && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		return s[start:i]
	}

	skipSpace()
	value := readToken()
	out := &Params{Value: value}

	for {
		skipSpace()
		if i >= n {
			break
		}
		if s[i] != ';' {
			// Tolerate junk between tokens by skipping to the next ';'.
			if idx := strings.IndexByte(s[i:], ';'); idx >= 0 {
				i += idx
				continue
			}
			break
		}
		i++ // consume ';'
		skipSpace()
		if i >= n {
			break
		}

		nameStart := i
		for i < n && s[i] != '=' && s[i] != ';' {
			i++
		}
		name := strings.TrimSpace(s[nameStart:i])
		if name == "" {
			continue
		}
		if i >= n || s[i] != '=' {
			// Parameter with no value.
			out.fields = append(out.fields, Field{Name: name, Value: ""})
			continue
		}
		i++ // consume '='

		var pval string
		if i < n && s[i] == '"' {
			i++
			var b strings.Builder
			for i < n && s[i] != '"' {
				if s[i] == '\\' && i+1 < n {
					i++
				}
				b.WriteByte(s[i])
				i++
			}
			if i < n {
				i++ // consume closing quote
			}
			pval = b.String()
		} else {
			pval = readToken()
		}
		out.fields = append(out.fields, Field{Name: name, Value: pval})
	}

	return out, nil
}
