package httpmsg

import (
	"bytes"
	"fmt"
)

// Part is one part of a split multipart body: its own header list plus
// a Data view of its body bytes, aliasing the parent buffer.
type Part struct {
	Header *Header
	Body   *Data
}

// SplitMultipart splits parent's bytes into parts using the boundary
// parameter carried by contentType. It tolerates the known device bug
// of emitting the first "--boundary" without a preceding CRLF (some
// devices flush the first boundary directly against the previous
// byte, instead of the well-formed "\r\n--boundary").
func SplitMultipart(parent *Data, contentType string) ([]Part, error) {
	params, err := ParseParamField(contentType)
	if err != nil {
		return nil, fmt.Errorf("httpmsg: parse content-type: %w", err)
	}
	boundary, ok := params.Get("boundary")
	if !ok || boundary == "" {
		return nil, fmt.Errorf("httpmsg: multipart content-type missing boundary")
	}

	data := parent.Bytes
	delim := []byte("--" + boundary)

	var offsets []int
	for i := 0; ; {
		idx := bytes.Index(data[i:], delim)
		if idx < 0 {
			break
		}
		offsets = append(offsets, i+idx)
		i += idx + len(delim)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("httpmsg: no multipart boundaries found")
	}

	var parts []Part
	for n, off := range offsets {
		bodyStart := off + len(delim)
		if bodyStart >= len(data) {
			break
		}
		// A final boundary is followed by "--"; stop there.
		if bytes.HasPrefix(data[bodyStart:], []byte("--")) {
			break
		}
		bodyStart = skipCRLF(data, bodyStart)

		segEnd := len(data)
		if n+1 < len(offsets) {
			segEnd = offsets[n+1]
		}
		segment := data[bodyStart:segEnd]

		sep := bytes.Index(segment, []byte("\r\n\r\n"))
		if sep < 0 {
			return nil, fmt.Errorf("httpmsg: malformed multipart part: no header terminator")
		}

		hdr, err := ParseHeader(segment[:sep+2], false)
		if err != nil {
			return nil, fmt.Errorf("httpmsg: malformed multipart part headers: %w", err)
		}

		bodyBytes := segment[sep+4:]
		// Strip a single trailing CRLF that precedes the next boundary.
		bodyBytes = bytes.TrimSuffix(bodyBytes, []byte("\r\n"))

		partCT := ""
		if ct, ok := hdr.Get("Content-Type"); ok {
			partCT = ct
		}

		start := bodyStart + sep + 4
		_ = start // offsets retained conceptually; slice already aliases parent
		parts = append(parts, Part{
			Header: hdr,
			Body:   NewChildData(parent, partCT, bodyBytes),
		})
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("httpmsg: no parts found")
	}

	return parts, nil
}

// skipCRLF advances past a single CRLF (or bare LF) at data[i:], if
// present, tolerating the device bug where the boundary isn't
// preceded/followed by a CRLF at all.
func skipCRLF(data []byte, i int) int {
	if i+1 < len(data) && data[i] == '\r' && data[i+1] == '\n' {
		return i + 2
	}
	if i < len(data) && data[i] == '\n' {
		return i + 1
	}
	return i
}
