package httpmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaderOrderAndCase(t *testing.T) {
	raw := "Content-Type: text/xml\r\nX-Foo: 1\r\nX-Foo: 2\r\n\r\n"
	hdr, err := ParseHeader([]byte(raw), false)
	require.NoError(t, err)

	v, ok := hdr.Get("content-type")
	require.True(t, ok)
	assert.Equal(t, "text/xml", v)

	values := hdr.Values("x-foo")
	require.Equal(t, []string{"1", "2"}, values)

	// First match returned, in insertion order.
	first, ok := hdr.Get("X-Foo")
	require.True(t, ok)
	assert.Equal(t, "1", first)
}

func TestParseHeaderSkipFirstLine(t *testing.T) {
	raw := "HTTP/1.1 201 Created\r\nLocation: http://dev/eSCL/ScanJobs/abc\r\n\r\n"
	hdr, err := ParseHeader([]byte(raw), true)
	require.NoError(t, err)
	loc, ok := hdr.Get("Location")
	require.True(t, ok)
	assert.Equal(t, "http://dev/eSCL/ScanJobs/abc", loc)
}

func TestParseParamField(t *testing.T) {
	p, err := ParseParamField(`multipart/related; boundary="abc123"; charset=utf-8`)
	require.NoError(t, err)
	assert.Equal(t, "multipart/related", p.Value)

	b, ok := p.Get("boundary")
	require.True(t, ok)
	assert.Equal(t, "abc123", b)

	cs, ok := p.Get("CHARSET")
	require.True(t, ok)
	assert.Equal(t, "utf-8", cs)
}

func TestNormalizeContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", NormalizeContentType("Image/JPEG; q=0.9"))
}

func buildMultipartBody(boundary string, parts [][2]string) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, []byte("--"+boundary+"\r\n")...)
		out = append(out, []byte("Content-Type: "+p[0]+"\r\n\r\n")...)
		out = append(out, []byte(p[1])...)
		out = append(out, []byte("\r\n")...)
	}
	out = append(out, []byte("--"+boundary+"--\r\n")...)
	return out
}

func TestSplitMultipartRoundTrip(t *testing.T) {
	boundary := "BOUNDARY42"
	parts := [][2]string{
		{"text/plain", "hello"},
		{"application/octet-stream", "world!!"},
		{"text/plain", "third part body"},
	}
	body := buildMultipartBody(boundary, parts)
	parent := NewData("multipart/mixed; boundary="+boundary, body)

	got, err := SplitMultipart(parent, parent.ContentType+"; boundary="+boundary)
	require.NoError(t, err)
	require.Len(t, got, len(parts))

	for i, p := range got {
		assert.Equal(t, parts[i][0], p.Body.ContentType)
		assert.Equal(t, parts[i][1], string(p.Body.Bytes))
		assert.Same(t, parent, p.Body.Parent())
	}
}

func TestSplitMultipartToleratesMissingLeadingCRLF(t *testing.T) {
	boundary := "B"
	// First boundary flush directly against the previous byte (no CRLF).
	body := []byte("preamble--" + boundary + "\r\nContent-Type: text/plain\r\n\r\nabc\r\n--" + boundary + "--\r\n")
	parent := NewData("multipart/mixed", body)

	got, err := SplitMultipart(parent, "multipart/mixed; boundary="+boundary)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", string(got[0].Body.Bytes))
}

func TestSplitMultipartMissingBoundary(t *testing.T) {
	parent := NewData("multipart/mixed", []byte("x"))
	_, err := SplitMultipart(parent, "multipart/mixed")
	assert.Error(t, err)
}

func TestQueueFIFO(t *testing.T) {
	var q Queue
	a := NewData("text/plain", []byte("a"))
	b := NewData("text/plain", []byte("b"))
	q.Push(a)
	q.Push(b)
	assert.Equal(t, 2, q.Len())
	assert.Same(t, a, q.Pull())
	assert.Same(t, b, q.Pull())
	assert.Nil(t, q.Pull())
}

func TestQueuePurge(t *testing.T) {
	var q Queue
	q.Push(NewData("text/plain", []byte("a")))
	q.Purge()
	assert.Equal(t, 0, q.Len())
}
