package httpclient

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httputil"
	"strconv"
	"strings"

	"github.com/localscan/scanhost/pkg/httpmsg"
	"github.com/localscan/scanhost/pkg/uri"
)

// writeRequest writes a full HTTP/1.1 request line, headers and
// (optional) body to conn. Connection: close is always sent: this
// client never pipelines or reuses a connection across queries, so
// there is nothing a keep-alive would buy and it keeps devices that
// mishandle persistent connections from wedging a query.
//
// A caller-supplied Host header wins over the derived one; some
// devices (HP_Compact_Server) only accept scan-start requests carrying
// Host: localhost.
func writeRequest(conn net.Conn, target *uri.URI, method string, hdr *httpmsg.Header, body *httpmsg.Data, forcePort bool) error {
	w := bufio.NewWriter(conn)

	path := target.Path()
	if q := target.Query(); q != "" {
		path += "?" + q
	}
	if _, err := fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", method, path); err != nil {
		return fmt.Errorf("httpclient: write request line: %w", err)
	}

	host := target.HostHeader(forcePort)
	if v, ok := hdr.Get("Host"); ok && v != "" {
		host = v
	}
	if _, err := fmt.Fprintf(w, "Host: %s\r\n", host); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "Connection: close\r\n"); err != nil {
		return err
	}

	hasContentType := false
	for _, f := range hdr.Fields() {
		if strings.EqualFold(f.Name, "Host") || strings.EqualFold(f.Name, "Connection") || strings.EqualFold(f.Name, "Content-Length") {
			continue
		}
		if strings.EqualFold(f.Name, "Content-Type") {
			hasContentType = true
		}
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", f.Name, f.Value); err != nil {
			return err
		}
	}

	if body != nil {
		if !hasContentType && body.ContentType != "" {
			if _, err := fmt.Fprintf(w, "Content-Type: %s\r\n", body.ContentType); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n", len(body.Bytes)); err != nil {
			return err
		}
	} else {
		if _, err := io.WriteString(w, "Content-Length: 0\r\n"); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	if body != nil {
		if _, err := w.Write(body.Bytes); err != nil {
			return fmt.Errorf("httpclient: write body: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("httpclient: flush request: %w", err)
	}
	return nil
}

// readResponse reads a status line, headers, and body from conn. A
// chunked Transfer-Encoding is unwrapped via httputil.NewChunkedReader
// (devices that don't know the final image size up front stream
// NextDocument this way); otherwise the body is read to EOF when no
// Content-Length is present, which the Connection: close policy
// guarantees every response here terminates with. A peer close before
// the body completes is a transport error unless the query set
// NoNeedResponseBody and headers were fully received.
func readResponse(conn net.Conn, q *Query) (*Response, error) {
	r := bufio.NewReader(conn)

	statusLine, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("httpclient: read status line: %w", err)
	}
	statusLine = strings.TrimRight(statusLine, "\r\n")
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("httpclient: malformed status line %q", statusLine)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("httpclient: malformed status code %q: %w", parts[1], err)
	}

	var headerBuf []byte
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("httpclient: read headers: %w", err)
		}
		headerBuf = append(headerBuf, line...)
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	hdr, err := httpmsg.ParseHeader(headerBuf, false)
	if err != nil {
		return nil, fmt.Errorf("httpclient: parse response headers: %w", err)
	}

	if q.OnRxHdr != nil && !isRedirect(code) {
		q.OnRxHdr(code, hdr)
	}

	bodyBytes, err := readBody(r, hdr)
	if err != nil {
		if q.NoNeedResponseBody && peerClosed(err) {
			err = nil
		} else {
			return nil, err
		}
	}

	ct := "application/octet-stream"
	if v, ok := hdr.Get("Content-Type"); ok {
		ct = v
	}

	resp := &Response{
		StatusCode: code,
		Header:     hdr,
		Body:       httpmsg.NewData(ct, bodyBytes),
	}

	if strings.HasPrefix(httpmsg.NormalizeContentType(ct), "multipart/") {
		resp.Parts, err = httpmsg.SplitMultipart(resp.Body, ct)
		if err != nil {
			return nil, fmt.Errorf("httpclient: split multipart body: %w", err)
		}
	}
	return resp, nil
}

func readBody(r *bufio.Reader, hdr *httpmsg.Header) ([]byte, error) {
	if te, ok := hdr.Get("Transfer-Encoding"); ok && strings.EqualFold(strings.TrimSpace(te), "chunked") {
		b, err := io.ReadAll(httputil.NewChunkedReader(r))
		if err != nil {
			return b, fmt.Errorf("httpclient: read chunked body: %w", err)
		}
		return b, nil
	}
	if cl, ok := hdr.Get("Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil {
			return nil, fmt.Errorf("httpclient: malformed Content-Length %q: %w", cl, err)
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("httpclient: read body: %w", err)
		}
		return b, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return b, fmt.Errorf("httpclient: read body to EOF: %w", err)
	}
	return b, nil
}

// peerClosed reports whether err is the peer closing the connection
// mid-body rather than a local failure.
func peerClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
