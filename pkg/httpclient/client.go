// Package httpclient implements the HTTP/1.1 client the scan job state
// machine and protocol handlers use to talk to eSCL/WSD devices. It is
// a manual wire codec over net.Dial/tls.Client rather than
// net/http.Transport, because this client needs address-list
// fail-over mid-query, a single default Connection: close, and manual
// redirect interception ahead of any retry policy — none of which
// net/http's Transport exposes as hooks (see DESIGN.md).
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/localscan/scanhost/pkg/httpmsg"
	"github.com/localscan/scanhost/pkg/reactor"
	"github.com/localscan/scanhost/pkg/uri"
)

// defaultTimeout bounds a whole query (dial, TLS, request, response)
// unless the caller overrides it per query or per client. Embedded
// scanner firmware can sit on a request for a long time while the
// carriage moves, so this is deliberately generous.
const defaultTimeout = 60 * time.Second

// Client runs queries on behalf of a device. It tracks its in-flight
// queries so device teardown can cancel them as a group, and carries
// the shared defaults (timeouts, reactor to post completions on).
type Client struct {
	Reactor     *reactor.Reactor
	DialTimeout time.Duration
	Timeout     time.Duration // whole-query deadline; 0 means defaultTimeout
	TLSInsecure bool          // honors vendor quirk "self-signed eSCL cert"

	mu      sync.Mutex
	pending map[*Query]struct{}
	onError func(q *Query, err error)
}

// New creates a Client whose asynchronous query completions are
// posted onto r, so callers' callbacks are always serialized with
// every other reactor-scheduled work.
func New(r *reactor.Reactor) *Client {
	return &Client{
		Reactor:     r,
		DialTimeout: 5 * time.Second,
		pending:     map[*Query]struct{}{},
	}
}

// OnError installs a client-wide transport-error handler. When set, a
// query started with Start that fails in transport delivers its error
// here instead of to its own completion callback.
func (c *Client) OnError(fn func(q *Query, err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Cancel cancels every in-flight query. Completion callbacks for
// canceled queries do not run.
func (c *Client) Cancel() {
	for _, q := range c.snapshot() {
		q.Cancel()
	}
}

// CancelAfUintptr cancels the in-flight queries whose target address
// family ("ip4" or "ip6") and user data both match. Used to drop work
// tied to a network interface family that just went away.
func (c *Client) CancelAfUintptr(af string, data uintptr) {
	for _, q := range c.snapshot() {
		if q.UserData == data && q.URI.AddressFamily() == af {
			q.Cancel()
		}
	}
}

// SetTimeout replaces the whole-query deadline for every in-flight
// query and for queries submitted afterwards.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.Timeout = d
	c.mu.Unlock()
	for _, q := range c.snapshot() {
		q.rearm(q.effectiveTimeout())
	}
}

// Pending returns the number of in-flight queries.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) snapshot() []*Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Query, 0, len(c.pending))
	for q := range c.pending {
		out = append(out, q)
	}
	return out
}

func (c *Client) track(q *Query) {
	c.mu.Lock()
	c.pending[q] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) untrack(q *Query) {
	c.mu.Lock()
	delete(c.pending, q)
	c.mu.Unlock()
}

// Response is a completed HTTP response: status, headers and body.
// For multipart bodies Parts holds the split parts, each aliasing
// Body's bytes.
type Response struct {
	StatusCode int
	Header     *httpmsg.Header
	Body       *httpmsg.Data
	Parts      []httpmsg.Part
	Final      *uri.URI // URI actually fetched, after following redirects
}

const maxRedirects = 8

// Query describes one request, including its address-list fail-over
// set and redirect/force-port behavior.
type Query struct {
	client *Client

	Addrs     []netip.AddrPort // candidate addresses to try, in order
	URI       *uri.URI
	Method    string
	Header    *httpmsg.Header
	Body      *httpmsg.Data
	ForcePort bool          // force the Host header to carry an explicit port
	Timeout   time.Duration // overrides the client default when non-zero
	UserData  uintptr       // opaque caller tag, matched by CancelAfUintptr

	// NoNeedResponseBody makes a peer close after complete headers a
	// successful completion instead of a transport error. Set on
	// requests (DELETE, cancel) whose response body is irrelevant.
	NoNeedResponseBody bool

	// OnRedirect, when set, runs after a redirect Location has been
	// resolved and before it is dispatched; the URI it returns replaces
	// the redirect target.
	OnRedirect func(next *uri.URI) *uri.URI

	// OnRxHdr, when set, runs as soon as a non-redirect response's
	// headers are complete, before the body is read.
	OnRxHdr func(status int, hdr *httpmsg.Header)

	canceled atomic.Bool

	mu       sync.Mutex
	deadline func() // cancels the in-flight context; nil when not running
	timer    *time.Timer
}

// NewQuery creates a Query against target, defaulting Method to GET.
func (c *Client) NewQuery(target *uri.URI) *Query {
	return &Query{
		client: c,
		URI:    target,
		Method: "GET",
		Header: &httpmsg.Header{},
	}
}

// Cancel marks the query canceled; an in-flight Do returns
// context.Canceled at its next I/O checkpoint. Canceling a completed
// query is a no-op.
func (q *Query) Cancel() {
	q.canceled.Store(true)
	q.mu.Lock()
	if q.deadline != nil {
		q.deadline()
	}
	q.mu.Unlock()
}

// rearm replaces the query's running deadline timer with a fresh one.
func (q *Query) rearm(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer == nil || q.deadline == nil {
		return
	}
	q.timer.Stop()
	q.timer = time.AfterFunc(d, q.deadline)
}

func (q *Query) effectiveTimeout() time.Duration {
	if q.Timeout > 0 {
		return q.Timeout
	}
	c := q.client
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// Do executes the query synchronously, following redirects per the
// 301/302/303/307/308 policy (8-hop cap, 303 rewritten to GET) and
// trying each address in Addrs in turn until one connects.
func (q *Query) Do(ctx context.Context) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.client.track(q)
	q.mu.Lock()
	q.deadline = cancel
	q.timer = time.AfterFunc(q.effectiveTimeout(), cancel)
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.timer.Stop()
		q.timer = nil
		q.deadline = nil
		q.mu.Unlock()
		q.client.untrack(q)
	}()

	target := q.URI
	method := q.Method
	var body *httpmsg.Data
	if q.Method != "GET" && q.Method != "HEAD" {
		body = q.Body
	}

	for hop := 0; ; hop++ {
		if hop > maxRedirects {
			return nil, fmt.Errorf("httpclient: too many redirects (>%d)", maxRedirects)
		}
		if q.canceled.Load() {
			return nil, context.Canceled
		}

		resp, err := q.doOnce(ctx, target, method, body)
		if err != nil {
			if q.canceled.Load() {
				return nil, context.Canceled
			}
			return nil, err
		}

		if !isRedirect(resp.StatusCode) {
			resp.Final = target
			return resp, nil
		}

		loc, ok := resp.Header.Get("Location")
		if !ok {
			return nil, fmt.Errorf("httpclient: %d redirect with no Location header", resp.StatusCode)
		}
		next, err := uri.Resolve(target, loc, true, false)
		if err != nil {
			return nil, fmt.Errorf("httpclient: resolve redirect Location: %w", err)
		}
		if q.OnRedirect != nil {
			next = q.OnRedirect(next)
		}
		if resp.StatusCode == 303 {
			method = "GET"
			body = nil
		}
		target = next
	}
}

func isRedirect(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// doOnce performs one request/response round trip, trying each
// address in q.Addrs (or target's own host, if Addrs is empty) until
// one succeeds.
func (q *Query) doOnce(ctx context.Context, target *uri.URI, method string, body *httpmsg.Data) (*Response, error) {
	addrs := q.Addrs
	if len(addrs) == 0 {
		if ap, ok := target.SockAddr(); ok {
			addrs = []netip.AddrPort{ap}
		}
	}
	if len(addrs) == 0 {
		return q.dialAndExchange(ctx, target.Host(), target, method, body)
	}

	var lastErr error
	for _, ap := range addrs {
		if q.canceled.Load() {
			return nil, context.Canceled
		}
		resp, err := q.dialAndExchange(ctx, ap.String(), target, method, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("httpclient: all addresses failed: %w", lastErr)
}

func (q *Query) dialAndExchange(ctx context.Context, dialAddr string, target *uri.URI, method string, body *httpmsg.Data) (*Response, error) {
	network := target.DialNetwork()
	dctx, cancel := context.WithTimeout(ctx, q.client.DialTimeout)
	defer cancel()

	var d net.Dialer
	hostPort := dialAddr
	if _, _, err := net.SplitHostPort(dialAddr); err != nil {
		hostPort = net.JoinHostPort(dialAddr, target.EffectivePort())
	}

	conn, err := d.DialContext(dctx, network, hostPort)
	if err != nil {
		return nil, fmt.Errorf("httpclient: dial %s: %w", hostPort, err)
	}
	defer func() { _ = conn.Close() }()

	if target.Scheme == uri.SchemeHTTPS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         target.Host(),
			InsecureSkipVerify: q.client.TLSInsecure,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, fmt.Errorf("httpclient: tls handshake: %w", err)
		}
		conn = tlsConn
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := writeRequest(conn, target, method, q.Header, body, q.ForcePort); err != nil {
		return nil, err
	}

	return readResponse(conn, q)
}
