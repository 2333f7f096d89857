// Package uri parses and manipulates absolute and relative HTTP/HTTPS
// URIs, keeping each URI's components as views into the one buffer it
// owns.
//
// Unlike net/url, which is general purpose, this package keeps every
// parsed field as an offset pair into the URI's own raw byte buffer so
// that callers holding a substring view never outlive the buffer that
// backs it, and exposes the handful of scanner-specific operations
// (host-literal detection, IPv6 zone-id fixups, localhost rewriting)
// the transport layer needs.
package uri

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// Scheme tags the URI's transport scheme.
type Scheme int

// Recognized schemes. SchemeUnset is never returned by Parse.
const (
	SchemeUnset Scheme = iota
	SchemeHTTP
	SchemeHTTPS
)

func (s Scheme) String() string {
	switch s {
	case SchemeHTTP:
		return "http"
	case SchemeHTTPS:
		return "https"
	default:
		return "unset"
	}
}

// field is an offset/length pair over URI.Raw.
type field struct {
	start, end int
}

func (f field) valid() bool { return f.end > f.start }

// URI is a parsed HTTP/HTTPS URI. The zero value is not valid; obtain a
// URI via Parse, Clone or Resolve.
//
// Raw is the owned byte buffer every field view is sliced from. URI
// values must be cloned (Clone) when handed to a new owner, since
// substring views returned by Path, Query and friends alias Raw.
type URI struct {
	Raw    string
	Scheme Scheme

	userinfo, host, port, path, query, fragment field

	// literalAddr is the pre-parsed sockaddr when Host is an IPv4/IPv6
	// literal, or the zero value otherwise.
	literalAddr netip.Addr
	hasLiteral  bool
}

// Parse parses an absolute http/https URI. Non-http(s) schemes are
// rejected. If stripFragment is true, a trailing "#fragment" is
// removed before the URI is stored.
func Parse(s string, stripFragment bool) (*URI, error) {
	if stripFragment {
		if i := strings.IndexByte(s, '#'); i >= 0 {
			s = s[:i]
		}
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("uri: parse %q: %w", s, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("uri: parse %q: missing scheme", s)
	}

	var scheme Scheme
	switch strings.ToLower(u.Scheme) {
	case "http":
		scheme = SchemeHTTP
	case "https":
		scheme = SchemeHTTPS
	default:
		return nil, fmt.Errorf("uri: parse %q: unsupported scheme %q", s, u.Scheme)
	}

	return fromURL(s, scheme, u), nil
}

// fromURL rebuilds a URI's field offsets by re-finding each component's
// text inside raw. This is the "rebase offsets onto the caller's
// original bytes" step described for the internal parser contract:
// net/url's Parse is used for the RFC 3986 grammar, but the resulting
// URI keeps views into the exact bytes the caller supplied.
func fromURL(raw string, scheme Scheme, u *url.URL) *URI {
	out := &URI{Raw: raw, Scheme: scheme}

	// Find the authority (host[:port], optionally userinfo@) within raw.
	schemeEnd := strings.Index(raw, "://")
	authStart := 0
	if schemeEnd >= 0 {
		authStart = schemeEnd + 3
	}
	rest := raw[authStart:]

	authEnd := len(rest)
	for i, c := range rest {
		if c == '/' || c == '?' || c == '#' {
			authEnd = i
			break
		}
	}
	authority := rest[:authEnd]
	pathAndRest := rest[authEnd:]

	userinfoPart := ""
	hostPort := authority
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		userinfoPart = authority[:at]
		hostPort = authority[at+1:]
	}

	if userinfoPart != "" {
		start := authStart
		out.userinfo = field{start, start + len(userinfoPart)}
	}

	hostStart := authStart + len(authority) - len(hostPort)
	host, port := splitHostPort(hostPort)
	out.host = field{hostStart, hostStart + len(host)}
	if port != "" {
		portStart := hostStart + len(hostPort) - len(port)
		out.port = field{portStart, portStart + len(port)}
	}

	// path/query/fragment, located within pathAndRest.
	pathStart := authStart + authEnd
	queryIdx := strings.IndexByte(pathAndRest, '?')
	fragIdx := strings.IndexByte(pathAndRest, '#')

	pathEnd := len(pathAndRest)
	if queryIdx >= 0 && queryIdx < pathEnd {
		pathEnd = queryIdx
	}
	if fragIdx >= 0 && fragIdx < pathEnd {
		pathEnd = fragIdx
	}
	if pathEnd > 0 {
		out.path = field{pathStart, pathStart + pathEnd}
	}

	if queryIdx >= 0 {
		qEnd := len(pathAndRest)
		if fragIdx >= 0 && fragIdx > queryIdx {
			qEnd = fragIdx
		}
		out.query = field{pathStart + queryIdx + 1, pathStart + qEnd}
	}
	if fragIdx >= 0 {
		out.fragment = field{pathStart + fragIdx + 1, pathStart + len(pathAndRest)}
	}

	out.literalAddr, out.hasLiteral = parseLiteralHost(host)

	return out
}

// splitHostPort splits "host:port" or "[v6]:port" without requiring the
// port to be numeric-validated; it only needs to agree with url.URL.
func splitHostPort(hostport string) (host, port string) {
	if strings.HasPrefix(hostport, "[") {
		if end := strings.IndexByte(hostport, ']'); end >= 0 {
			host = hostport[:end+1]
			rest := hostport[end+1:]
			if strings.HasPrefix(rest, ":") {
				port = rest[1:]
			}
			return host, port
		}
	}
	if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 {
		return hostport[:idx], hostport[idx+1:]
	}
	return hostport, ""
}

// parseLiteralHost tries to parse host (without brackets, without zone
// id in the classic form) as an IPv4/IPv6 literal.
func parseLiteralHost(host string) (netip.Addr, bool) {
	h := strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	// Accept both %25zone (percent-encoded) and %zone forms.
	h = strings.Replace(h, "%25", "%", 1)
	addr, err := netip.ParseAddr(h)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// Clone returns a deep copy of u; the copy owns its own Raw buffer, so
// mutating either URI never affects the other's views.
func (u *URI) Clone() *URI {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Raw = strings.Clone(u.Raw)
	return &cp
}

func (u *URI) slice(f field) string {
	if !f.valid() {
		return ""
	}
	return u.Raw[f.start:f.end]
}

// Host returns the host component, without brackets for IPv6 literals.
func (u *URI) Host() string {
	h := u.slice(u.host)
	return strings.TrimPrefix(strings.TrimSuffix(h, "]"), "[")
}

// Port returns the port component, or "" if not present.
func (u *URI) Port() string { return u.slice(u.port) }

// Userinfo returns the userinfo component, or "" if not present.
func (u *URI) Userinfo() string { return u.slice(u.userinfo) }

// Path returns the path component, or "" if not present.
func (u *URI) Path() string {
	p := u.slice(u.path)
	if p == "" {
		return "/"
	}
	return p
}

// Query returns the query component (without the leading '?').
func (u *URI) Query() string { return u.slice(u.query) }

// Fragment returns the fragment component (without the leading '#').
func (u *URI) Fragment() string { return u.slice(u.fragment) }

// defaultPort returns the scheme's default port ("80"/"443").
func (u *URI) defaultPort() string {
	if u.Scheme == SchemeHTTPS {
		return "443"
	}
	return "80"
}

// EffectivePort returns the port to connect to: the explicit port if
// set, otherwise the scheme default.
func (u *URI) EffectivePort() string {
	if p := u.Port(); p != "" {
		return p
	}
	return u.defaultPort()
}

// IsLiteral reports whether Host is an IPv4 or IPv6 address literal
// rather than a DNS name.
func (u *URI) IsLiteral() bool { return u.hasLiteral }

// AddressFamily returns "ip4" or "ip6" for a literal host, or "" for a
// named host.
func (u *URI) AddressFamily() string {
	if !u.hasLiteral {
		return ""
	}
	if u.literalAddr.Is4() || u.literalAddr.Is4In6() {
		return "ip4"
	}
	return "ip6"
}

// IsLoopback reports whether the host is a loopback literal or the
// name "localhost".
func (u *URI) IsLoopback() bool {
	if u.hasLiteral {
		return u.literalAddr.IsLoopback()
	}
	return strings.EqualFold(u.Host(), "localhost")
}

// HostIs reports whether u's host equals other, comparing names
// case-insensitively and literal addresses by value (ignoring a zone
// suffix on either side).
func (u *URI) HostIs(other string) bool {
	a := stripZone(u.Host())
	b := stripZone(other)
	if addrA, errA := netip.ParseAddr(a); errA == nil {
		if addrB, errB := netip.ParseAddr(b); errB == nil {
			return addrA == addrB
		}
	}
	return strings.EqualFold(a, b)
}

func stripZone(host string) string {
	if i := strings.IndexByte(host, '%'); i >= 0 {
		return host[:i]
	}
	return host
}

// SockAddr returns the resolved IP and port for a literal-host URI.
// The second return value is false for named hosts.
func (u *URI) SockAddr() (netip.AddrPort, bool) {
	if !u.hasLiteral {
		return netip.AddrPort{}, false
	}
	portNum, err := strconv.ParseUint(u.EffectivePort(), 10, 16)
	if err != nil {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(u.literalAddr, uint16(portNum)), true
}

// SetPath returns a clone of u with its path replaced by p. Query and
// fragment are preserved.
func (u *URI) SetPath(p string) *URI {
	prefix := u.Raw[:u.path.start]
	if !u.path.valid() {
		prefix = u.Raw[:u.host.end]
		if u.port.valid() {
			prefix = u.Raw[:u.port.end]
		}
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	suffix := ""
	if u.query.valid() {
		suffix += "?" + u.slice(u.query)
	}
	if u.fragment.valid() {
		suffix += "#" + u.slice(u.fragment)
	}
	clone, err := Parse(prefix+p+suffix, false)
	if err != nil {
		// prefix+p+suffix is built from an already-valid URI, so this
		// can only happen if p itself contains illegal bytes; fall
		// back to a best-effort clone with the old path intact.
		return u.Clone()
	}
	return clone
}

// FixEndSlash returns a clone of u whose path is guaranteed to end
// with "/".
func (u *URI) FixEndSlash() *URI {
	p := u.Path()
	if strings.HasSuffix(p, "/") {
		return u.Clone()
	}
	return u.SetPath(p + "/")
}

// FixHost returns a clone of u with scheme, host and port rewritten
// from base, but only when match is empty or u's current host equals
// match. This undoes devices that redirect to a fixed alias such as
// "localhost" while actually serving from a reachable address.
func (u *URI) FixHost(base *URI, match string) *URI {
	if match != "" && !u.HostIs(match) {
		return u.Clone()
	}

	hostPart := base.slice(base.host)
	rest := u.Raw[u.host.end:]
	if u.port.valid() {
		rest = u.Raw[u.port.end:]
	}

	newRaw := base.Scheme.String() + "://" + hostPart
	if base.port.valid() {
		newRaw += ":" + base.slice(base.port)
	}
	newRaw += rest

	clone, err := Parse(newRaw, false)
	if err != nil {
		return u.Clone()
	}
	return clone
}

// FixIPv6Zone returns a clone of u with a zone-id appended to a
// link-local IPv6 literal host that doesn't already carry one, per
// RFC 6874 (percent-encoded as "%25<ifindex>"). It is a no-op for
// non-literal, non-link-local, or already-zoned hosts.
func (u *URI) FixIPv6Zone(ifindex int) *URI {
	if !u.hasLiteral || !u.literalAddr.Is6() || u.literalAddr.Is4In6() {
		return u.Clone()
	}
	if !u.literalAddr.IsLinkLocalUnicast() {
		return u.Clone()
	}
	if strings.ContainsAny(u.Host(), "%") {
		return u.Clone()
	}

	host := u.Host()
	zoned := fmt.Sprintf("[%s%%25%d]", host, ifindex)
	return u.replaceHostLiteral(zoned)
}

// StripZoneSuffix returns a clone of u with any IPv6 zone-id removed
// from a literal host.
func (u *URI) StripZoneSuffix() *URI {
	if !u.hasLiteral {
		return u.Clone()
	}
	host := u.Host()
	idx := strings.IndexByte(host, '%')
	if idx < 0 {
		return u.Clone()
	}
	return u.replaceHostLiteral("[" + host[:idx] + "]")
}

func (u *URI) replaceHostLiteral(bracketed string) *URI {
	prefix := u.Raw[:u.host.start]
	suffix := u.Raw[u.host.end:]
	newRaw := prefix + bracketed + suffix
	clone, err := Parse(newRaw, false)
	if err != nil {
		return u.Clone()
	}
	return clone
}

// Equal reports whether u and other are equal per spec: scheme and
// host compared case-insensitively, port compared case-insensitively
// on its string form, and path/query/fragment/userinfo compared
// byte-exact.
func (u *URI) Equal(other *URI) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.Scheme == other.Scheme &&
		strings.EqualFold(u.Host(), other.Host()) &&
		strings.EqualFold(u.EffectivePort(), other.EffectivePort()) &&
		u.Path() == other.Path() &&
		u.Query() == other.Query() &&
		u.Fragment() == other.Fragment() &&
		u.Userinfo() == other.Userinfo()
}

// String renders u back to its canonical textual form (not necessarily
// byte-identical to Raw for inputs that weren't already canonical).
func (u *URI) String() string { return u.Raw }

// DialNetwork reports the net package's "tcp4"/"tcp6" dial network
// for the URI's address family, defaulting to "tcp" for named hosts.
func (u *URI) DialNetwork() string {
	switch u.AddressFamily() {
	case "ip4":
		return "tcp4"
	case "ip6":
		return "tcp6"
	default:
		return "tcp"
	}
}

// HostHeader computes the value to send as the HTTP Host header,
// applying the literal-vs-name rule from the transport spec: for a
// literal host, the default port matching the scheme is elided unless
// forcePort is set; for a named host, the path is stripped to leave
// "host[:port]".
func (u *URI) HostHeader(forcePort bool) string {
	host := u.Host()
	bracketed := host
	if u.hasLiteral && u.literalAddr.Is6() {
		bracketed = "[" + host + "]"
	}

	port := u.Port()
	if port == "" {
		if !forcePort {
			return bracketed
		}
		port = u.defaultPort()
	}
	if !forcePort && port == u.defaultPort() {
		return bracketed
	}
	return net.JoinHostPort(host, port)
}
