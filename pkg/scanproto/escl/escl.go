// Package escl implements the Mopria/AirScan eSCL protocol handler:
// capability query, scan start, page load, status polling and
// cleanup/cancel, plus the small per-vendor quirk table spec.md
// documents (Canon resolution clamp, HP localhost redirect, Canon
// MF410 ADF precheck, EPSON force_port).
//
// Grounded on the mfp reference server's AbstractServer
// (other_examples/...proto-escl-abstractserver.go.go) for naming
// (ScannerCapabilities/ScannerStatus/ScanSettings/JobState) and
// request/response shape, reimplemented client-side against
// pkg/httpclient and pkg/xmldoc instead of net/http.
package escl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/localscan/scanhost/pkg/httpclient"
	"github.com/localscan/scanhost/pkg/httpmsg"
	"github.com/localscan/scanhost/pkg/imagedecode"
	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/uri"
)

// NsMap is the namespace-prefix table every eSCL document on the wire
// uses.
var NsMap = map[string]string{
	"pwg":  "http://www.pwg.org/schemas/2010/12/sm",
	"scan": "http://schemas.hp.com/imaging/escl/2011/05/03",
}

// quirks is the per-device behavior-toggle set discovered from
// capability XML (MakeAndModel) and response headers (Server).
type quirks struct {
	clampResolutions300 bool // Canon iR2625/2630
	localhostHostHeader bool // HP LaserJet/FlowMFP, Server: HP_Compact_Server
	adfRespectsPrecheck bool // Canon MF410 Series
	forcePort           bool // any EPSON
}

// Handler implements scanproto.Handler for eSCL.
type Handler struct {
	client *httpclient.Client
	base   *uri.URI

	quirks       quirks
	caps         *scanproto.Devcaps
	lastLoadDur  time.Duration
	adfSource    bool
	location     *uri.URI
}

var _ scanproto.Handler = (*Handler)(nil)

// New creates an eSCL handler rooted at base (the device's eSCL
// service base URI, e.g. "http://192.168.1.50/eSCL").
func New(client *httpclient.Client, base *uri.URI) *Handler {
	return &Handler{client: client, base: base.FixEndSlash()}
}

func (h *Handler) Kind() scanproto.Kind { return scanproto.KindESCL }

func (h *Handler) resolve(rel string) (*uri.URI, error) {
	return uri.Resolve(h.base, rel, true, false)
}

// applyQuirksFromHeader inspects a response's Server header for the
// HP_Compact_Server quirk, which some devices advertise only at
// response time rather than in capabilities.
func (h *Handler) applyQuirksFromHeader(hdr *httpmsg.Header) {
	if server, ok := hdr.Get("Server"); ok && strings.Contains(server, "HP_Compact_Server") {
		h.quirks.localhostHostHeader = true
	}
}

// newQuery builds a Query with the force_port quirk applied, hooking
// header receipt so response-time quirks (Server: HP_Compact_Server)
// are picked up on every exchange, not just the capability fetch.
func (h *Handler) newQuery(target *uri.URI, method string) *httpclient.Query {
	q := h.client.NewQuery(target)
	q.Method = method
	q.ForcePort = h.quirks.forcePort
	q.OnRxHdr = func(_ int, hdr *httpmsg.Header) { h.applyQuirksFromHeader(hdr) }
	return q
}

// devcapsRequest fetches and decodes the ScannerCapabilities document.
func (h *Handler) devcapsRequest(ctx context.Context) (*httpclient.Response, error) {
	target, err := h.resolve("ScannerCapabilities")
	if err != nil {
		return nil, err
	}
	return h.newQuery(target, "GET").Do(ctx)
}

// Devcaps fetches, decodes and crosswalks ScannerCapabilities,
// recording any vendor quirks discovered in the MakeAndModel field.
func (h *Handler) Devcaps(ctx context.Context) (*scanproto.Devcaps, error) {
	resp, err := h.devcapsRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("escl: devcaps request: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("escl: devcaps: HTTP %d", resp.StatusCode)
	}

	caps, makeAndModel, err := decodeCapabilities(resp.Body.Bytes)
	if err != nil {
		return nil, fmt.Errorf("escl: decode capabilities: %w", err)
	}
	applyVendorQuirks(&h.quirks, makeAndModel)
	if h.quirks.clampResolutions300 {
		caps.Resolutions = scanproto.BoundResolutions(caps.Resolutions, 0, 300)
	}
	h.caps = caps
	return caps, nil
}

// applyVendorQuirks sets quirk flags per spec.md's table, matched
// against the device's advertised MakeAndModel string.
func applyVendorQuirks(q *quirks, makeAndModel string) {
	switch {
	case makeAndModel == "Canon iR2625/2630":
		q.clampResolutions300 = true
	case strings.HasPrefix(makeAndModel, "HP LaserJet"), strings.Contains(makeAndModel, "FlowMFP"):
		q.localhostHostHeader = true
	case makeAndModel == "Canon MF410 Series":
		q.adfRespectsPrecheck = true
	case strings.HasPrefix(strings.ToUpper(makeAndModel), "EPSON"):
		q.forcePort = true
	}
}

// imageFormatFor maps a response Content-Type to the matching
// imagedecode.Format so callers can pick the right decoder.
func imageFormatFor(contentType string) imagedecode.Format {
	switch httpmsg.NormalizeContentType(contentType) {
	case "image/jpeg":
		return imagedecode.FormatJPEG
	case "image/png":
		return imagedecode.FormatPNG
	case "image/tiff":
		return imagedecode.FormatTIFF
	case "image/bmp":
		return imagedecode.FormatBMP
	default:
		return imagedecode.FormatUnknown
	}
}
