// Package wsd implements the WS-Scan protocol handler: SOAP-over-HTTP
// capability query, CreateScanJobRequest/RetrieveImageRequest for
// start/load, GetScannerElements for status polling, and
// CancelJobRequest for cancel.
//
// Grounded on the mfp reference querier's action-name vocabulary
// (other_examples/...discovery-wsdd-querier.go.go: ActHello, ActBye,
// ActProbeMatches, wsd.DecodeMsg dispatch-by-action shape) and the
// teacher's SSDP scanner (pkg/discovery/scanners/ssdp/ssdp.go) for the
// UDP-probe/HTTP-follow-up pattern common to SSDP and WSD discovery;
// the directed discovery probe itself lives in pkg/discovery/wsd, not
// here (this package is only the per-job protocol handler).
package wsd

import (
	"bytes"
	"context"
	"fmt"

	"github.com/localscan/scanhost/pkg/httpclient"
	"github.com/localscan/scanhost/pkg/httpmsg"
	"github.com/localscan/scanhost/pkg/imagedecode"
	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/uri"
	"github.com/localscan/scanhost/pkg/xmldoc"
)

// NsMap is the SOAP/WS-* namespace table WS-Scan messages use.
var NsMap = map[string]string{
	"s":    "http://www.w3.org/2003/05/soap-envelope",
	"a":    "http://schemas.xmlsoap.org/ws/2004/08/addressing",
	"wscn": "http://schemas.microsoft.com/windows/2006/08/wdp/scan",
}

const (
	actionGetScannerElements = "http://schemas.microsoft.com/windows/2006/08/wdp/scan/GetScannerElementsRequest"
	actionCreateScanJob      = "http://schemas.microsoft.com/windows/2006/08/wdp/scan/CreateScanJobRequest"
	actionRetrieveImage      = "http://schemas.microsoft.com/windows/2006/08/wdp/scan/RetrieveImageRequest"
	actionCancelJob          = "http://schemas.microsoft.com/windows/2006/08/wdp/scan/CancelJobRequest"
)

// Handler implements scanproto.Handler for WS-Scan.
type Handler struct {
	client *httpclient.Client
	base   *uri.URI
}

var _ scanproto.Handler = (*Handler)(nil)

// New creates a WSD handler against the device's scan service
// endpoint (the address a WS-Discovery probe resolved).
func New(client *httpclient.Client, base *uri.URI) *Handler {
	return &Handler{client: client, base: base}
}

func (h *Handler) Kind() scanproto.Kind { return scanproto.KindWSD }

// soapPost sends a SOAP envelope wrapping body (already-built XML
// bytes for the action's child element) to the device's service
// endpoint, returning the HTTP response as received.
func (h *Handler) soapPost(ctx context.Context, action string, body []byte) (*httpclient.Response, error) {
	env := wrapEnvelope(action, h.base.String(), body)
	q := h.client.NewQuery(h.base)
	q.Method = "POST"
	q.Header.Add("Content-Type", `application/soap+xml; charset=utf-8`)
	q.Body = httpmsg.NewData("application/soap+xml", env)
	resp, err := q.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("wsd: soap post %s: %w", action, err)
	}
	return resp, nil
}

func wrapEnvelope(action, to string, body []byte) []byte {
	var buf bytes.Buffer
	w := xmldoc.NewWriter(&buf, NsMap, "  ")
	env := w.Root("s", "Envelope")
	hdr := env.Child("s", "Header")
	hdr.Child("a", "Action").Text(action).End()
	hdr.Child("a", "To").Text(to).End()
	hdr.End()
	bodyEl := env.Child("s", "Body")
	bodyEl.Raw(body)
	bodyEl.End()
	env.End()
	_ = w.Close()
	return buf.Bytes()
}

// Devcaps issues GetScannerElements asking for ScannerConfiguration,
// decoding the formats/sources/resolutions it advertises.
func (h *Handler) Devcaps(ctx context.Context) (*scanproto.Devcaps, error) {
	resp, err := h.soapPost(ctx, actionGetScannerElements, []byte(`<wscn:GetScannerElementsRequest><wscn:RequestedElements><wscn:Name>wscn:ScannerConfiguration</wscn:Name></wscn:RequestedElements></wscn:GetScannerElementsRequest>`))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("wsd: devcaps: HTTP %d", resp.StatusCode)
	}
	return decodeScannerConfiguration(resp.Body.Bytes)
}

// Precheck asks for ScannerStatus elements and maps wscn:ScannerState.
func (h *Handler) Precheck(ctx context.Context) (scanproto.Status, error) {
	resp, err := h.soapPost(ctx, actionGetScannerElements, []byte(`<wscn:GetScannerElementsRequest><wscn:RequestedElements><wscn:Name>wscn:ScannerStatus</wscn:Name></wscn:RequestedElements></wscn:GetScannerElementsRequest>`))
	if err != nil {
		return scanproto.StatusDown, err
	}
	if resp.StatusCode != 200 {
		return scanproto.StatusDown, fmt.Errorf("wsd: precheck: HTTP %d", resp.StatusCode)
	}
	return decodeScannerState(resp.Body.Bytes)
}

// StartJob issues CreateScanJobRequest, returning the device-assigned
// JobId as the protocol-neutral jobRef token.
func (h *Handler) StartJob(ctx context.Context, params scanproto.ScanParams) (string, scanproto.Status, error) {
	ticket := buildScanTicket(params)
	resp, err := h.soapPost(ctx, actionCreateScanJob, ticket)
	if err != nil {
		return "", scanproto.StatusDown, err
	}
	if resp.StatusCode != 200 {
		return "", scanproto.StatusDown, fmt.Errorf("wsd: start job: HTTP %d", resp.StatusCode)
	}
	jobID, err := decodeJobID(resp.Body.Bytes)
	if err != nil {
		return "", scanproto.StatusDown, err
	}
	return jobID, scanproto.StatusProcessing, nil
}

// JobStatus polls device-wide status; WS-Scan has no distinct
// per-job status request beyond ScannerStatus/JobStatus elements.
func (h *Handler) JobStatus(ctx context.Context, jobRef string) (scanproto.Status, error) {
	return h.Precheck(ctx)
}

// LoadPage issues RetrieveImageRequest and splits the MTOM/multipart
// response into its image part.
func (h *Handler) LoadPage(ctx context.Context, jobRef string) ([]byte, imagedecode.Format, error) {
	reqBody := fmt.Sprintf(`<wscn:RetrieveImageRequest><wscn:JobId>%s</wscn:JobId><wscn:DocumentDescription/></wscn:RetrieveImageRequest>`, jobRef)
	resp, err := h.soapPost(ctx, actionRetrieveImage, []byte(reqBody))
	if err != nil {
		return nil, imagedecode.FormatUnknown, err
	}
	if resp.StatusCode == 404 {
		return nil, imagedecode.FormatUnknown, scanproto.ErrNoMorePages
	}
	if resp.StatusCode != 200 {
		return nil, imagedecode.FormatUnknown, fmt.Errorf("wsd: load page: HTTP %d", resp.StatusCode)
	}

	contentType, _ := resp.Header.Get("Content-Type")
	if bytes.HasPrefix([]byte(contentType), []byte("multipart")) {
		parts, err := httpmsg.SplitMultipart(resp.Body, contentType)
		if err != nil {
			return nil, imagedecode.FormatUnknown, fmt.Errorf("wsd: split multipart image response: %w", err)
		}
		for _, p := range parts {
			if f := imagedecode.DetectFormat(p.Body.Bytes); f != imagedecode.FormatUnknown {
				return p.Body.Bytes, f, nil
			}
		}
		return nil, imagedecode.FormatUnknown, fmt.Errorf("wsd: no image part found in multipart response")
	}

	return resp.Body.Bytes, imagedecode.DetectFormat(resp.Body.Bytes), nil
}

// Cleanup is a no-op: WS-Scan devices time out abandoned jobs on
// their own, unlike eSCL's explicit job Location DELETE.
func (h *Handler) Cleanup(ctx context.Context, jobRef string) error { return nil }

// Cancel issues CancelJobRequest for jobRef.
func (h *Handler) Cancel(ctx context.Context, jobRef string) error {
	reqBody := fmt.Sprintf(`<wscn:CancelJobRequest><wscn:JobId>%s</wscn:JobId></wscn:CancelJobRequest>`, jobRef)
	resp, err := h.soapPost(ctx, actionCancelJob, []byte(reqBody))
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("wsd: cancel job: HTTP %d", resp.StatusCode)
	}
	return nil
}
