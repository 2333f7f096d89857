package escl

import (
	"context"
	"fmt"
	"time"

	"github.com/localscan/scanhost/pkg/httpclient"
	"github.com/localscan/scanhost/pkg/imagedecode"
	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/uri"
)

const retryBackoff = 1000 * time.Millisecond

// Precheck issues GET ScannerStatus and decodes it into a
// protocol-neutral Status.
func (h *Handler) Precheck(ctx context.Context) (scanproto.Status, error) {
	target, err := h.resolve("ScannerStatus")
	if err != nil {
		return scanproto.StatusDown, err
	}
	resp, err := h.newQuery(target, "GET").Do(ctx)
	if err != nil {
		return scanproto.StatusDown, fmt.Errorf("escl: precheck request: %w", err)
	}
	if resp.StatusCode != 200 {
		if st, ok := httpStatusFallback(resp.StatusCode, false); ok {
			return st, nil
		}
		return scanproto.StatusDown, fmt.Errorf("escl: precheck: HTTP %d", resp.StatusCode)
	}
	return decodeScannerStatus(resp.Body.Bytes, h.adfSource)
}

// StartJob posts ScanSettings to ScanJobs, applying the
// HP localhost Host-header quirk and remapping a localhost-advertised
// Location back through fix_host.
func (h *Handler) StartJob(ctx context.Context, params scanproto.ScanParams) (string, scanproto.Status, error) {
	h.adfSource = params.Source != scanproto.SourcePlaten

	if h.quirks.adfRespectsPrecheck && h.adfSource {
		st, err := h.Precheck(ctx)
		if err != nil {
			return "", scanproto.StatusDown, err
		}
		if st == scanproto.StatusNoDocs || st == scanproto.StatusJobAborted {
			return "", st, nil
		}
	}

	target, err := h.resolve("ScanJobs")
	if err != nil {
		return "", scanproto.StatusDown, err
	}
	q := h.newQuery(target, "POST")
	q.Body = buildScanSettings(params, h.caps)
	// HP_Compact_Server devices reject a scan start unless it carries
	// Host: localhost; the Location they answer with is fixed up below.
	if h.quirks.localhostHostHeader {
		q.Header.Add("Host", "localhost")
	}

	resp, err := q.Do(ctx)
	if err != nil {
		return "", scanproto.StatusDown, fmt.Errorf("escl: start scan job: %w", err)
	}
	if resp.StatusCode != 201 {
		if st, ok := httpStatusFallback(resp.StatusCode, false); ok {
			return "", st, nil
		}
		return "", scanproto.StatusDown, fmt.Errorf("escl: start scan job: HTTP %d", resp.StatusCode)
	}

	loc, ok := resp.Header.Get("Location")
	if !ok || loc == "" {
		return "", scanproto.StatusDown, fmt.Errorf("escl: scan job created with no Location header")
	}
	jobURI, err := uri.Resolve(target, loc, true, false)
	if err != nil {
		return "", scanproto.StatusDown, fmt.Errorf("escl: resolve job Location: %w", err)
	}
	// Undo the HP quirk of advertising the job at "localhost" instead
	// of the address the client actually dialed.
	jobURI = jobURI.FixHost(h.base, "localhost")

	h.location = jobURI
	return jobURI.String(), scanproto.StatusProcessing, nil
}

// JobStatus polls ScannerStatus, treating jobRef purely as an opaque
// token: eSCL has no per-job status endpoint distinct from the
// device-wide ScannerStatus.
func (h *Handler) JobStatus(ctx context.Context, jobRef string) (scanproto.Status, error) {
	return h.Precheck(ctx)
}

// LoadPage issues GET <Location>/NextDocument, retrying up to 30
// times at a 1s backoff on HTTP 503. For an ADF source it first waits
// the ramp-down delay (min(previous load duration * 0.5, 1000ms))
// before issuing the request; platen jobs skip the delay.
func (h *Handler) LoadPage(ctx context.Context, jobRef string) ([]byte, imagedecode.Format, error) {
	if h.location == nil {
		var err error
		h.location, err = uri.Parse(jobRef, true)
		if err != nil {
			return nil, imagedecode.FormatUnknown, fmt.Errorf("escl: parse job reference: %w", err)
		}
	}
	target, err := uri.Resolve(h.location, "NextDocument", true, false)
	if err != nil {
		return nil, imagedecode.FormatUnknown, err
	}

	if h.adfSource {
		h.sleepRampDown(ctx)
	}

	start := time.Now()
	limit := retryLimit(true)
	var resp *httpclient.Response
	for attempt := 0; ; attempt++ {
		r, err := h.newQuery(target, "GET").Do(ctx)
		if err != nil {
			return nil, imagedecode.FormatUnknown, fmt.Errorf("escl: load page: %w", err)
		}
		if r.StatusCode == 503 && attempt < limit {
			select {
			case <-ctx.Done():
				return nil, imagedecode.FormatUnknown, ctx.Err()
			case <-time.After(retryBackoff):
			}
			continue
		}
		resp = r
		break
	}

	if resp.StatusCode == 404 {
		return nil, imagedecode.FormatUnknown, scanproto.ErrNoMorePages
	}
	if resp.StatusCode != 200 {
		return nil, imagedecode.FormatUnknown, fmt.Errorf("escl: load page: HTTP %d", resp.StatusCode)
	}

	h.lastLoadDur = time.Since(start)
	contentType, _ := resp.Header.Get("Content-Type")
	format := imageFormatFor(contentType)
	if format == imagedecode.FormatUnknown {
		format = imagedecode.DetectFormat(resp.Body.Bytes)
	}
	return resp.Body.Bytes, format, nil
}

// sleepRampDown implements the ADF-only "delay next load by
// min(previous*0.5, 1000ms)" quirk workaround.
func (h *Handler) sleepRampDown(ctx context.Context) {
	if h.lastLoadDur == 0 {
		return
	}
	delay := h.lastLoadDur / 2
	if delay > time.Second {
		delay = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// Cleanup and Cancel both DELETE the job Location.
func (h *Handler) Cleanup(ctx context.Context, jobRef string) error {
	return h.deleteJob(ctx, jobRef)
}

func (h *Handler) Cancel(ctx context.Context, jobRef string) error {
	return h.deleteJob(ctx, jobRef)
}

func (h *Handler) deleteJob(ctx context.Context, jobRef string) error {
	target := h.location
	if target == nil {
		var err error
		target, err = uri.Parse(jobRef, true)
		if err != nil {
			return fmt.Errorf("escl: parse job reference: %w", err)
		}
	}
	q := h.newQuery(target, "DELETE")
	// Some devices slam the connection shut right after acknowledging
	// the DELETE; the body is irrelevant either way.
	q.NoNeedResponseBody = true
	resp, err := q.Do(ctx)
	if err != nil {
		return fmt.Errorf("escl: delete job: %w", err)
	}
	if resp.StatusCode >= 300 && resp.StatusCode != 404 {
		return fmt.Errorf("escl: delete job: HTTP %d", resp.StatusCode)
	}
	return nil
}
