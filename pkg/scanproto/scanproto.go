// Package scanproto defines the protocol-agnostic interface the scan
// job state machine dispatches through, and the tagged-union Kind that
// picks eSCL or WS-Scan at construction time rather than through a
// vtable of function pointers.
package scanproto

import (
	"context"
	"errors"

	"github.com/localscan/scanhost/pkg/imagedecode"
	"github.com/localscan/scanhost/pkg/uri"
)

// ErrNoMorePages is returned by Handler.LoadPage once the device has
// reported every page of a job (eSCL: 404 on NextDocument; WSD: 404
// on RetrieveImageRequest), signaling the job completed normally.
var ErrNoMorePages = errors.New("scanproto: no more pages")

// Kind identifies which wire protocol a Handler speaks.
type Kind int

const (
	KindESCL Kind = iota
	KindWSD
)

func (k Kind) String() string {
	switch k {
	case KindESCL:
		return "eSCL"
	case KindWSD:
		return "WSD"
	default:
		return "unknown"
	}
}

// Source identifies the document source to scan from.
type Source int

const (
	SourcePlaten Source = iota
	SourceADFSimplex
	SourceADFDuplex
)

// ColorMode identifies the pixel encoding to scan in.
type ColorMode int

const (
	ColorModeColor ColorMode = iota
	ColorModeGray
	ColorModeMono
)

// ScanParams describes the scan a caller requested, in abstract,
// protocol-neutral units (hundredths of an inch for geometry, dpi for
// resolution) before a Handler's Devcaps-aware crosswalk narrows them
// to a concrete wire request.
type ScanParams struct {
	Source     Source
	ColorMode  ColorMode
	Resolution int // dpi
	Format     string // MIME type, e.g. "image/jpeg"

	// Region, in hundredths of an inch. A zero Width or Height means
	// the full scan area: the eSCL handler substitutes a fixed
	// 8.5 x 11.69 inch area without consulting Devcaps, and the WSD
	// handler sends no region at all.
	Region struct{ X, Y, Width, Height int }
}

// Status is the protocol-neutral device/job status a Handler reports,
// independent of either eSCL's ScannerStatus or WSD's ScannerState.
type Status int

const (
	StatusIdle Status = iota
	StatusProcessing
	StatusTesting
	StatusStopped
	StatusDown
	StatusJobDone
	StatusJobCanceled
	StatusJobAborted
	StatusNoDocs  // ADF empty
	StatusBusy    // transient 503-class status, caller should retry
	StatusJammed
	StatusCoverOpen
)

// Devcaps is the subset of a device's capabilities a Handler exposes
// to the scan job state machine: resolutions, sources and formats it
// actually supports, already crosswalked from whatever wire
// vocabulary the protocol uses.
type Devcaps struct {
	Sources     []Source
	ColorModes  []ColorMode
	Resolutions []int // discrete list, already deduped/sorted
	Formats     []string
	HasADF      bool
	ADFDuplex   bool
}

// Handler is the protocol-agnostic operations the scan job state
// machine drives a device through. One Handler instance is bound to
// one device endpoint for the lifetime of one job.
type Handler interface {
	Kind() Kind

	// Devcaps fetches and decodes the device's capability document.
	Devcaps(ctx context.Context) (*Devcaps, error)

	// Precheck performs the protocol's pre-scan status check (eSCL:
	// GET ScannerStatus; WSD: GetScannerElements), returning whether
	// the device is currently able to accept a new job.
	Precheck(ctx context.Context) (Status, error)

	// StartJob submits params and returns a handler-defined job
	// reference (eSCL: the Location job URI; WSD: a WSD job token)
	// plus the initial status.
	StartJob(ctx context.Context, params ScanParams) (jobRef string, status Status, err error)

	// JobStatus polls the status of a previously started job.
	JobStatus(ctx context.Context, jobRef string) (Status, error)

	// LoadPage fetches the next scanned page's raw bytes and detected
	// image format, returning (nil, imagedecode.FormatUnknown,
	// ErrNoMorePages) when no more pages remain.
	LoadPage(ctx context.Context, jobRef string) (body []byte, format imagedecode.Format, err error)

	// Cleanup releases any resources associated with jobRef (eSCL:
	// DELETE the job URI; WSD: no-op, the device times it out itself).
	Cleanup(ctx context.Context, jobRef string) error

	// Cancel requests the in-progress job be aborted.
	Cancel(ctx context.Context, jobRef string) error
}

// Endpoint is the minimal addressing information a Handler needs to
// reach a device: its base eSCL/WSD service URI.
type Endpoint struct {
	Base *uri.URI
}
