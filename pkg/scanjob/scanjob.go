// Package scanjob implements the protocol-agnostic scan job state
// machine: pre-check -> start -> poll/load -> retry -> cancel/cleanup,
// layered over a scanproto.Handler bound to one device endpoint. It is
// the per-device counterpart to pkg/reactor's single-loop dispatch:
// every state transition for one Device runs serialized on the
// Device's own goroutine, the way the original serializes every
// protocol op for a device through its one reactor thread.
package scanjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/localscan/scanhost/pkg/imagedecode"
	"github.com/localscan/scanhost/pkg/scanproto"
)

// State is the device's scan job lifecycle state (see spec.md
// section 4.7). Job status is latched: once Status moves off
// StatusGood it is preserved for the rest of the job.
type State int

const (
	StateIdle State = iota
	StateStarted
	StateCheckStatus
	StateRequesting
	StateLoading
	StateCleaningUp
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	case StateCheckStatus:
		return "check_status"
	case StateRequesting:
		return "requesting"
	case StateLoading:
		return "loading"
	case StateCleaningUp:
		return "cleaning_up"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Status is the host-facing, SANE-like job/device status. It is the
// projection of scanproto.Status the state machine reports once a
// job finishes or fails, independent of either wire protocol.
type Status int

const (
	StatusGood Status = iota
	StatusDeviceBusy
	StatusJammed
	StatusCoverOpen
	StatusNoDocs
	StatusCancelled
	StatusUnsupported
	StatusIOError
)

func (s Status) String() string {
	switch s {
	case StatusGood:
		return "GOOD"
	case StatusDeviceBusy:
		return "DEVICE_BUSY"
	case StatusJammed:
		return "JAMMED"
	case StatusCoverOpen:
		return "COVER_OPEN"
	case StatusNoDocs:
		return "NO_DOCS"
	case StatusCancelled:
		return "CANCELLED"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusIOError:
		return "IO_ERROR"
	default:
		return "UNKNOWN"
	}
}

// fromProto crosswalks a scanproto.Status into the host-facing Status
// vocabulary. Transient/in-flight protocol statuses (Idle, Processing,
// Testing, JobDone) have no host-facing equivalent and
// map to StatusGood; callers branch on those before reaching here.
func fromProto(s scanproto.Status) Status {
	switch s {
	case scanproto.StatusBusy:
		return StatusDeviceBusy
	case scanproto.StatusJammed:
		return StatusJammed
	case scanproto.StatusCoverOpen:
		return StatusCoverOpen
	case scanproto.StatusNoDocs:
		return StatusNoDocs
	case scanproto.StatusJobCanceled:
		return StatusCancelled
	case scanproto.StatusJobAborted:
		return StatusUnsupported
	case scanproto.StatusDown:
		return StatusUnsupported
	default:
		return StatusGood
	}
}

// pollInterval is how long CheckStatus waits between JobStatus polls
// while a job is reported busy/processing after a failed op.
const pollInterval = 1000 * time.Millisecond

// maxStatusPolls bounds CheckStatus retries for a given failed
// operation before giving up with StatusIOError.
const maxStatusPolls = 10

// ErrBusy is a sentinel the caller of Start receives when another job
// is already in flight on this Device.
var ErrBusy = errors.New("scanjob: device busy with another job")

// Device drives one scanproto.Handler instance through the scan job
// lifecycle on behalf of one opened host-facing device handle. One
// Device exists per opened device name; a new job reuses the same
// Handler (and therefore the same negotiated quirks) across calls to
// Start.
type Device struct {
	Name    string
	Handler scanproto.Handler

	mu        sync.Mutex
	state     State
	status    Status
	lastErr   error
	cancelReq bool
	cancelCh  chan struct{}
	doneCh    chan struct{}

	caps *scanproto.Devcaps

	jobRef string

	images chan *pendingPage
	cur    imagedecode.Decoder
}

// pendingPage is one decoded page waiting to be streamed out through
// Read, or a terminal signal (err set, decoder nil) that the image
// queue has no more pages for this job.
type pendingPage struct {
	decoder imagedecode.Decoder
	err     error
}

// imageQueueDepth bounds how many decoded pages may be buffered ahead
// of the host reading them.
const imageQueueDepth = 4

// New creates a Device bound to handler, initially StateIdle.
func New(name string, handler scanproto.Handler) *Device {
	return &Device{
		Name:    name,
		Handler: handler,
		state:   StateIdle,
		status:  StatusGood,
	}
}

// State returns the device's current lifecycle state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Status returns the latched job status.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// setState transitions the device's state. Must be called with mu held.
func (d *Device) setState(s State) { d.state = s }

// latch sets the status the first time it moves off StatusGood;
// subsequent calls with a different status are ignored once latched.
// Must be called with mu held.
func (d *Device) latch(s Status) {
	if d.status == StatusGood {
		d.status = s
	}
}

// Devcaps fetches and caches the device's capability document. Safe
// to call before Start to populate option descriptors; Start calls it
// itself if it has not been called yet.
func (d *Device) Devcaps(ctx context.Context) (*scanproto.Devcaps, error) {
	d.mu.Lock()
	if d.caps != nil {
		caps := d.caps
		d.mu.Unlock()
		return caps, nil
	}
	d.mu.Unlock()

	caps, err := d.Handler.Devcaps(ctx)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.caps = caps
	d.mu.Unlock()
	return caps, nil
}

// Start begins a scan job with params, driving precheck -> start ->
// load/poll to completion in a background goroutine. It blocks until
// the job reaches StateLoading (first page available) or StateDone
// (failed or completed with no pages), matching the host-facing
// semantics of the original's blocking device_start(): the host-API
// adapter calls Read in a loop afterward to drain pages.
//
// Returns ErrBusy if a previous job on this Device has not finished.
func (d *Device) Start(ctx context.Context, params scanproto.ScanParams) error {
	d.mu.Lock()
	if d.state != StateIdle && d.state != StateDone {
		d.mu.Unlock()
		return ErrBusy
	}
	d.state = StateStarted
	d.status = StatusGood
	d.lastErr = nil
	d.cancelReq = false
	d.cancelCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.images = make(chan *pendingPage, imageQueueDepth)
	d.jobRef = ""
	d.mu.Unlock()

	readyCh := make(chan struct{}, 1)
	go d.run(ctx, params, readyCh)

	select {
	case <-readyCh:
	case <-d.doneCh:
	case <-ctx.Done():
		d.Cancel()
		return ctx.Err()
	}
	return nil
}

// Cancel requests the in-flight job be aborted. Idempotent: a second
// call while a cancel is already in flight is a no-op, matching the
// original's per-device cancel-event coalescing.
func (d *Device) Cancel() {
	d.mu.Lock()
	if d.cancelReq || d.state == StateIdle || d.state == StateDone {
		d.mu.Unlock()
		return
	}
	d.cancelReq = true
	ch := d.cancelCh
	d.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

func (d *Device) canceled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelReq
}

// run drives the full precheck/start/load pipeline. It always ends by
// closing doneCh and transitioning to StateDone.
func (d *Device) run(ctx context.Context, params scanproto.ScanParams, readyCh chan<- struct{}) {
	var finalErr error
	defer func() {
		d.mu.Lock()
		d.lastErr = finalErr
		d.setState(StateDone)
		close(d.images)
		close(d.doneCh)
		d.mu.Unlock()
	}()

	if d.canceled() {
		d.mu.Lock()
		d.latch(StatusCancelled)
		d.mu.Unlock()
		return
	}

	if _, err := d.Devcaps(ctx); err != nil {
		finalErr = fmt.Errorf("scanjob: devcaps: %w", err)
		d.mu.Lock()
		d.latch(StatusIOError)
		d.mu.Unlock()
		return
	}

	jobRef, status, err := d.Handler.StartJob(ctx, params)
	if err != nil {
		finalErr = fmt.Errorf("scanjob: start job: %w", err)
		d.mu.Lock()
		d.latch(StatusIOError)
		d.mu.Unlock()
		return
	}
	if terminal, ok := terminalStatus(status); ok {
		d.mu.Lock()
		d.latch(terminal)
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	d.jobRef = jobRef
	d.setState(StateRequesting)
	d.mu.Unlock()

	d.loadLoop(ctx, jobRef, readyCh)
}

// terminalStatus reports whether a scanproto.Status returned from
// StartJob/JobStatus already represents a finished (non-retryable)
// job, and if so its host-facing projection.
func terminalStatus(s scanproto.Status) (Status, bool) {
	switch s {
	case scanproto.StatusNoDocs, scanproto.StatusJammed, scanproto.StatusCoverOpen,
		scanproto.StatusJobAborted, scanproto.StatusJobCanceled:
		return fromProto(s), true
	default:
		return StatusGood, false
	}
}

// loadLoop repeatedly calls LoadPage, decoding each page and pushing
// it onto the image queue, until the handler reports
// scanproto.ErrNoMorePages or a failure. On failure it falls back to
// CheckStatus to learn whether the failure was really a benign
// end-of-job condition (HTTP 503 busy is already retried inside the
// handler; this loop only sees the final outcome).
//
// ErrNoMorePages on its own is ambiguous: for a source that already
// delivered at least one page, it is the normal end of the job. For an
// ADF source that never delivered a page, it can instead mean the
// feeder was empty from the start (404 on the very first
// NextDocument/RetrieveImage), which CheckStatus's AdfState-aware
// decode distinguishes from a genuine zero-page success.
func (d *Device) loadLoop(ctx context.Context, jobRef string, readyCh chan<- struct{}) {
	first := true
	for {
		if d.canceled() {
			d.cancelJob(ctx, jobRef)
			d.mu.Lock()
			d.latch(StatusCancelled)
			d.mu.Unlock()
			return
		}

		d.mu.Lock()
		d.setState(StateLoading)
		d.mu.Unlock()

		body, _, err := d.Handler.LoadPage(ctx, jobRef)
		if errors.Is(err, scanproto.ErrNoMorePages) {
			if first {
				st := d.pollAfterFailure(ctx, jobRef)
				d.finishJob(ctx, jobRef, st)
				return
			}
			d.finishJob(ctx, jobRef, StatusGood)
			return
		}
		if err != nil {
			st := d.pollAfterFailure(ctx, jobRef)
			d.finishJob(ctx, jobRef, st)
			return
		}

		decoder, decErr := imagedecode.Open(body)
		if decErr != nil {
			d.mu.Lock()
			d.latch(StatusIOError)
			d.mu.Unlock()
			d.finishJob(ctx, jobRef, StatusIOError)
			return
		}

		select {
		case d.images <- &pendingPage{decoder: decoder}:
		case <-ctx.Done():
			d.finishJob(ctx, jobRef, StatusCancelled)
			return
		}

		if first {
			first = false
			select {
			case readyCh <- struct{}{}:
			default:
			}
		}
	}
}

// pollAfterFailure switches to StateCheckStatus and polls JobStatus up
// to maxStatusPolls times at pollInterval, returning the host-facing
// status once the device reports something other than a transient
// busy/processing condition.
func (d *Device) pollAfterFailure(ctx context.Context, jobRef string) Status {
	d.mu.Lock()
	d.setState(StateCheckStatus)
	d.mu.Unlock()

	for attempt := 0; attempt < maxStatusPolls; attempt++ {
		if d.canceled() {
			return StatusCancelled
		}
		st, err := d.Handler.JobStatus(ctx, jobRef)
		if err != nil {
			return StatusIOError
		}
		switch st {
		case scanproto.StatusProcessing, scanproto.StatusTesting, scanproto.StatusBusy:
			select {
			case <-ctx.Done():
				return StatusCancelled
			case <-time.After(pollInterval):
			}
			continue
		default:
			if st == scanproto.StatusIdle || st == scanproto.StatusJobDone {
				return StatusGood
			}
			return fromProto(st)
		}
	}
	return StatusIOError
}

// finishJob transitions to StateCleaningUp, releases the job on the
// device (best-effort) and latches status. It does not signal
// readiness: a Start still waiting returns when run closes doneCh.
func (d *Device) finishJob(ctx context.Context, jobRef string, status Status) {
	d.mu.Lock()
	d.setState(StateCleaningUp)
	d.latch(status)
	d.mu.Unlock()

	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.Handler.Cleanup(cctx, jobRef)
}

// cancelJob issues the handler's Cancel and transitions through
// StateCleaningUp, best-effort: cancellation always succeeds from the
// caller's perspective even if the device-side abort request fails.
func (d *Device) cancelJob(ctx context.Context, jobRef string) {
	d.mu.Lock()
	d.setState(StateCleaningUp)
	d.mu.Unlock()

	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.Handler.Cancel(cctx, jobRef)
}

// Read fills buf with decoded scanline bytes from the current (or
// next) pending page, returning ErrEOF once the job has delivered its
// last page and the caller has drained it. It is safe to call
// repeatedly from one goroutine (the host-API adapter's read loop);
// it is not safe to call concurrently with itself.
func (d *Device) Read(buf []byte) (int, error) {
	for {
		if d.cur != nil {
			n, err := d.cur.ReadLine(buf)
			if n > 0 {
				return n, nil
			}
			if err != nil {
				d.cur = nil
				continue
			}
		}

		page, ok := <-d.images
		if !ok {
			return 0, errEndOfJob(d)
		}
		if page.err != nil {
			return 0, page.err
		}
		d.cur = page.decoder
	}
}

// errEndOfJob reports ErrEOF if the job finished cleanly (status
// still GOOD) or the latched status as an error otherwise, matching
// the original's "user-visible status is the last latched status".
func errEndOfJob(d *Device) error {
	st := d.Status()
	if st == StatusGood {
		return errEOF
	}
	return fmt.Errorf("scanjob: job ended with status %s", st)
}

var errEOF = errors.New("scanjob: EOF")

// ErrEOF is the sentinel Read returns once a job finishes with
// StatusGood and every page has been drained.
var ErrEOF = errEOF

// Wait blocks until the job reaches StateDone, returning the latched
// status. Useful for callers (tests, a synchronous CLI) that want to
// wait out a whole job rather than streaming Read concurrently.
func (d *Device) Wait(ctx context.Context) (Status, error) {
	d.mu.Lock()
	done := d.doneCh
	d.mu.Unlock()
	if done == nil {
		return d.Status(), nil
	}
	select {
	case <-done:
		return d.Status(), nil
	case <-ctx.Done():
		return d.Status(), ctx.Err()
	}
}
