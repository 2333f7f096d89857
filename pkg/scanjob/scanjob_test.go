package scanjob

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localscan/scanhost/pkg/imagedecode"
	"github.com/localscan/scanhost/pkg/scanproto"
)

// a tiny valid 1x1 BMP, the simplest format imagedecode can sniff and
// decode without a full JPEG/PNG/TIFF encoder in the test.
var onePixelBMP = []byte{
	'B', 'M', // magic
	54 + 4, 0, 0, 0, // file size (header+1px 32bpp... kept simple, decoder only reads what it needs)
	0, 0, 0, 0, // reserved
	54, 0, 0, 0, // pixel data offset
	40, 0, 0, 0, // DIB header size
	1, 0, 0, 0, // width = 1
	1, 0, 0, 0, // height = 1
	1, 0, // planes
	24, 0, // bpp = 24
	0, 0, 0, 0, // compression
	0, 0, 0, 0, // image size
	0, 0, 0, 0, 0, 0, 0, 0, // ppm x/y
	0, 0, 0, 0, 0, 0, 0, 0, // colors
	0, 0, 0, // one BGR pixel
	0,       // row padding to 4-byte boundary
}

// fakeHandler is a scripted scanproto.Handler driving the state
// machine without any network I/O, in the spirit of the mfp
// reference server tests' in-memory fakes.
type fakeHandler struct {
	caps       *scanproto.Devcaps
	startErr   error
	startJob   string
	startStat  scanproto.Status
	pages      [][]byte
	pageIdx    int
	statusSeq  []scanproto.Status
	statusIdx  int
	cleanedUp  bool
	canceled   bool
	loadErr    error

	startedSignal chan struct{}
	blockStart    chan struct{}
}

func (f *fakeHandler) Kind() scanproto.Kind { return scanproto.KindESCL }

func (f *fakeHandler) Devcaps(ctx context.Context) (*scanproto.Devcaps, error) {
	if f.caps == nil {
		return &scanproto.Devcaps{Sources: []scanproto.Source{scanproto.SourcePlaten}}, nil
	}
	return f.caps, nil
}

func (f *fakeHandler) Precheck(ctx context.Context) (scanproto.Status, error) {
	return scanproto.StatusIdle, nil
}

func (f *fakeHandler) StartJob(ctx context.Context, params scanproto.ScanParams) (string, scanproto.Status, error) {
	if f.startedSignal != nil {
		close(f.startedSignal)
	}
	if f.blockStart != nil {
		<-f.blockStart
	}
	if f.startErr != nil {
		return "", scanproto.StatusDown, f.startErr
	}
	return f.startJob, f.startStat, nil
}

func (f *fakeHandler) JobStatus(ctx context.Context, jobRef string) (scanproto.Status, error) {
	if f.statusIdx >= len(f.statusSeq) {
		return scanproto.StatusIdle, nil
	}
	s := f.statusSeq[f.statusIdx]
	f.statusIdx++
	return s, nil
}

func (f *fakeHandler) LoadPage(ctx context.Context, jobRef string) ([]byte, imagedecode.Format, error) {
	if f.loadErr != nil {
		return nil, imagedecode.FormatUnknown, f.loadErr
	}
	if f.pageIdx >= len(f.pages) {
		return nil, imagedecode.FormatUnknown, scanproto.ErrNoMorePages
	}
	p := f.pages[f.pageIdx]
	f.pageIdx++
	return p, imagedecode.DetectFormat(p), nil
}

func (f *fakeHandler) Cleanup(ctx context.Context, jobRef string) error {
	f.cleanedUp = true
	return nil
}

func (f *fakeHandler) Cancel(ctx context.Context, jobRef string) error {
	f.canceled = true
	return nil
}

var _ scanproto.Handler = (*fakeHandler)(nil)

func TestDeviceHappyPathOnePage(t *testing.T) {
	h := &fakeHandler{
		startJob:  "job-1",
		startStat: scanproto.StatusProcessing,
		pages:     [][]byte{onePixelBMP},
	}
	d := New("fake-device", h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Start(ctx, scanproto.ScanParams{Resolution: 300}))

	buf := make([]byte, 3)
	n, err := d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = d.Read(buf)
	assert.ErrorIs(t, err, ErrEOF)

	st, _ := d.Wait(ctx)
	assert.Equal(t, StatusGood, st)
	assert.Equal(t, StateDone, d.State())
	assert.True(t, h.cleanedUp)
}

func TestDeviceNoDocsIsTerminal(t *testing.T) {
	h := &fakeHandler{
		startJob:  "",
		startStat: scanproto.StatusNoDocs,
	}
	d := New("fake-device", h)

	ctx := context.Background()
	require.NoError(t, d.Start(ctx, scanproto.ScanParams{}))

	st, _ := d.Wait(ctx)
	assert.Equal(t, StatusNoDocs, st)
}

func TestDeviceCancelDuringLoad(t *testing.T) {
	h := &fakeHandler{
		startJob:  "job-1",
		startStat: scanproto.StatusProcessing,
		pages:     [][]byte{onePixelBMP, onePixelBMP, onePixelBMP},
	}
	d := New("fake-device", h)

	ctx := context.Background()
	require.NoError(t, d.Start(ctx, scanproto.ScanParams{}))

	d.Cancel()
	d.Cancel() // idempotent, must not panic or double-invoke Handler.Cancel concurrently

	st, _ := d.Wait(ctx)
	assert.Equal(t, StatusCancelled, st)
	assert.True(t, h.canceled)
}

func TestDeviceSecondStartWhileBusyFails(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	h := &fakeHandler{
		startJob:      "job-1",
		startStat:     scanproto.StatusProcessing,
		startedSignal: started,
		blockStart:    block,
	}
	d := New("fake-device", h)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() { firstDone <- d.Start(ctx, scanproto.ScanParams{}) }()
	<-started

	err := d.Start(ctx, scanproto.ScanParams{})
	assert.ErrorIs(t, err, ErrBusy)

	close(block)
	require.NoError(t, <-firstDone)
	_, _ = d.Wait(ctx)
}

// TestDeviceS4ADFEmptyReportsNoDocs mirrors spec.md's S4 scenario: an
// ADF source whose very first LoadPage comes back 404
// (scanproto.ErrNoMorePages, no page ever delivered) while
// ScannerStatus reports the feeder empty. The zero-pages-delivered
// case must consult status instead of assuming the job went fine.
func TestDeviceS4ADFEmptyReportsNoDocs(t *testing.T) {
	h := &fakeHandler{
		startJob:  "job-1",
		startStat: scanproto.StatusProcessing,
		statusSeq: []scanproto.Status{scanproto.StatusNoDocs},
	}
	d := New("fake-device", h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Start(ctx, scanproto.ScanParams{Source: scanproto.SourceADFSimplex}))

	st, _ := d.Wait(ctx)
	assert.Equal(t, StatusNoDocs, st)
	assert.True(t, h.cleanedUp)
}

func TestDeviceLoadFailureFallsBackToStatusPoll(t *testing.T) {
	h := &fakeHandler{
		startJob:  "job-1",
		startStat: scanproto.StatusProcessing,
		loadErr:   errors.New("transport: connection reset"),
		statusSeq: []scanproto.Status{scanproto.StatusNoDocs},
	}
	d := New("fake-device", h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Start(ctx, scanproto.ScanParams{}))

	st, _ := d.Wait(ctx)
	assert.Equal(t, StatusNoDocs, st)

	_, err := d.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
