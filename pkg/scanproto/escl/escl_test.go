package escl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localscan/scanhost/pkg/httpclient"
	"github.com/localscan/scanhost/pkg/imagedecode"
	"github.com/localscan/scanhost/pkg/reactor"
	"github.com/localscan/scanhost/pkg/scanjob"
	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/uri"
)

const capabilitiesXML = `<scan:ScannerCapabilities xmlns:scan="http://schemas.hp.com/imaging/escl/2011/05/03" xmlns:pwg="http://www.pwg.org/schemas/2010/12/sm">
  <pwg:MakeAndModel>%s</pwg:MakeAndModel>
  <scan:Platen>
    <scan:PlatenInputCaps>
      <scan:MaxWidth>2550</scan:MaxWidth>
      <scan:MaxHeight>3507</scan:MaxHeight>
      <scan:SettingProfiles>
        <scan:SettingProfile>
          <scan:ColorModes><scan:ColorMode>RGB24</scan:ColorMode><scan:ColorMode>Grayscale8</scan:ColorMode></scan:ColorModes>
          <scan:DocumentFormats><pwg:DocumentFormat>image/jpeg</pwg:DocumentFormat></scan:DocumentFormats>
          <scan:DiscreteResolutions>
            <scan:DiscreteResolution><scan:XResolution>150</scan:XResolution><scan:YResolution>150</scan:YResolution></scan:DiscreteResolution>
            <scan:DiscreteResolution><scan:XResolution>300</scan:XResolution><scan:YResolution>300</scan:YResolution></scan:DiscreteResolution>
            <scan:DiscreteResolution><scan:XResolution>600</scan:XResolution><scan:YResolution>600</scan:YResolution></scan:DiscreteResolution>
          </scan:DiscreteResolutions>
        </scan:SettingProfile>
      </scan:SettingProfiles>
    </scan:PlatenInputCaps>
  </scan:Platen>
</scan:ScannerCapabilities>`

func newHandler(t *testing.T, srv *httptest.Server) *Handler {
	t.Helper()
	r := reactor.New()
	t.Cleanup(r.Stop)
	c := httpclient.New(r)
	base, err := uri.Parse(srv.URL+"/eSCL", false)
	require.NoError(t, err)
	return New(c, base)
}

func TestDevcapsDecodesDiscreteResolutions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/eSCL/ScannerCapabilities", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprintf(w, capabilitiesXML, "Generic Scanner")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	caps, err := h.Devcaps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{150, 300, 600}, caps.Resolutions)
	assert.Contains(t, caps.Formats, "image/jpeg")
	assert.ElementsMatch(t, caps.ColorModes, []scanproto.ColorMode{scanproto.ColorModeColor, scanproto.ColorModeGray})
}

func TestCanonClampsResolutions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/eSCL/ScannerCapabilities", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, capabilitiesXML, "Canon iR2625/2630")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	caps, err := h.Devcaps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{150, 300}, caps.Resolutions)
}

// TestS1HappyPathPlaten exercises the full scan job lifecycle the
// way spec.md's S1 scenario describes: capabilities -> start -> load
// -> cleanup, platen source, one JPEG page.
func TestS1HappyPathPlaten(t *testing.T) {
	var deleted atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/eSCL/ScannerCapabilities", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, capabilitiesXML, "Generic Scanner")
	})
	mux.HandleFunc("/eSCL/ScanJobs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		w.Header().Set("Location", "http://"+r.Host+"/eSCL/ScanJobs/abc")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/eSCL/ScanJobs/abc/NextDocument", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	})
	mux.HandleFunc("/eSCL/ScanJobs/abc", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DELETE", r.Method)
		deleted.Store(true)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	ctx := context.Background()

	_, err := h.Devcaps(ctx)
	require.NoError(t, err)

	jobRef, status, err := h.StartJob(ctx, scanproto.ScanParams{
		Source: scanproto.SourcePlaten, ColorMode: scanproto.ColorModeColor,
		Resolution: 300, Format: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, scanproto.StatusProcessing, status)
	require.NotEmpty(t, jobRef)

	body, format, err := h.LoadPage(ctx, jobRef)
	require.NoError(t, err)
	assert.Equal(t, imagedecode.FormatJPEG, format)
	assert.NotEmpty(t, body)

	require.NoError(t, h.Cleanup(ctx, jobRef))
	assert.True(t, deleted.Load())
}

// TestS2LocalhostRedirectQuirk mirrors spec.md's S2 scenario: an HP
// device advertises its job Location at "localhost", which must be
// rewritten back to the address actually dialed before LoadPage.
func TestS2LocalhostRedirectQuirk(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/eSCL/ScannerCapabilities", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, capabilitiesXML, "HP LaserJet MFP M630")
	})
	mux.HandleFunc("/eSCL/ScanJobs", func(w http.ResponseWriter, r *http.Request) {
		host, _, _ := splitHost(r.Host)
		require.Equal(t, "localhost", host)
		w.Header().Set("Location", "http://localhost:8080/eSCL/ScanJobs/xyz")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/eSCL/ScanJobs/xyz/NextDocument", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	ctx := context.Background()
	_, err := h.Devcaps(ctx)
	require.NoError(t, err)

	jobRef, _, err := h.StartJob(ctx, scanproto.ScanParams{Source: scanproto.SourcePlaten, Resolution: 300})
	require.NoError(t, err)

	body, _, err := h.LoadPage(ctx, jobRef)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

// TestS4ADFEmptyReportsNoDocs mirrors spec.md's S4 scenario end to end
// through pkg/scanjob: source=AdfSimplex, NextDocument returns HTTP
// 404 on the very first load (no page ever delivered), and
// ScannerStatus reports scan:AdfState=ScannerAdfEmpty. Expected:
// StatusNoDocs, with a DELETE issued against the job during cleanup.
func TestS4ADFEmptyReportsNoDocs(t *testing.T) {
	var deleted atomic.Bool
	const scannerStatusXML = `<scan:ScannerStatus xmlns:scan="http://schemas.hp.com/imaging/escl/2011/05/03" xmlns:pwg="http://www.pwg.org/schemas/2010/12/sm">
  <pwg:State>Idle</pwg:State>
  <scan:AdfState>ScannerAdfEmpty</scan:AdfState>
</scan:ScannerStatus>`

	mux := http.NewServeMux()
	mux.HandleFunc("/eSCL/ScannerCapabilities", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, capabilitiesXML, "Generic ADF Scanner")
	})
	mux.HandleFunc("/eSCL/ScanJobs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		w.Header().Set("Location", "http://"+r.Host+"/eSCL/ScanJobs/adf1")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/eSCL/ScanJobs/adf1/NextDocument", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/eSCL/ScannerStatus", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, scannerStatusXML)
	})
	mux.HandleFunc("/eSCL/ScanJobs/adf1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DELETE", r.Method)
		deleted.Store(true)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	d := scanjob.New("fake-adf-device", h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Start(ctx, scanproto.ScanParams{Source: scanproto.SourceADFSimplex, Resolution: 300}))

	st, _ := d.Wait(ctx)
	assert.Equal(t, scanjob.StatusNoDocs, st)
	assert.True(t, deleted.Load())
}

func splitHost(hostport string) (string, string, error) {
	for i := len(hostport) - 1; i >= 0; i-- {
		if hostport[i] == ':' {
			return hostport[:i], hostport[i+1:], nil
		}
	}
	return hostport, "", nil
}

// TestS3RetriesOn503 mirrors spec.md's S3 scenario: NextDocument
// returns 503 a few times, then 200 with a JPEG.
func TestS3RetriesOn503(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/eSCL/ScanJobs/abc/NextDocument", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	h.location = mustParse(t, srv.URL+"/eSCL/ScanJobs/abc")

	body, _, err := h.LoadPage(context.Background(), srv.URL+"/eSCL/ScanJobs/abc")
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.Equal(t, int32(4), attempts.Load())
}

func mustParse(t *testing.T, s string) *uri.URI {
	t.Helper()
	u, err := uri.Parse(s, false)
	require.NoError(t, err)
	return u
}

// TestS5RedirectRewritesMethodToGet mirrors spec.md's S5 scenario at
// the httpclient layer that escl's StartJob rides on: a POST that
// gets redirected 303 is followed with GET.
func TestS5RedirectRewritesMethodToGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/eSCL/ScanJobs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		http.Redirect(w, r, "/eSCL/ScanJobs/new", http.StatusSeeOther)
	})
	mux.HandleFunc("/eSCL/ScanJobs/new", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET", r.Method)
		w.Header().Set("Location", "/eSCL/ScanJobs/new")
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	jobRef, _, err := h.StartJob(context.Background(), scanproto.ScanParams{Source: scanproto.SourcePlaten, Resolution: 300})
	require.NoError(t, err)
	assert.Contains(t, jobRef, "/eSCL/ScanJobs/new")
}
