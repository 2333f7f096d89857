package wsd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localscan/scanhost/pkg/httpclient"
	"github.com/localscan/scanhost/pkg/imagedecode"
	"github.com/localscan/scanhost/pkg/reactor"
	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/uri"
)

func newHandler(t *testing.T, srv *httptest.Server) *Handler {
	t.Helper()
	r := reactor.New()
	t.Cleanup(r.Stop)
	c := httpclient.New(r)
	base, err := uri.Parse(srv.URL+"/WSDScanner", false)
	require.NoError(t, err)
	return New(c, base)
}

const scannerConfigurationXML = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:wscn="http://schemas.microsoft.com/windows/2006/08/wdp/scan">
  <s:Body>
    <wscn:ScannerConfiguration>
      <wscn:DeviceSettings>
        <wscn:PlatenSupported>true</wscn:PlatenSupported>
        <wscn:ADFSupported>true</wscn:ADFSupported>
        <wscn:ADFDuplexSupported>false</wscn:ADFDuplexSupported>
      </wscn:DeviceSettings>
      <wscn:ColorEntry>RGBColor</wscn:ColorEntry>
      <wscn:ColorEntry>Grayscale</wscn:ColorEntry>
      <wscn:FormatValue>jfif</wscn:FormatValue>
      <wscn:FormatValue>png</wscn:FormatValue>
    </wscn:ScannerConfiguration>
  </s:Body>
</s:Envelope>`

func TestDevcapsDecodesSourcesAndFormats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/WSDScanner", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/soap+xml")
		_, _ = io.WriteString(w, scannerConfigurationXML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	caps, err := h.Devcaps(context.Background())
	require.NoError(t, err)
	assert.Contains(t, caps.Sources, scanproto.SourcePlaten)
	assert.True(t, caps.HasADF)
	assert.Contains(t, caps.Formats, "image/jpeg")
	assert.Contains(t, caps.Formats, "image/png")
	assert.ElementsMatch(t, caps.ColorModes, []scanproto.ColorMode{scanproto.ColorModeColor, scanproto.ColorModeGray})
}

const scannerStatusIdleXML = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:wscn="http://schemas.microsoft.com/windows/2006/08/wdp/scan">
  <s:Body><wscn:ScannerStatus><wscn:ScannerState>Idle</wscn:ScannerState></wscn:ScannerStatus></s:Body>
</s:Envelope>`

func TestPrecheckDecodesIdle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/WSDScanner", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, scannerStatusIdleXML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	st, err := h.Precheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scanproto.StatusIdle, st)
}

func TestStartJobAndLoadPageRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/WSDScanner", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case bytesContains(body, "CreateScanJobRequest"):
			fmt.Fprint(w, `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:wscn="http://schemas.microsoft.com/windows/2006/08/wdp/scan"><s:Body><wscn:CreateScanJobResponse><wscn:JobId>42</wscn:JobId></wscn:CreateScanJobResponse></s:Body></s:Envelope>`)
		case bytesContains(body, "RetrieveImageRequest"):
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
		case bytesContains(body, "CancelJobRequest"):
			fmt.Fprint(w, `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body/></s:Envelope>`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHandler(t, srv)
	ctx := context.Background()

	jobRef, status, err := h.StartJob(ctx, scanproto.ScanParams{
		Source: scanproto.SourcePlaten, ColorMode: scanproto.ColorModeColor,
		Resolution: 300, Format: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", jobRef)
	assert.Equal(t, scanproto.StatusProcessing, status)

	body, format, err := h.LoadPage(ctx, jobRef)
	require.NoError(t, err)
	assert.Equal(t, imagedecode.FormatJPEG, format)
	assert.NotEmpty(t, body)

	require.NoError(t, h.Cancel(ctx, jobRef))
}

func bytesContains(b []byte, s string) bool {
	return strings.Contains(string(b), s)
}
