package escl

import (
	"bytes"
	"strconv"

	"github.com/localscan/scanhost/pkg/httpmsg"
	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/xmldoc"
)

const scanSettingsContentType = "text/xml"

// buildScanSettings renders a scan:ScanSettings document for params,
// including pwg:ScanRegions, pwg:InputSource, scan:ColorMode, both
// pwg:DocumentFormat and scan:DocumentFormatExt, X/Y resolutions, and
// scan:Duplex when scanning from the ADF's duplex source.
func buildScanSettings(params scanproto.ScanParams, caps *scanproto.Devcaps) *httpmsg.Data {
	var buf bytes.Buffer
	w := xmldoc.NewWriter(&buf, NsMap, "  ")
	root := w.Root("scan", "ScanSettings")

	root.Child("pwg", "Version").Text("2.0").End()

	region := root.Child("pwg", "ScanRegions")
	regionEl := region.Child("pwg", "ScanRegion")
	// Region is in hundredths of an inch; eSCL regions are in
	// three-hundredths of an inch.
	x, y, width, height := params.Region.X*3, params.Region.Y*3, params.Region.Width*3, params.Region.Height*3
	if width == 0 {
		width = maxWidthFallback(caps)
	}
	if height == 0 {
		height = maxHeightFallback(caps)
	}
	regionEl.Child("pwg", "Height").Text(strconv.Itoa(height)).End()
	regionEl.Child("pwg", "Width").Text(strconv.Itoa(width)).End()
	regionEl.Child("pwg", "XOffset").Text(strconv.Itoa(x)).End()
	regionEl.Child("pwg", "YOffset").Text(strconv.Itoa(y)).End()
	regionEl.End()
	region.End()

	root.Child("pwg", "InputSource").Text(encodeInputSource(params.Source)).End()
	root.Child("scan", "ColorMode").Text(encodeColorMode(params.ColorMode)).End()

	if params.Format != "" {
		root.Child("pwg", "DocumentFormat").Text(params.Format).End()
		root.Child("scan", "DocumentFormatExt").Text(params.Format).End()
	}

	root.Child("scan", "XResolution").Text(strconv.Itoa(params.Resolution)).End()
	root.Child("scan", "YResolution").Text(strconv.Itoa(params.Resolution)).End()

	if params.Source == scanproto.SourceADFDuplex {
		root.Child("scan", "Duplex").Text("true").End()
	}

	root.End()
	_ = w.Close()

	return httpmsg.NewData(scanSettingsContentType, buf.Bytes())
}

// maxWidthFallback/maxHeightFallback stand in for a full MaxWidth/
// MaxHeight crosswalk from capabilities; devcaps in this project only
// tracks the fields the state machine actually branches on, so a full
// scan area defaults to a generous fixed size rather than an unparsed
// field.
func maxWidthFallback(c *scanproto.Devcaps) int  { return 2550 }
func maxHeightFallback(c *scanproto.Devcaps) int { return 3507 }

func encodeInputSource(s scanproto.Source) string {
	switch s {
	case scanproto.SourceADFSimplex, scanproto.SourceADFDuplex:
		return "Feeder"
	default:
		return "Platen"
	}
}

func encodeColorMode(c scanproto.ColorMode) string {
	switch c {
	case scanproto.ColorModeGray:
		return "Grayscale8"
	case scanproto.ColorModeMono:
		return "BlackAndWhite1"
	default:
		return "RGB24"
	}
}

