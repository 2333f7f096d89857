package wsd

import (
	"bytes"
	"fmt"

	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/xmldoc"
)

// buildScanTicket renders a wscn:ScanTicket for a CreateScanJobRequest,
// the WS-Scan equivalent of escl's ScanSettings document.
func buildScanTicket(params scanproto.ScanParams) []byte {
	var buf bytes.Buffer
	w := xmldoc.NewWriter(&buf, NsMap, "")
	root := w.Root("wscn", "CreateScanJobRequest")

	ticket := root.Child("wscn", "ScanTicket")
	job := ticket.Child("wscn", "JobDescription")
	job.Child("wscn", "JobName").Text("scanhost").End()
	job.Child("wscn", "JobOriginatingUserName").Text("scanhost").End()
	job.End()

	params_ := ticket.Child("wscn", "Parameters")
	params_.Child("wscn", "InputSource").Text(encodeInputSourceWSD(params.Source)).End()

	docParams := params_.Child("wscn", "DocumentParameters")
	docParams.Child("wscn", "Format").Text(encodeFormatValue(params.Format)).End()
	docParams.Child("wscn", "ColorProcessing").Text(encodeColorEntry(params.ColorMode)).End()
	res := docParams.Child("wscn", "InputResolution")
	res.Child("wscn", "Width").Text(itoaWSD(params.Resolution)).End()
	res.Child("wscn", "Height").Text(itoaWSD(params.Resolution)).End()
	res.End()
	if params.Source == scanproto.SourceADFDuplex {
		docParams.Child("wscn", "InputSide").Text("ADFDuplex").End()
	}
	docParams.End()

	params_.End()
	ticket.End()
	root.End()
	_ = w.Close()

	return buf.Bytes()
}

func encodeInputSourceWSD(s scanproto.Source) string {
	switch s {
	case scanproto.SourceADFSimplex, scanproto.SourceADFDuplex:
		return "ADF"
	default:
		return "Platen"
	}
}

func encodeColorEntry(c scanproto.ColorMode) string {
	switch c {
	case scanproto.ColorModeGray:
		return "Grayscale"
	case scanproto.ColorModeMono:
		return "BlackAndWhite1"
	default:
		return "RGBColor"
	}
}

func encodeFormatValue(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/tiff":
		return "tiff-single"
	case "image/bmp":
		return "bmp"
	default:
		return "jfif"
	}
}

func itoaWSD(v int) string {
	return fmt.Sprintf("%d", v)
}

// decodeJobID parses a CreateScanJobResponse, returning its
// wscn:JobId.
func decodeJobID(body []byte) (string, error) {
	r := xmldoc.NewReader(bytes.NewReader(body), NsMap)
	for {
		_, isStart, err := r.Next()
		if err != nil {
			break
		}
		if !isStart {
			continue
		}
		if r.Match("wscn:JobId") {
			text, err := r.Text()
			if err != nil {
				return "", fmt.Errorf("wsd: read JobId: %w", err)
			}
			return text, nil
		}
	}
	return "", fmt.Errorf("wsd: CreateScanJobResponse has no JobId")
}
