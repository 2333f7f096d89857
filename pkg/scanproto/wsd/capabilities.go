package wsd

import (
	"bytes"
	"fmt"

	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/xmldoc"
)

// decodeScannerConfiguration parses a GetScannerElementsResponse
// carrying a wscn:ScannerConfiguration element into a protocol-neutral
// Devcaps, crosswalking WS-Scan's PlatenSupported/ADFSupported flags
// and ColorEntry/FormatValue lists the same way escl's decodeCapabilities
// crosswalks ScannerCapabilities.
func decodeScannerConfiguration(body []byte) (*scanproto.Devcaps, error) {
	r := xmldoc.NewReader(bytes.NewReader(body), NsMap)

	caps := &scanproto.Devcaps{}
	resSet := map[int]struct{}{}

	for {
		_, isStart, err := r.Next()
		if err != nil {
			break
		}
		if !isStart {
			continue
		}

		switch {
		case r.Match("wscn:PlatenSupported"):
			text, err := r.Text()
			if err == nil && text == "true" {
				caps.Sources = append(caps.Sources, scanproto.SourcePlaten)
			}

		case r.Match("wscn:ADFSupported"):
			text, err := r.Text()
			if err == nil && text == "true" {
				caps.HasADF = true
				caps.Sources = append(caps.Sources, scanproto.SourceADFSimplex)
			}

		case r.Match("wscn:ADFDuplexSupported"):
			text, err := r.Text()
			if err == nil && text == "true" {
				caps.ADFDuplex = true
				caps.Sources = append(caps.Sources, scanproto.SourceADFDuplex)
			}

		case r.Match("wscn:ColorEntry"):
			text, err := r.Text()
			if err != nil {
				return nil, fmt.Errorf("wsd: read ColorEntry: %w", err)
			}
			if cm, ok := decodeColorEntry(text); ok {
				caps.ColorModes = appendColorModeWSD(caps.ColorModes, cm)
			}

		case r.Match("wscn:FormatValue"):
			text, err := r.Text()
			if err != nil {
				return nil, fmt.Errorf("wsd: read FormatValue: %w", err)
			}
			caps.Formats = appendFormatWSD(caps.Formats, mimeForFormatValue(text))

		case r.Match("wscn:Width") || r.Match("wscn:Height"):
			// WS-Scan advertises resolutions via ScanResolutionRange
			// children (wscn:Width/wscn:Height of a ResolutionRange, or a
			// discrete ScanResolution list); we only track the values
			// that show up as a direct resolution reading.
			text, err := r.Text()
			if err != nil {
				continue
			}
			v, err := xmldoc.ValueUint(text)
			if err == nil && v > 0 {
				resSet[int(v)] = struct{}{}
			}
		}
	}

	for v := range resSet {
		caps.Resolutions = append(caps.Resolutions, v)
	}
	caps.Resolutions = scanproto.SortResolutions(caps.Resolutions)
	if len(caps.Sources) == 0 {
		caps.Sources = []scanproto.Source{scanproto.SourcePlaten}
	}
	return caps, nil
}

func decodeColorEntry(s string) (scanproto.ColorMode, bool) {
	switch s {
	case "Color", "RGB24", "RGBColor":
		return scanproto.ColorModeColor, true
	case "Grayscale", "Grayscale8":
		return scanproto.ColorModeGray, true
	case "BlackAndWhite1", "Monochrome":
		return scanproto.ColorModeMono, true
	default:
		return 0, false
	}
}

func mimeForFormatValue(s string) string {
	switch s {
	case "jfif", "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tiff", "tiff-single":
		return "image/tiff"
	case "bmp", "dib":
		return "image/bmp"
	default:
		return s
	}
}

func appendColorModeWSD(s []scanproto.ColorMode, v scanproto.ColorMode) []scanproto.ColorMode {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}

func appendFormatWSD(s []string, v string) []string {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}
