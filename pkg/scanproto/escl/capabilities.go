package escl

import (
	"bytes"
	"fmt"

	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/xmldoc"
)

// decodeCapabilities parses a ScannerCapabilities document into a
// protocol-neutral Devcaps plus the device's raw MakeAndModel string
// (needed by the caller to resolve vendor quirks).
func decodeCapabilities(body []byte) (*scanproto.Devcaps, string, error) {
	r := xmldoc.NewReader(bytes.NewReader(body), NsMap)

	caps := &scanproto.Devcaps{}
	var makeAndModel string
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
		case r.Match("pwg:MakeAndModel"):
			text, err := r.Text()
			if err != nil {
				return nil, "", fmt.Errorf("read MakeAndModel: %w", err)
			}
			makeAndModel = text

		case r.Match("scan:Platen"):
			caps.Sources = appendSource(caps.Sources, scanproto.SourcePlaten)

		case r.Match("scan:ADF") || r.Match("scan:Adf"):
			caps.HasADF = true
			caps.Sources = appendSource(caps.Sources, scanproto.SourceADFSimplex)

		case r.Match("scan:DuplexADF") || r.Match("scan:ADFDuplex"):
			caps.ADFDuplex = true
			caps.Sources = appendSource(caps.Sources, scanproto.SourceADFDuplex)

		case r.Match("scan:ColorMode"):
			text, err := r.Text()
			if err != nil {
				return nil, "", fmt.Errorf("read ColorMode: %w", err)
			}
			if cm, ok := decodeColorMode(text); ok {
				caps.ColorModes = appendColorMode(caps.ColorModes, cm)
			}

		case r.Match("scan:DiscreteResolution"):
			// DiscreteResolution wraps XResolution/YResolution children;
			// we only need X for the scanproto crosswalk (devices that
			// support asymmetric X/Y advertise X as the primary axis).
		case r.Match("scan:XResolution"):
			text, err := r.Text()
			if err != nil {
				return nil, "", fmt.Errorf("read XResolution: %w", err)
			}
			v, err := xmldoc.ValueUint(text)
			if err != nil {
				continue // tolerate a garbled resolution rather than fail the whole document
			}
			resSet[int(v)] = struct{}{}

		case r.Match("scan:ResolutionStep"):
			text, err := r.Text()
			if err != nil {
				continue
			}
			v, err := xmldoc.ValueUint(text)
			if err == nil && v == 1 {
				// The step value is read and discarded: resolution
				// ranges are not decoded, so Devcaps.Resolutions holds
				// only the discrete XResolution values.
				_ = v
			}

		case r.Match("pwg:DocumentFormat") || r.Match("scan:DocumentFormatExt"):
			text, err := r.Text()
			if err != nil {
				return nil, "", fmt.Errorf("read DocumentFormat: %w", err)
			}
			caps.Formats = appendFormat(caps.Formats, text)
		}
	}

	rs := make([]int, 0, len(resSet))
	for r := range resSet {
		rs = append(rs, r)
	}
	caps.Resolutions = scanproto.SortResolutions(rs)
	if len(caps.Sources) == 0 {
		caps.Sources = []scanproto.Source{scanproto.SourcePlaten}
	}

	return caps, makeAndModel, nil
}

func decodeColorMode(s string) (scanproto.ColorMode, bool) {
	switch s {
	case "RGB24":
		return scanproto.ColorModeColor, true
	case "Grayscale8":
		return scanproto.ColorModeGray, true
	case "BlackAndWhite1":
		return scanproto.ColorModeMono, true
	default:
		return 0, false
	}
}

func appendSource(s []scanproto.Source, v scanproto.Source) []scanproto.Source {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}

func appendColorMode(s []scanproto.ColorMode, v scanproto.ColorMode) []scanproto.ColorMode {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}

func appendFormat(s []string, v string) []string {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}
