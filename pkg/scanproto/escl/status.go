package escl

import (
	"bytes"

	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/xmldoc"
)

// decodeScannerStatus parses a ScannerStatus document, mapping
// pwg:State into {Idle -> GOOD(idle), Processing|Testing -> BUSY,
// other -> unsupported-treated-as-down} and scan:AdfState into
// {Loaded -> GOOD, Jam -> JAMMED, DoorOpen -> COVER_OPEN, Processing|Empty
// -> NO_DOCS, other -> unsupported}. The effective status for an ADF
// source is the ADF state unless it is unsupported or GOOD.
func decodeScannerStatus(body []byte, adfSource bool) (scanproto.Status, error) {
	r := xmldoc.NewReader(bytes.NewReader(body), NsMap)

	state := scanproto.StatusIdle
	haveAdf := false
	adfState := scanproto.StatusIdle

	for {
		_, isStart, err := r.Next()
		if err != nil {
			break
		}
		if !isStart {
			continue
		}
		switch {
		case r.Match("pwg:State"):
			text, err := r.Text()
			if err != nil {
				return scanproto.StatusDown, err
			}
			state = decodeDeviceState(text)

		case r.Match("scan:AdfState"):
			text, err := r.Text()
			if err != nil {
				return scanproto.StatusDown, err
			}
			haveAdf = true
			adfState = decodeAdfState(text)
		}
	}

	if adfSource && haveAdf && adfState != scanproto.StatusIdle {
		return adfState, nil
	}
	return state, nil
}

func decodeDeviceState(s string) scanproto.Status {
	switch s {
	case "Idle":
		return scanproto.StatusIdle
	case "Processing", "Testing":
		return scanproto.StatusProcessing
	default:
		return scanproto.StatusDown
	}
}

func decodeAdfState(s string) scanproto.Status {
	switch s {
	case "Loaded":
		return scanproto.StatusIdle
	case "ScannerAdfJam", "Jam":
		return scanproto.StatusJammed
	case "ScannerAdfDoorOpen", "DoorOpen":
		return scanproto.StatusCoverOpen
	case "ScannerAdfProcessing", "Processing", "ScannerAdfEmpty", "Empty":
		return scanproto.StatusNoDocs
	default:
		return scanproto.StatusIdle
	}
}

// httpStatusFallback maps a non-2xx HTTP response code to a status
// when the decoded body, if any, was inconclusive: 503 -> busy
// (retryable), 404 during ADF load -> no docs, anything else is an
// I/O-class error the caller should surface directly.
func httpStatusFallback(code int, adfLoad bool) (scanproto.Status, bool) {
	switch {
	case code == 503:
		return scanproto.StatusBusy, true
	case code == 404 && adfLoad:
		return scanproto.StatusNoDocs, true
	default:
		return scanproto.StatusDown, false
	}
}

// retryLimit returns the number of 503 retry attempts allowed for the
// operation kind: 30 for page load, 10 for everything else.
func retryLimit(isLoad bool) int {
	if isLoad {
		return 30
	}
	return 10
}
