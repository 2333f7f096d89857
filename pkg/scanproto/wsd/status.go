package wsd

import (
	"bytes"

	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/xmldoc"
)

// decodeScannerState parses a GetScannerElementsResponse carrying a
// wscn:ScannerStatus element, mapping wscn:ScannerState the way escl's
// decodeScannerStatus maps pwg:State, since both vocabularies describe
// the same underlying device lifecycle.
func decodeScannerState(body []byte) (scanproto.Status, error) {
	r := xmldoc.NewReader(bytes.NewReader(body), NsMap)

	status := scanproto.StatusIdle
	for {
		_, isStart, err := r.Next()
		if err != nil {
			break
		}
		if !isStart {
			continue
		}
		if r.Match("wscn:ScannerState") {
			text, err := r.Text()
			if err != nil {
				return scanproto.StatusDown, err
			}
			status = decodeScannerStateValue(text)
		}
		if r.Match("wscn:ScannerCondition") {
			// A condition element present at all signals an abnormal
			// state (paper jam, cover open, etc); treat its mere
			// presence as aborted since WS-Scan doesn't give a simple
			// enum the way eSCL's AdfState does.
			_ = r.Skip()
			if status == scanproto.StatusIdle {
				status = scanproto.StatusJobAborted
			}
		}
	}
	return status, nil
}

func decodeScannerStateValue(s string) scanproto.Status {
	switch s {
	case "Idle":
		return scanproto.StatusIdle
	case "Processing":
		return scanproto.StatusProcessing
	case "Stopped":
		return scanproto.StatusStopped
	default:
		return scanproto.StatusDown
	}
}
