package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/localscan/scanhost/pkg/discovery"
)

var _ Formatter = (*JSONFormatter)(nil)

// JSONFormatter implements Formatter for JSON output.
type JSONFormatter struct {
	pretty bool
}

func NewJSONFormatter(pretty bool) *JSONFormatter {
	return &JSONFormatter{pretty: pretty}
}

// deviceSnapshot is the JSON-serializable projection of a discovery.Device:
// Device itself exposes only thread-safe getters, not exported fields.
type deviceSnapshot struct {
	Ident     string               `json:"ident"`
	UUID      string               `json:"uuid,omitempty"`
	Name      string               `json:"name,omitempty"`
	Model     string               `json:"model,omitempty"`
	Methods   []string             `json:"methods"`
	Addrs     []string             `json:"addrs"`
	Endpoints []discovery.Endpoint `json:"endpoints"`
	FirstSeen time.Time            `json:"first_seen"`
	LastSeen  time.Time            `json:"last_seen"`
}

func snapshot(d *discovery.Device) deviceSnapshot {
	methods := d.Methods()
	methodNames := make([]string, len(methods))
	for i, m := range methods {
		methodNames[i] = m.String()
	}

	addrs := d.Addrs()
	addrStrs := make([]string, len(addrs))
	for i, a := range addrs {
		addrStrs[i] = a.String()
	}

	return deviceSnapshot{
		Ident:     d.Ident(),
		UUID:      d.UUID(),
		Name:      d.Name(),
		Model:     d.Model(),
		Methods:   methodNames,
		Addrs:     addrStrs,
		Endpoints: d.Endpoints(),
		FirstSeen: d.FirstSeen(),
		LastSeen:  d.LastSeen(),
	}
}

type listResult struct {
	Devices []deviceSnapshot `json:"devices"`
	Elapsed string           `json:"elapsed"`
}

func (f *JSONFormatter) Format(w io.Writer, devices []*discovery.Device, elapsed time.Duration) error {
	out := listResult{
		Devices: make([]deviceSnapshot, len(devices)),
		Elapsed: elapsed.String(),
	}
	for i, d := range devices {
		out.Devices[i] = snapshot(d)
	}

	encoder := json.NewEncoder(w)
	if f.pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(out)
}
