// Package output formats the discovery aggregator's device list for the
// cmd/scanhostd CLI, mirroring the teacher's table/JSON formatter split.
package output

import (
	"io"
	"sort"
	"time"

	"github.com/localscan/scanhost/pkg/discovery"
)

// Format selects the rendering used by PrintDevices.
type Format int

const (
	FormatTable Format = iota
	FormatJSON
)

const DefaultPretty = false

var DefaultSortFunc = func(a, b *discovery.Device) bool {
	return a.Ident() < b.Ident()
}

// SortByAddr orders devices by their first known address using
// discovery.CompareIPs's numeric (not lexicographic) IPv4 ordering, for
// callers that find a network-order device list more useful than one
// keyed by the (often opaque) discovery ident.
func SortByAddr(a, b *discovery.Device) bool {
	aAddrs, bAddrs := a.Addrs(), b.Addrs()
	if len(aAddrs) == 0 || len(bAddrs) == 0 {
		return len(aAddrs) > len(bAddrs)
	}
	return discovery.CompareIPs(aAddrs[0], bAddrs[0])
}

// Formatter renders a device list to a writer.
type Formatter interface {
	Format(w io.Writer, devices []*discovery.Device, elapsed time.Duration) error
}

// Output handles device list formatting.
type Output struct {
	formatter Formatter
	sortFunc  func(a, b *discovery.Device) bool
	pretty    bool
}

// Option configures an Output.
type Option func(o *Output) error

func WithPretty() Option {
	return func(o *Output) error {
		o.pretty = true
		return nil
	}
}

func WithSort(sortFunc func(a, b *discovery.Device) bool) Option {
	return func(o *Output) error {
		o.sortFunc = sortFunc
		return nil
	}
}

// NewOutput creates a new output handler with the given options.
func NewOutput(format Format, opts ...Option) (*Output, error) {
	o := &Output{
		sortFunc: DefaultSortFunc,
		pretty:   DefaultPretty,
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	var formatter Formatter
	switch format {
	case FormatJSON:
		formatter = NewJSONFormatter(o.pretty)
	default:
		formatter = NewTableFormatter()
	}

	o.formatter = formatter
	return o, nil
}

// PrintDevices prints the aggregator's device list to the writer.
func (o *Output) PrintDevices(w io.Writer, devices []*discovery.Device, elapsed time.Duration) error {
	sorted := make([]*discovery.Device, len(devices))
	copy(sorted, devices)
	sort.Slice(sorted, func(i, j int) bool {
		return o.sortFunc(sorted[i], sorted[j])
	})

	return o.formatter.Format(w, sorted, elapsed)
}

// PrintDevices is a convenience function to print devices with the given format and options.
func PrintDevices(w io.Writer, devices []*discovery.Device, elapsed time.Duration, format Format, opts ...Option) error {
	o, err := NewOutput(format, opts...)
	if err != nil {
		return err
	}
	return o.PrintDevices(w, devices, elapsed)
}

func formatDuration(d time.Duration) string {
	return d.Round(100 * time.Millisecond).String()
}
