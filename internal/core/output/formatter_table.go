package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/localscan/scanhost/pkg/discovery"
)

var _ Formatter = (*TableFormatter)(nil)

// TableFormatter implements Formatter for table output.
type TableFormatter struct{}

func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

func (f *TableFormatter) Format(w io.Writer, devices []*discovery.Device, elapsed time.Duration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "IDENT\tNAME\tMODEL\tMETHODS\tENDPOINTS")
	_, _ = fmt.Fprintln(tw, "─────\t────\t─────\t───────\t─────────")

	for _, d := range devices {
		name := d.Name()
		if name == "" {
			name = "-"
		}
		model := d.Model()
		if model == "" {
			model = "-"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			d.Ident(), name, model, joinMethods(d.Methods()), len(d.Endpoints()))
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d device(s) found in %s\n", len(devices), formatDuration(elapsed))
	return err
}

func joinMethods(methods []discovery.Method) string {
	parts := make([]string, len(methods))
	for i, m := range methods {
		parts[i] = m.String()
	}
	return strings.Join(parts, ",")
}
