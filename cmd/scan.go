package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/localscan/scanhost/internal/core"
	"github.com/localscan/scanhost/internal/core/config"
	"github.com/localscan/scanhost/pkg/discovery"
	"github.com/localscan/scanhost/pkg/httpclient"
	"github.com/localscan/scanhost/pkg/reactor"
	"github.com/localscan/scanhost/pkg/scanjob"
	"github.com/localscan/scanhost/pkg/scanproto"
	"github.com/localscan/scanhost/pkg/scanproto/escl"
	"github.com/localscan/scanhost/pkg/scanproto/wsd"
	"github.com/localscan/scanhost/pkg/uri"
	"github.com/spf13/cobra"
)

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <name>",
		Short: "Scan a document from a discovered scanner",
		Long: `Discover scanners, open the one matching <name> (its ident or
advertised network name), drive one scan job to completion and write
the decoded page data to a file.` + magenta + `

Examples:` + reset + `
  scanhostd scan "Canon TR8500 series"
  scanhostd scan urn:uuid:4509a320-00a0-008f-00b6-002507510eca --out scan.raw
`,
		Args: cobra.ExactArgs(1),
		RunE: runScan,
	}

	cmd.Flags().String("out", "", "output file for decoded page data (default: <device ident>.raw, with '/', ':' and spaces replaced by '_')")
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]

	cfg, err := config.LoadForMode(config.ModeCLI, scanhostdFlags)
	if err != nil {
		return err
	}

	agg, err := core.BuildAggregator(cfg, discovery.NoOpLogger{})
	if err != nil {
		return err
	}

	scanCtx, cancel := context.WithTimeout(ctx, cfg.DiscoverySettle)
	agg.Start(scanCtx)
	devices, err := agg.ListDevices(scanCtx)
	cancel()
	agg.Stop()
	// As in runList, a settle-deadline error from ListDevices just means
	// discovery ran its full window, not that it failed.
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	dev := findDevice(devices, name)
	if dev == nil {
		return fmt.Errorf("scanhostd: no device matching %q", name)
	}

	handler, err := buildHandler(dev)
	if err != nil {
		return err
	}

	job := scanjob.New(dev.Ident(), handler)

	caps, err := job.Devcaps(ctx)
	if err != nil {
		return fmt.Errorf("scanhostd: devcaps: %w", err)
	}

	params, err := defaultScanParams(caps)
	if err != nil {
		return err
	}

	scanJobCtx, cancelJob := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancelJob()

	if err := job.Start(scanJobCtx, params); err != nil {
		return fmt.Errorf("scanhostd: start job: %w", err)
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = sanitizeFilename(dev.Ident()) + ".raw"
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("scanhostd: create output: %w", err)
	}
	defer f.Close()

	n, readErr := drainJob(job, f)
	status, waitErr := job.Wait(scanJobCtx)

	fmt.Fprintf(cmd.OutOrStdout(), "status: %s, %d bytes written to %s\n", status, n, out)

	if readErr != nil && !errors.Is(readErr, scanjob.ErrEOF) {
		return fmt.Errorf("scanhostd: read: %w", readErr)
	}
	return waitErr
}

// findDevice matches name against a device's Ident (exact) or Name
// (case-insensitive substring), the two host-facing identities spec §4.9
// describes for the "scanhostd scan <name>" operation.
func findDevice(devices []*discovery.Device, name string) *discovery.Device {
	for _, d := range devices {
		if d.Ident() == name {
			return d
		}
	}
	lower := strings.ToLower(name)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name()), lower) {
			return d
		}
	}
	return nil
}

// buildHandler picks the device's eSCL endpoint over WS-Scan when both are
// advertised, matching pkg/discovery's endpoint ordering (escl sorts before
// wsd), and wires a fresh reactor/httpclient pair to it.
func buildHandler(dev *discovery.Device) (scanproto.Handler, error) {
	endpoints := dev.Endpoints()
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("scanhostd: device %s advertises no scan endpoints", dev.Ident())
	}

	ep := endpoints[0]
	for _, e := range endpoints {
		if e.Protocol == "escl" {
			ep = e
			break
		}
	}

	base, err := uri.Parse(ep.URI, false)
	if err != nil {
		return nil, fmt.Errorf("scanhostd: parse endpoint %s: %w", ep.URI, err)
	}

	r := reactor.New()
	client := httpclient.New(r)

	switch ep.Protocol {
	case "wsd":
		return wsd.New(client, base), nil
	default:
		return escl.New(client, base), nil
	}
}

// defaultScanParams picks the first source (platen when none is listed),
// color mode (color when none is listed), resolution and format a device's
// capability document advertises.
func defaultScanParams(caps *scanproto.Devcaps) (scanproto.ScanParams, error) {
	if len(caps.Resolutions) == 0 {
		return scanproto.ScanParams{}, errors.New("scanhostd: device advertises no resolutions")
	}
	if len(caps.Formats) == 0 {
		return scanproto.ScanParams{}, errors.New("scanhostd: device advertises no formats")
	}

	source := scanproto.SourcePlaten
	if len(caps.Sources) > 0 {
		source = caps.Sources[0]
	}

	colorMode := scanproto.ColorModeColor
	if len(caps.ColorModes) > 0 {
		colorMode = caps.ColorModes[0]
	}

	return scanproto.ScanParams{
		Source:     source,
		ColorMode:  colorMode,
		Resolution: caps.Resolutions[0],
		Format:     caps.Formats[0],
	}, nil
}

// drainJob streams every decoded page scanjob.Device.Read produces to w,
// stopping at scanjob.ErrEOF (clean end of job) or any other read error.
func drainJob(job *scanjob.Device, w io.Writer) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := job.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
	}
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}
