package cmd

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/localscan/scanhost/internal/core"
	"github.com/localscan/scanhost/internal/core/config"
	"github.com/localscan/scanhost/internal/core/output"
	"github.com/localscan/scanhost/pkg/discovery"
	"github.com/spf13/cobra"
)

func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover scanners on the network and print them",
		Long: `Run discovery (mDNS, WS-Discovery and any configured hints) for one
settle period and print every scanner found.` + magenta + `

Examples:` + reset + `
  scanhostd list
  scanhostd list --json
  scanhostd list --wsd=false
`,
		RunE: runList,
	}

	cmd.Flags().Bool("json", false, "print devices as JSON instead of a table")
	cmd.Flags().String("sort", "ident", "sort order: ident or addr")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.LoadForMode(config.ModeCLI, scanhostdFlags)
	if err != nil {
		return err
	}

	agg, err := core.BuildAggregator(cfg, discovery.NoOpLogger{})
	if err != nil {
		return err
	}

	scanCtx, cancel := context.WithTimeout(ctx, cfg.DiscoverySettle)
	defer cancel()

	agg.Start(scanCtx)
	defer agg.Stop()

	spinner := output.NewSpinner(os.Stdout, "Discovering scanners...", cfg.DiscoverySettle)
	spinner.Start()

	start := time.Now()
	devices, err := agg.ListDevices(scanCtx)
	elapsed := time.Since(start)
	spinner.Stop()
	// ListDevices returns the devices announced so far alongside
	// scanCtx.Err() once the settle deadline fires; that is the expected
	// way a discovery pass ends, not a failure.
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	format := output.FormatTable
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		format = output.FormatJSON
	}

	opts := []output.Option{}
	if sortBy, _ := cmd.Flags().GetString("sort"); sortBy == "addr" {
		opts = append(opts, output.WithSort(output.SortByAddr))
	}

	return output.PrintDevices(os.Stdout, devices, elapsed, format, opts...)
}
