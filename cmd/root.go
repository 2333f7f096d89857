package cmd

import (
	"os"

	"github.com/localscan/scanhost/internal/core/config"
	"github.com/spf13/cobra"
)

var (
	magenta = "\x1b[35m"
	reset   = "\033[0m"
)

// scanhostdFlags collects every global flag registered on the root
// command, shared by every subcommand's RunE through config.LoadForMode.
var scanhostdFlags = &config.Flags{}

func init() {
	if os.Getenv("NO_COLOR") != "" {
		magenta, reset = "", ""
	}
}

// NewRootCommand builds the scanhostd root command with every global
// config flag registered, but no subcommands attached; callers that want
// the full CLI call AddCommands afterward (Execute does this for the
// compiled binary).
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "scanhostd",
		Short: "Driverless eSCL/WS-Scan network scanner host.",
		Long: `About
scanhostd discovers network scanners over mDNS and WS-Discovery, drives
them over their native eSCL or WS-Scan wire protocol, and decodes the
pages they return, without a vendor driver.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	config.RegisterGlobalConfigFlags(root, scanhostdFlags)
	return root
}

// AddCommands attaches every scanhostd subcommand to root.
func AddCommands(root *cobra.Command) {
	root.AddCommand(NewListCommand())
	root.AddCommand(NewScanCommand())
}

// Execute is the entrypoint for the CLI application.
func Execute() {
	root := NewRootCommand()
	AddCommands(root)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
