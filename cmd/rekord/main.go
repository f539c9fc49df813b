// Command rekord serves and queries the non-conformance report dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rekord/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "devel"

var logFormat string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rekord",
		Short: "Non-conformance report dashboard",
		Long: `rekord reads non-conformance reports from an ODBC (or SQLite) data source
and presents per-year counts as a chart or the filtered records as a table,
either in the browser or in the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.LoadEnvFile()
		},
	}
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text or json)")

	root.AddCommand(
		newServeCmd(),
		newQueryCmd(),
		newOptionsCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
