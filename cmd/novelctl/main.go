// Command novelctl inspects and exercises saved story documents without
// running the editor.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/xchatlife/novelgraph/internal/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		Bad.Fprintf(os.Stderr, "novelctl: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "novelctl",
		Short:         "Inspect, lay out and play novelgraph story documents",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{ .Version }}\n")
	cmd.AddCommand(
		validateCmd(),
		layoutCmd(),
		playCmd(),
		watchCmd(),
		listCmd(),
	)
	return cmd
}
