// Command matchcore runs, benchmarks, and inspects the single-instrument
// limit order book matching engine. Subcommand layout follows the
// cobra root/subcommand pattern used across the example pack's CLIs
// (e.g. _examples/VictorVVedtion-perp-dex/cmd/perpdexd/cmd/root.go),
// adapted to this engine's three operational modes instead of a
// blockchain node's many.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "matchcore",
		Short: "Single-instrument limit order book matching engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newBenchCmd())
	root.AddCommand(newDumpCmd())
	return root
}
