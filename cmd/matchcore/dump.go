package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lattice-markets/matchcore/internal/book"
	"github.com/lattice-markets/matchcore/internal/pool"
	"github.com/lattice-markets/matchcore/internal/telemetry"
	"github.com/lattice-markets/matchcore/internal/types"
)

// newDumpCmd runs a small scripted scenario through an in-process book and
// prints its resting-depth dump, useful for eyeballing price-time priority
// and partial-fill behavior without standing up a server.
func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Run a small scripted scenario and print the resulting book depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			tel := telemetry.New()
			b := book.NewWithPool(pool.New(tel), tel)

			b.AddOrder(1, 99, 10, types.Bid, 1)
			b.AddOrder(2, 98, 5, types.Bid, 1)
			b.AddOrder(3, 101, 8, types.Ask, 2)
			b.AddOrder(4, 102, 4, types.Ask, 2)
			b.AddOrder(5, 101, 3, types.Bid, 3) // crosses order 3, leaves it resting with 5

			fmt.Print(b.String())
			return nil
		},
	}
}
