package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lattice-markets/matchcore/internal/book"
	"github.com/lattice-markets/matchcore/internal/pool"
	"github.com/lattice-markets/matchcore/internal/telemetry"
	"github.com/lattice-markets/matchcore/internal/types"
)

// xorshiftRand is the fixed-seed generator from
// _examples/ejyy-femto_go/main.go's package-level fastRand, held in a
// per-run struct here so a bench run never depends on mutable package state.
type xorshiftRand struct{ state uint64 }

func (r *xorshiftRand) next() uint32 {
	r.state ^= r.state << 13
	r.state ^= r.state >> 7
	r.state ^= r.state << 17
	return uint32(r.state)
}

// newBenchCmd drives an in-process book.Book with the same synthetic
// 10%-cancel / 90%-new-order workload as the teacher's main.go benchmark
// loop, swapped from its raw multi-symbol Engine onto this engine's single
// instrument book.
func newBenchCmd() *cobra.Command {
	var n int64
	var seed uint64

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic load generator against an in-process book",
		RunE: func(cmd *cobra.Command, args []string) error {
			runBench(n, seed)
			return nil
		},
	}
	cmd.Flags().Int64Var(&n, "orders", 1_000_000, "number of synthetic orders to submit")
	cmd.Flags().Uint64Var(&seed, "seed", 1755956219406641000, "xorshift PRNG seed")
	return cmd
}

func runBench(n int64, seed uint64) {
	tel := telemetry.New()
	b := book.NewWithPool(pool.New(tel), tel)
	rng := &xorshiftRand{state: seed}

	const recentCap = 4096
	recentIDs := make([]types.OrderID, 0, recentCap)
	var nextOrderID types.OrderID

	start := time.Now()
	for i := int64(0); i < n; i++ {
		if rng.next()%10 == 0 && len(recentIDs) > 0 {
			idx := int(rng.next()) % len(recentIDs)
			b.RemoveOrder(recentIDs[idx])
			continue
		}

		nextOrderID++
		price := types.Price(100 + rng.next()%200)
		quantity := types.Volume(rng.next()%1000 + 1)
		side := types.Side(rng.next() % 2)
		account := types.AccountID(rng.next()%1000 + 1)

		b.AddOrder(nextOrderID, price, quantity, side, account)

		recentIDs = append(recentIDs, nextOrderID)
		if len(recentIDs) > recentCap {
			recentIDs = recentIDs[1:]
		}
	}
	elapsed := time.Since(start)

	snap := tel.Snapshot()
	nsPerOp := float64(elapsed.Nanoseconds()) / float64(n)
	fmt.Printf("%d orders processed in %v -> %.1f ns/op\n", n, elapsed, nsPerOp)
	fmt.Printf("matched=%d cancelled=%d stale_cancels=%d errors=%d pool_reuse=%.1f%%\n",
		snap.MatchedOrders, snap.CancelledOrders, snap.StaleCancels, snap.Errors, 100*float64(snap.ReusedAllocs)/maxFloat(float64(snap.TotalAllocs), 1))
	fmt.Printf("avg=%.1fns p50=%dns p90=%dns p99=%dns p999=%dns max=%dns\n",
		snap.AvgLatencyNS, snap.P50NS, snap.P90NS, snap.P99NS, snap.P999NS, snap.MaxLatencyNS)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
