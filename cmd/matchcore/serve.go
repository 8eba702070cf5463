package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lattice-markets/matchcore/internal/book"
	"github.com/lattice-markets/matchcore/internal/config"
	"github.com/lattice-markets/matchcore/internal/metrics"
	"github.com/lattice-markets/matchcore/internal/pool"
	"github.com/lattice-markets/matchcore/internal/server"
	"github.com/lattice-markets/matchcore/internal/telemetry"
)

// newServeCmd runs the TCP server and metrics exporter side by side under a
// signal-cancelled context, the same shutdown shape
// _examples/saiputravu-Exchange/cmd wires its server with, generalized to
// also supervise the Prometheus exporter.
func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the matching engine server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}

			logger := newLogger(cfg.Logging.Level)

			tel := telemetry.New()
			b := book.NewWithPool(pool.NewWithSlabBits(tel, cfg.Pool.SlabBits), tel)

			srv := server.New(cfg.Server.Addr, b, logger)
			exporter := metrics.NewExporter(tel, cfg.Metrics.Addr, time.Duration(cfg.Metrics.IntervalSeconds)*time.Second)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 2)
			go func() { errCh <- srv.Run(ctx) }()
			go func() { errCh <- exporter.Run(ctx) }()

			logger.Info().
				Str("addr", cfg.Server.Addr).
				Str("metricsAddr", cfg.Metrics.Addr).
				Msg("matchcore started")

			<-ctx.Done()
			srv.Shutdown()

			var firstErr error
			for i := 0; i < 2; i++ {
				if err := <-errCh; err != nil && firstErr == nil {
					firstErr = err
				}
			}

			snap := tel.Snapshot()
			logger.Info().
				Int64("p50NS", snap.P50NS).
				Int64("p90NS", snap.P90NS).
				Int64("p99NS", snap.P99NS).
				Int64("p999NS", snap.P999NS).
				Msg("latency percentiles")
			return firstErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "TCP address to listen on (overrides config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on (overrides config)")
	return cmd
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
