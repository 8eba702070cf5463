package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lattice-markets/matchcore/internal/book"
	"github.com/lattice-markets/matchcore/internal/ingress"
	"github.com/lattice-markets/matchcore/internal/pool"
	"github.com/lattice-markets/matchcore/internal/telemetry"
	"github.com/lattice-markets/matchcore/internal/types"
)

func TestServerAcceptsConnectionAndDispatchesOrder(t *testing.T) {
	tel := telemetry.New()
	b := book.NewWithPool(pool.NewWithSlabBits(tel, 4), tel)

	srv := New("127.0.0.1:0", b, zerolog.Nop())
	// Run binds its own listener; exercise against a fixed loopback port
	// chosen free for the test instead of ":0", since Server.Run doesn't
	// expose the bound address back to the caller.
	srv.addr = "127.0.0.1:18099"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	var conn net.Conn
	var err error
	require.Eventually(t, func() bool {
		conn, err = net.Dial("tcp", "127.0.0.1:18099")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "expected server to start listening")
	defer conn.Close()

	wire := ingress.EncodeNewOrder(ingress.NewOrderFrame{
		OrderID: 1, Price: 100, Quantity: 5, Side: types.Bid, AccountID: 1,
	})
	_, err = conn.Write(wire)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		best, ok := b.BestBid()
		return ok && best.Price == 100 && best.Volume == 5
	}, 2*time.Second, 10*time.Millisecond, "expected order dispatched to book")

	require.Eventually(t, func() bool {
		return srv.IngressLatency().TotalMessages() == 1
	}, 2*time.Second, 10*time.Millisecond, "expected ingress histogram to record the read-to-push latency")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected server to shut down after context cancellation")
	}
}
