package server

import (
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"github.com/lattice-markets/matchcore/internal/book"
	"github.com/lattice-markets/matchcore/internal/ingress"
)

// Command is a decoded wire frame tagged with the session that sent it,
// queued from connection-handling workers to the single matcher goroutine.
// Exactly one of NewOrder/Cancel/MarketOrder is set; none set means a
// heartbeat with nothing to dispatch.
type Command struct {
	ClientID    string
	NewOrder    *ingress.NewOrderFrame
	Cancel      *ingress.CancelOrderFrame
	MarketOrder *ingress.MarketOrderFrame
}

// matcherIdleBackoff bounds how long the matcher sleeps between empty
// reads of the ingress ring, trading a little latency for not pegging a
// core at 100% while idle — the original's InputDistributor in
// exchange.go busy-spins unconditionally, which is fine for a dedicated
// benchmark box but not for a shared server host.
const matcherIdleBackoff = 50 * time.Microsecond

const matcherBatchSize = 256

// Matcher drains the ingress ring and applies each command to book,
// serializing all book access onto this one goroutine. It is the direct
// generalization of exchange.go's StartInputDistributor.
type Matcher struct {
	book *book.Book
	ring *ingress.Ring[Command]
	log  zerolog.Logger
}

// NewMatcher builds a Matcher over b, consuming commands from ring.
func NewMatcher(b *book.Book, ring *ingress.Ring[Command], logger zerolog.Logger) *Matcher {
	return &Matcher{book: b, ring: ring, log: logger}
}

// Run drains commands until t starts dying.
func (m *Matcher) Run(t *tomb.Tomb) error {
	buf := make([]Command, matcherBatchSize)
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		n := m.ring.TryRead(buf)
		if n == 0 {
			time.Sleep(matcherIdleBackoff)
			continue
		}
		for i := 0; i < int(n); i++ {
			m.dispatch(buf[i])
		}
	}
}

func (m *Matcher) dispatch(cmd Command) {
	switch {
	case cmd.NewOrder != nil:
		f := cmd.NewOrder
		m.book.AddOrder(f.OrderID, f.Price, f.Quantity, f.Side, f.AccountID)
	case cmd.Cancel != nil:
		m.book.RemoveOrder(cmd.Cancel.OrderID)
	case cmd.MarketOrder != nil:
		f := cmd.MarketOrder
		m.book.MatchMarketOrder(f.Side, f.Quantity)
	default:
		m.log.Debug().Str("client", cmd.ClientID).Msg("heartbeat")
	}
}
