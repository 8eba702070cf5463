// Package book implements the single-instrument limit order book: two
// price-ordered level vectors plus the matching algorithms, ported from
// original_source/src/orderbook.cpp (Orderbook::addOrder/matchLimitOrder/
// matchMarketOrder/removeOrder/findBidPos/findAskPos/getBestPrices) and
// generalized from _examples/ejyy-femto_go/exchange.go's matchLevel/
// addToBook/unlink.
package book

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lattice-markets/matchcore/internal/pool"
	"github.com/lattice-markets/matchcore/internal/telemetry"
	"github.com/lattice-markets/matchcore/internal/types"
)

// Book holds the resting order book for one instrument. bids is ascending
// by price, asks is descending by price; in both vectors the best price
// sits at the back so eviction of an exhausted level is an O(1) pop_back
// (spec.md §4.2).
type Book struct {
	bids []*Level
	asks []*Level

	pool *pool.Pool
	sink telemetry.Sink
}

// New builds an empty Book backed by a production-sized order pool.
func New(sink telemetry.Sink) *Book {
	return &Book{pool: pool.New(sink), sink: sink}
}

// NewWithPool builds a Book over a caller-supplied pool, mainly so tests can
// use a small-slab pool without allocating the production 2^22-entry slab.
func NewWithPool(p *pool.Pool, sink telemetry.Sink) *Book {
	return &Book{pool: p, sink: sink}
}

func (b *Book) sideLevels(side types.Side) *[]*Level {
	if side == types.Bid {
		return &b.bids
	}
	return &b.asks
}

func (b *Book) opposingLevels(side types.Side) *[]*Level {
	if side == types.Bid {
		return &b.asks
	}
	return &b.bids
}

// findPos returns the lower-bound insertion index for price within side's
// level vector, per findBidPos/findAskPos in orderbook.cpp. Bids are kept
// ascending, so the search looks for the first level whose price is >=
// price; asks are kept descending, so it looks for the first level whose
// price is <= price. Either way that is also the correct insertion point
// to keep the vector sorted.
func (b *Book) findPos(side types.Side, price types.Price) int {
	levels := *b.sideLevels(side)
	if side == types.Bid {
		return sort.Search(len(levels), func(i int) bool { return levels[i].Price >= price })
	}
	return sort.Search(len(levels), func(i int) bool { return levels[i].Price <= price })
}

// AddOrder submits a new limit order: it is matched against the resting
// opposite side first (price-time priority), and whatever quantity
// survives the match rests on the book at price. A fully-filled incoming
// order never touches the book at all and its pool slot is released
// immediately (spec.md §4.3, boundary scenario "immediate full cross").
func (b *Book) AddOrder(orderID types.OrderID, price types.Price, quantity types.Volume, side types.Side, accountID types.AccountID) {
	timer := telemetry.StartTimer(b.sink)
	defer timer.Stop()
	b.sink.RecordOrder()

	order := b.pool.Allocate(orderID, quantity, side, accountID)
	if order == nil {
		return // pool saturated; pool.Allocate already recorded the error
	}
	if order.LevelRef != nil {
		return // orderID is already resting: a duplicate add leaves it untouched
	}

	order.QuantityRemaining = b.matchLimitOrder(order, price)

	if order.QuantityRemaining == 0 {
		b.pool.Deallocate(orderID)
		return
	}

	pos := b.findPos(side, price)
	levels := b.sideLevels(side)
	if pos < len(*levels) && (*levels)[pos].Price == price {
		(*levels)[pos].PushBack(order)
		return
	}

	level := newLevel(price)
	level.PushBack(order)
	*levels = insertLevelAt(*levels, pos, level)
}

func insertLevelAt(levels []*Level, pos int, level *Level) []*Level {
	levels = append(levels, nil)
	copy(levels[pos+1:], levels[pos:])
	levels[pos] = level
	return levels
}

// matchLimitOrder walks the opposing side's best levels while the incoming
// limit price still crosses them, consuming resting liquidity FIFO within
// each level. It returns the quantity left unmatched, to either rest on the
// book or be discarded by the caller if fully filled.
func (b *Book) matchLimitOrder(incoming *pool.Order, price types.Price) types.Volume {
	opposing := b.opposingLevels(incoming.Side)
	remaining := incoming.QuantityRemaining
	matched := false

	for remaining > 0 && len(*opposing) > 0 {
		best := (*opposing)[len(*opposing)-1]
		if incoming.Side == types.Bid && price < best.Price {
			break
		}
		if incoming.Side == types.Ask && price > best.Price {
			break
		}

		if !matched {
			matched = true
			b.sink.RecordMatch()
		}
		remaining = b.walkLevel(best, remaining)
		if best.Empty() {
			*opposing = (*opposing)[:len(*opposing)-1]
		}
	}
	return remaining
}

// MatchMarketOrder consumes resting liquidity on the opposite side
// regardless of price, oldest-first within each level, until quantity is
// exhausted or the book side runs dry. It returns the quantity that could
// not be filled (spec.md §4.3, "market buy sweeps two levels").
func (b *Book) MatchMarketOrder(side types.Side, quantity types.Volume) types.Volume {
	timer := telemetry.StartTimer(b.sink)
	defer timer.Stop()

	opposing := b.opposingLevels(side)
	remaining := quantity
	matched := false

	for remaining > 0 && len(*opposing) > 0 {
		best := (*opposing)[len(*opposing)-1]
		if !matched {
			matched = true
			b.sink.RecordMatch()
		}
		remaining = b.walkLevel(best, remaining)
		if best.Empty() {
			*opposing = (*opposing)[:len(*opposing)-1]
		}
	}
	return remaining
}

// walkLevel trades against level's resting orders oldest-first until
// remaining reaches zero or the level empties, deallocating any order it
// fully consumes. Resting orders partially filled stay on the book with
// their QuantityRemaining reduced — conservation of total volume across
// the trade (spec.md §8).
func (b *Book) walkLevel(level *Level, remaining types.Volume) types.Volume {
	resting := level.sentinel.Next
	for remaining > 0 && resting != &level.sentinel {
		traded := min(remaining, resting.QuantityRemaining)
		remaining -= traded
		resting.QuantityRemaining -= traded
		level.Volume -= traded

		next := resting.Next // captured before Pop clears resting's links
		if resting.QuantityRemaining == 0 {
			level.Pop(resting)
			b.pool.Deallocate(resting.OrderID)
		}
		resting = next
	}
	return remaining
}

// RemoveOrder cancels a resting order by id. Cancelling an id with no live
// entry is a stale cancel, not an error (spec.md §8: "cancel of unknown id
// is recorded as a stale cancel and otherwise ignored").
func (b *Book) RemoveOrder(orderID types.OrderID) {
	timer := telemetry.StartTimer(b.sink)
	defer timer.Stop()

	order := b.pool.Find(orderID)
	if order == nil {
		b.sink.RecordStaleCancel()
		return
	}
	b.sink.RecordCancel()

	level, _ := order.LevelRef.(*Level)
	side := order.Side

	level.Pop(order)
	b.pool.Deallocate(orderID)

	if level.Size > 0 {
		return
	}
	b.evictLevel(side, level)
}

func (b *Book) evictLevel(side types.Side, level *Level) {
	levels := b.sideLevels(side)
	for i, l := range *levels {
		if l == level {
			*levels = append((*levels)[:i], (*levels)[i+1:]...)
			return
		}
	}
}

// BestLevel is a read-only snapshot of one side's best resting price.
type BestLevel struct {
	Price  types.Price
	Volume types.Volume
}

// BestBid returns the highest resting bid price and its level volume.
func (b *Book) BestBid() (BestLevel, bool) {
	if len(b.bids) == 0 {
		return BestLevel{}, false
	}
	l := b.bids[len(b.bids)-1]
	return BestLevel{Price: l.Price, Volume: l.Volume}, true
}

// BestAsk returns the lowest resting ask price and its level volume.
func (b *Book) BestAsk() (BestLevel, bool) {
	if len(b.asks) == 0 {
		return BestLevel{}, false
	}
	l := b.asks[len(b.asks)-1]
	return BestLevel{Price: l.Price, Volume: l.Volume}, true
}

// GetBestPrices returns both sides' best levels in one call, mirroring
// Orderbook::getBestPrices in orderbook.cpp.
func (b *Book) GetBestPrices() (bid BestLevel, bidOk bool, ask BestLevel, askOk bool) {
	bid, bidOk = b.BestBid()
	ask, askOk = b.BestAsk()
	return
}

// Bids returns the live bid-side level vector, ascending by price. Callers
// must treat it as read-only; it aliases Book's internal state.
func (b *Book) Bids() []*Level { return b.bids }

// Asks returns the live ask-side level vector, descending by price. Callers
// must treat it as read-only; it aliases Book's internal state.
func (b *Book) Asks() []*Level { return b.asks }

// TotalBidVolume sums resting volume across every bid level.
func (b *Book) TotalBidVolume() types.Volume {
	var total types.Volume
	for _, l := range b.bids {
		total += l.Volume
	}
	return total
}

// TotalAskVolume sums resting volume across every ask level.
func (b *Book) TotalAskVolume() types.Volume {
	var total types.Volume
	for _, l := range b.asks {
		total += l.Volume
	}
	return total
}

// ActiveLevels returns the number of distinct resting price levels across
// both sides.
func (b *Book) ActiveLevels() int {
	return len(b.bids) + len(b.asks)
}

// RestingOrders returns the total number of resting orders across both
// sides.
func (b *Book) RestingOrders() int {
	var n int
	for _, l := range b.bids {
		n += int(l.Size)
	}
	for _, l := range b.asks {
		n += int(l.Size)
	}
	return n
}

// String renders a human-readable depth dump, best price first on each
// side, mirroring Orderbook::toString in orderbook.cpp.
func (b *Book) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "asks (%d levels):\n", len(b.asks))
	for i := len(b.asks) - 1; i >= 0; i-- {
		l := b.asks[i]
		fmt.Fprintf(&sb, "  %d @ %d (%d orders)\n", l.Volume, l.Price, l.Size)
	}
	fmt.Fprintf(&sb, "bids (%d levels):\n", len(b.bids))
	for i := len(b.bids) - 1; i >= 0; i-- {
		l := b.bids[i]
		fmt.Fprintf(&sb, "  %d @ %d (%d orders)\n", l.Volume, l.Price, l.Size)
	}
	return sb.String()
}
