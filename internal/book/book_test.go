package book

import (
	"testing"

	"github.com/lattice-markets/matchcore/internal/pool"
	"github.com/lattice-markets/matchcore/internal/telemetry"
	"github.com/lattice-markets/matchcore/internal/types"
)

func newTestBook() (*Book, *telemetry.Telemetry) {
	tel := telemetry.New()
	return NewWithPool(pool.NewWithSlabBits(tel, 4), tel), tel
}

// Boundary scenario: empty book, insert a resting bid.
func TestAddOrder_EmptyBookRests(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 10, types.Bid, 1)

	best, ok := b.BestBid()
	if !ok || best.Price != 100 || best.Volume != 10 {
		t.Fatalf("expected resting bid 10@100, got %+v ok=%v", best, ok)
	}
	if b.RestingOrders() != 1 {
		t.Fatalf("expected 1 resting order, got %d", b.RestingOrders())
	}
}

// Boundary scenario: immediate full cross leaves nothing resting on either
// side and deallocates both orders.
func TestAddOrder_ImmediateFullCross(t *testing.T) {
	b, tel := newTestBook()

	b.AddOrder(1, 100, 10, types.Ask, 1)
	b.AddOrder(2, 100, 10, types.Bid, 2)

	if _, ok := b.BestAsk(); ok {
		t.Fatal("expected ask side empty after full cross")
	}
	if _, ok := b.BestBid(); ok {
		t.Fatal("expected bid side empty after full cross")
	}
	if b.RestingOrders() != 0 || b.ActiveLevels() != 0 {
		t.Fatalf("expected nothing resting, got %d orders / %d levels", b.RestingOrders(), b.ActiveLevels())
	}
	if tel.Snapshot().MatchedOrders != 1 {
		t.Fatalf("expected 1 match event, got %d", tel.Snapshot().MatchedOrders)
	}
}

// Boundary scenario: partial cross leaves the remainder resting.
func TestAddOrder_PartialCrossLeavesRemainder(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 10, types.Ask, 1)
	b.AddOrder(2, 100, 6, types.Bid, 2)

	best, ok := b.BestAsk()
	if !ok || best.Price != 100 || best.Volume != 4 {
		t.Fatalf("expected 4@100 remaining on ask side, got %+v ok=%v", best, ok)
	}
	if _, ok := b.BestBid(); ok {
		t.Fatal("expected fully-filled bid to leave nothing resting")
	}
}

// Boundary scenario: price-time priority within one level — earlier order
// at the same price fills first.
func TestAddOrder_PriceTimePriorityWithinLevel(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 5, types.Ask, 1) // resting first
	b.AddOrder(2, 100, 5, types.Ask, 2) // resting second, same price

	b.AddOrder(3, 100, 5, types.Bid, 3) // fills exactly order 1

	if b.pool.Find(1) != nil {
		t.Fatal("expected first-in order fully filled and deallocated")
	}
	if b.pool.Find(2) == nil {
		t.Fatal("expected second order still resting untouched")
	}
	best, ok := b.BestAsk()
	if !ok || best.Volume != 5 {
		t.Fatalf("expected 5 remaining on ask level, got %+v", best)
	}
}

// Boundary scenario: a market buy sweeps two price levels.
func TestMatchMarketOrder_SweepsTwoLevels(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 5, types.Ask, 1)
	b.AddOrder(2, 101, 5, types.Ask, 2)

	remaining := b.MatchMarketOrder(types.Bid, 8)
	if remaining != 0 {
		t.Fatalf("expected full fill, got %d remaining", remaining)
	}

	best, ok := b.BestAsk()
	if !ok || best.Price != 101 || best.Volume != 2 {
		t.Fatalf("expected 2@101 remaining, got %+v ok=%v", best, ok)
	}
}

// Boundary scenario: market order exceeding total resting liquidity
// reports the unfilled remainder and leaves the book empty.
func TestMatchMarketOrder_ExhaustsBookAndReportsRemainder(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 5, types.Ask, 1)

	remaining := b.MatchMarketOrder(types.Bid, 20)
	if remaining != 15 {
		t.Fatalf("expected 15 unfilled, got %d", remaining)
	}
	if _, ok := b.BestAsk(); ok {
		t.Fatal("expected ask side drained")
	}
}

// Boundary scenario: cancelling an unknown id is a stale cancel, not an
// error, and leaves the book untouched.
func TestRemoveOrder_UnknownIDIsStaleCancel(t *testing.T) {
	b, tel := newTestBook()

	b.AddOrder(1, 100, 5, types.Bid, 1)
	b.RemoveOrder(999)

	snap := tel.Snapshot()
	if snap.StaleCancels != 1 {
		t.Fatalf("expected 1 stale cancel, got %d", snap.StaleCancels)
	}
	if snap.Errors != 0 {
		t.Fatalf("expected no errors recorded for stale cancel, got %d", snap.Errors)
	}
	if b.RestingOrders() != 1 {
		t.Fatal("expected untouched resting order to remain")
	}
}

func TestRemoveOrder_LastOrderEvictsLevel(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 5, types.Bid, 1)
	b.RemoveOrder(1)

	if b.ActiveLevels() != 0 {
		t.Fatalf("expected level evicted once empty, got %d levels", b.ActiveLevels())
	}
	if _, ok := b.BestBid(); ok {
		t.Fatal("expected no best bid after eviction")
	}
}

func TestRemoveOrder_IsIdempotentAfterFirstCancel(t *testing.T) {
	b, tel := newTestBook()

	b.AddOrder(1, 100, 5, types.Bid, 1)
	b.RemoveOrder(1)
	b.RemoveOrder(1) // second cancel of the same id must be stale, not a crash

	snap := tel.Snapshot()
	if snap.CancelledOrders != 1 || snap.StaleCancels != 1 {
		t.Fatalf("expected 1 cancel + 1 stale cancel, got %+v", snap)
	}
}

// Bid levels stay ascending and ask levels stay descending, with the best
// price always at the back of each vector, across multiple distinct price
// inserts in non-monotonic order.
func TestLevelOrdering_BidsAscendingAsksDescending(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 5, types.Bid, 1)
	b.AddOrder(2, 90, 5, types.Bid, 1)
	b.AddOrder(3, 110, 5, types.Bid, 1)

	bids := b.Bids()
	for i := 1; i < len(bids); i++ {
		if bids[i].Price < bids[i-1].Price {
			t.Fatalf("bids not ascending: %+v", bids)
		}
	}
	best, _ := b.BestBid()
	if best.Price != 110 {
		t.Fatalf("expected best bid 110 at back of vector, got %d", best.Price)
	}

	b.AddOrder(4, 200, 5, types.Ask, 1)
	b.AddOrder(5, 220, 5, types.Ask, 1)
	b.AddOrder(6, 190, 5, types.Ask, 1)

	asks := b.Asks()
	for i := 1; i < len(asks); i++ {
		if asks[i].Price > asks[i-1].Price {
			t.Fatalf("asks not descending: %+v", asks)
		}
	}
	bestAsk, _ := b.BestAsk()
	if bestAsk.Price != 190 {
		t.Fatalf("expected best ask 190 at back of vector, got %d", bestAsk.Price)
	}
}

// A resting order's pool address must never change across matches and
// partial fills that touch other orders at the same or different levels.
func TestStableAddressAcrossPartialFills(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 10, types.Ask, 1)
	before := b.pool.Find(1)

	b.AddOrder(2, 100, 3, types.Bid, 2) // partial fill of order 1
	after := b.pool.Find(1)

	if before != after {
		t.Fatalf("expected stable address across partial fill, got %p vs %p", before, after)
	}
	if after.QuantityRemaining != 7 {
		t.Fatalf("expected 7 remaining, got %d", after.QuantityRemaining)
	}
}

// Conservation: volume traded out of the resting side equals volume
// consumed from the incoming side, with no double counting of the
// partially-filled resting order's remaining quantity.
func TestConservationOfVolumeAcrossPartialFill(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 10, types.Ask, 1)
	b.AddOrder(2, 100, 4, types.Bid, 2)

	best, ok := b.BestAsk()
	if !ok {
		t.Fatal("expected remaining ask level")
	}
	if best.Volume != 6 {
		t.Fatalf("expected 6 remaining volume (10-4), got %d", best.Volume)
	}
	if b.TotalAskVolume() != 6 {
		t.Fatalf("expected total ask volume 6, got %d", b.TotalAskVolume())
	}
}

// Volume arithmetic must not double count across a walk that touches
// several resting orders in one level: each order's QuantityRemaining is
// decremented before Level.Pop subtracts it, so the level's Volume lands
// exactly on the sum of what is actually left resting.
func TestLevelVolumeNoDoubleCount(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 100, 4, types.Ask, 1)
	b.AddOrder(2, 100, 4, types.Ask, 1)
	b.AddOrder(3, 100, 4, types.Ask, 1)

	// Fully fills order 1 (4) and partially fills order 2 (2 of 4).
	b.AddOrder(4, 100, 6, types.Bid, 2)

	best, ok := b.BestAsk()
	if !ok {
		t.Fatal("expected ask level still resting")
	}
	if best.Volume != 6 {
		t.Fatalf("expected level volume 6 (2 remaining on order 2 + 4 untouched on order 3), got %d", best.Volume)
	}
	if b.pool.Find(1) != nil {
		t.Fatal("expected order 1 fully filled and deallocated")
	}
	order2 := b.pool.Find(2)
	if order2 == nil || order2.QuantityRemaining != 2 {
		t.Fatalf("expected order 2 partially filled to 2 remaining, got %+v", order2)
	}
	order3 := b.pool.Find(3)
	if order3 == nil || order3.QuantityRemaining != 4 {
		t.Fatalf("expected order 3 untouched at 4 remaining, got %+v", order3)
	}
}

func TestNoCrossedBookAtRest(t *testing.T) {
	b, _ := newTestBook()

	b.AddOrder(1, 90, 5, types.Bid, 1)
	b.AddOrder(2, 110, 5, types.Ask, 2)

	bestBid, bidOk := b.BestBid()
	bestAsk, askOk := b.BestAsk()
	if !bidOk || !askOk {
		t.Fatal("expected both sides resting")
	}
	if bestBid.Price >= bestAsk.Price {
		t.Fatalf("book crossed at rest: bid %d >= ask %d", bestBid.Price, bestAsk.Price)
	}
}
