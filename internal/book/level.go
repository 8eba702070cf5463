package book

import (
	"github.com/lattice-markets/matchcore/internal/pool"
	"github.com/lattice-markets/matchcore/internal/types"
)

// Level is a FIFO of resting orders sharing one price, implemented as an
// intrusive doubly-linked list with a per-level sentinel node — ported
// from Level::push_back/Level::pop in original_source/src/orderbook.cpp.
// The sentinel is an ordinary *pool.Order whose Tag is NodeSentinel; an
// empty level is exactly the state where the sentinel's Next points back
// to itself.
type Level struct {
	Price  types.Price
	Volume types.Volume
	Size   uint32

	sentinel pool.Order
}

func newLevel(price types.Price) *Level {
	l := &Level{Price: price}
	l.sentinel.Tag = pool.NodeSentinel
	l.sentinel.Next = &l.sentinel
	l.sentinel.Prev = &l.sentinel
	l.sentinel.LevelRef = l
	return l
}

// PushBack inserts order immediately before the sentinel (the FIFO tail),
// O(1), and folds its quantity into the level's running volume/size.
func (l *Level) PushBack(o *pool.Order) {
	o.LevelRef = l
	o.Next = &l.sentinel
	o.Prev = l.sentinel.Prev
	l.sentinel.Prev.Next = o
	l.sentinel.Prev = o

	l.Size++
	l.Volume += o.QuantityRemaining
}

// Pop splices o out of the cyclic list, O(1), clearing its sibling and
// level links and subtracting its *current* QuantityRemaining from the
// level's volume. Callers that decrement QuantityRemaining during a match
// walk must do so before calling Pop, so the subtraction reflects the
// post-trade remainder rather than double-counting (spec.md §9).
func (l *Level) Pop(o *pool.Order) {
	o.Prev.Next = o.Next
	o.Next.Prev = o.Prev
	o.Next = nil
	o.Prev = nil
	o.LevelRef = nil

	l.Size--
	l.Volume -= o.QuantityRemaining
}

// Front returns the oldest resting order, or nil if the level is empty.
func (l *Level) Front() *pool.Order {
	if l.sentinel.Next == &l.sentinel {
		return nil
	}
	return l.sentinel.Next
}

// Empty reports whether the level currently holds no resting orders.
func (l *Level) Empty() bool {
	return l.sentinel.Next == &l.sentinel
}
