// Package pool implements the slab-allocated, address-stable order pool
// described in spec.md §3/§4.1, ported from
// original_source/include/order_pool.h and
// original_source/src/order_pool.cpp, generalized from the teacher's fixed
// MAX_ORDERS array (_examples/ejyy-femto_go/exchange.go) to append-only
// slabs with a free list and an open-addressed, tombstoned id lookup.
package pool

import (
	"github.com/lattice-markets/matchcore/internal/telemetry"
	"github.com/lattice-markets/matchcore/internal/types"
)

// NodeTag distinguishes a level's sentinel from a live resting order, per
// spec.md §3 ("node tag ∈ {Sentinel, Order}").
type NodeTag uint8

const (
	NodeSentinel NodeTag = iota
	NodeOrder
)

// Order is pool-owned and address-stable for its lifetime: once Allocate
// returns a pointer, that pointer stays valid (and is never moved) until
// Deallocate is called for the same order id, because slabs are
// append-only and never reallocated.
//
// Prev/Next/LevelRef are exported so internal/book — which owns the
// intrusive FIFO these fields participate in — can splice orders in and
// out of a level's cyclic list. LevelRef holds the owning *book.Level as
// an opaque value to avoid an import cycle between pool and book; book
// type-asserts it back.
type Order struct {
	OrderID           types.OrderID
	Quantity          types.Volume
	QuantityRemaining types.Volume
	AccountID         types.AccountID
	Side              types.Side
	OrderType         types.OrderType
	Tag               NodeTag

	Prev, Next *Order
	LevelRef   any
}

// entryState is the tri-state discriminant for a lookup slot, the Go
// equivalent of the original's EMPTY/TOMBSTONE sentinel order-id values —
// implemented as an explicit state rather than overloading order id 0,
// since 0 is a legitimate caller-supplied id.
type entryState uint8

const (
	stateEmpty entryState = iota
	stateTombstone
	stateOccupied
)

type mapEntry struct {
	orderID types.OrderID
	poolIdx uint32
	state   entryState
}

// DefaultSlabBits is the teacher/spec default slab size exponent (2^22
// entries per slab, spec.md §3). Tests and small deployments may use a
// smaller exponent via NewWithSlabBits.
const DefaultSlabBits = 22

const initialTableBits = 4 // 16 slots

// Pool is the slab allocator + free list + open-addressed lookup table.
// It is single-threaded: only the matching goroutine ever calls its
// methods (spec.md §5).
type Pool struct {
	slabBits uint
	slabSize uint32

	slabs     [][]Order
	nextIndex uint32
	free      []uint32

	table      []mapEntry
	tableMask  uint64
	occupied   uint64
	tombstoned uint64

	sink telemetry.Sink
}

// New builds a Pool using the spec default slab size.
func New(sink telemetry.Sink) *Pool {
	return NewWithSlabBits(sink, DefaultSlabBits)
}

// NewWithSlabBits builds a Pool whose slabs each hold 2^slabBits orders.
func NewWithSlabBits(sink telemetry.Sink, slabBits uint) *Pool {
	return &Pool{
		slabBits: slabBits,
		slabSize: 1 << slabBits,
		table:    make([]mapEntry, 1<<initialTableBits),
		tableMask: (1 << initialTableBits) - 1,
		sink:      sink,
	}
}

func hash64(id types.OrderID) uint64 {
	// splitmix64 avalanche — fast, deterministic, good bit dispersion for
	// the monotonically-increasing ids the matching core typically sees.
	x := uint64(id)
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// lookup probes the table for orderID. If found, it returns the entry
// index and true. Otherwise it returns the best slot to insert into (the
// first tombstone seen, or else the terminating empty slot) and false.
func (p *Pool) lookup(orderID types.OrderID) (idx int, found bool) {
	mask := p.tableMask
	start := hash64(orderID) & mask
	i := start
	insertAt := int(-1)

	for {
		e := &p.table[i]
		switch e.state {
		case stateEmpty:
			if insertAt >= 0 {
				return insertAt, false
			}
			return int(i), false
		case stateTombstone:
			if insertAt < 0 {
				insertAt = int(i)
			}
		case stateOccupied:
			if e.orderID == orderID {
				return int(i), true
			}
		}

		i = (i + 1) & mask
		if i == start {
			// Full wrap: table saturated with no empty slot. Only possible
			// if resizing failed to keep load under 50%.
			if insertAt >= 0 {
				return insertAt, false
			}
			return -1, false
		}
	}
}

func (p *Pool) loadFactorExceeded() bool {
	return (p.occupied+p.tombstoned)*2 > uint64(len(p.table))
}

// resizeMap doubles the table capacity and rehashes every live entry,
// discarding tombstones, per spec.md §4.1.
func (p *Pool) resizeMap() {
	old := p.table
	newCap := uint64(len(old)) << 1
	p.table = make([]mapEntry, newCap)
	p.tableMask = newCap - 1
	p.tombstoned = 0

	for _, e := range old {
		if e.state != stateOccupied {
			continue
		}
		idx := hash64(e.orderID) & p.tableMask
		for p.table[idx].state == stateOccupied {
			idx = (idx + 1) & p.tableMask
		}
		p.table[idx] = mapEntry{orderID: e.orderID, poolIdx: e.poolIdx, state: stateOccupied}
	}
}

func (p *Pool) slot(poolIdx uint32) *Order {
	slabIdx := poolIdx >> p.slabBits
	offset := poolIdx & (p.slabSize - 1)
	return &p.slabs[slabIdx][offset]
}

func (p *Pool) growSlabIfNeeded() {
	if p.nextIndex%p.slabSize == 0 {
		p.slabs = append(p.slabs, make([]Order, p.slabSize))
	}
}

// Allocate installs a new live order for orderID, returning its
// stable-address pointer. If orderID already has a live entry, that
// existing pointer is returned unchanged (idempotent re-allocate, spec's
// adopted answer to the "re-adding a live order id" open question).
// Returns nil only if the table is saturated with no reusable slot
// (AllocationFull); the sink's error counter is incremented in that case.
func (p *Pool) Allocate(orderID types.OrderID, quantity types.Volume, side types.Side, accountID types.AccountID) *Order {
	if p.loadFactorExceeded() {
		p.resizeMap()
	}

	idx, found := p.lookup(orderID)
	if idx < 0 {
		p.sink.RecordError()
		return nil
	}
	if found {
		return p.slot(p.table[idx].poolIdx)
	}

	var poolIdx uint32
	reused := false
	if n := len(p.free); n > 0 {
		poolIdx = p.free[n-1]
		p.free = p.free[:n-1]
		reused = true
	} else {
		p.growSlabIfNeeded()
		poolIdx = p.nextIndex
		p.nextIndex++
	}

	order := p.slot(poolIdx)
	*order = Order{
		OrderID:           orderID,
		Quantity:          quantity,
		QuantityRemaining: quantity,
		AccountID:         accountID,
		Side:              side,
		OrderType:         types.Limit,
		Tag:               NodeOrder,
	}

	wasTombstone := p.table[idx].state == stateTombstone
	if wasTombstone {
		p.tombstoned--
	}
	p.table[idx] = mapEntry{orderID: orderID, poolIdx: poolIdx, state: stateOccupied}
	p.occupied++

	p.sink.RecordAlloc(reused)
	return order
}

// Find returns the live order's address, or nil if no live entry exists
// for orderID.
func (p *Pool) Find(orderID types.OrderID) *Order {
	idx, found := p.lookup(orderID)
	if !found {
		return nil
	}
	return p.slot(p.table[idx].poolIdx)
}

// Deallocate marks orderID's lookup entry as a tombstone and returns its
// slab slot to the free list. No-op if orderID has no live entry.
func (p *Pool) Deallocate(orderID types.OrderID) {
	idx, found := p.lookup(orderID)
	if !found {
		return
	}
	poolIdx := p.table[idx].poolIdx
	p.table[idx] = mapEntry{state: stateTombstone}
	p.occupied--
	p.tombstoned++
	p.free = append(p.free, poolIdx)
}

// FindAndDeallocate returns the order's address before deallocating it —
// callers must stop dereferencing it immediately, since the slot may be
// reused by the very next Allocate call.
func (p *Pool) FindAndDeallocate(orderID types.OrderID) *Order {
	order := p.Find(orderID)
	if order == nil {
		return nil
	}
	p.Deallocate(orderID)
	return order
}
