// Package telemetry provides the counters and latency instrumentation
// consumed by the matching core, ported from original_source/include/telemetry.h.
// The core only ever calls the Sink methods below — it never logs or
// allocates on the hot path; classification and logging happen upstream
// from a Snapshot.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/btree"
)

// Sink is the collaborator the matching core depends on (spec §6). It must
// be safe for the matching goroutine to call unconditionally; all
// implementations here are lock-free on the hot path.
type Sink interface {
	RecordOrder()
	RecordMatch()
	RecordCancel()
	RecordStaleCancel()
	RecordAlloc(reused bool)
	RecordError()
	RecordLatency(ns int64)
}

// Telemetry implements Sink with atomically-updated relaxed counters, the
// Go equivalent of the original's std::atomic<uint64_t> fields.
type Telemetry struct {
	totalOrders     atomic.Uint64
	matchedOrders   atomic.Uint64
	cancelledOrders atomic.Uint64
	staleCancels    atomic.Uint64
	errors          atomic.Uint64

	totalAllocs  atomic.Uint64
	reusedAllocs atomic.Uint64

	totalLatencyNS atomic.Uint64
	maxLatencyNS   atomic.Uint64

	samples *latencySamples
}

// New builds a Telemetry sink with its percentile sample store ready.
func New() *Telemetry {
	return &Telemetry{samples: newLatencySamples()}
}

func (t *Telemetry) RecordOrder()       { t.totalOrders.Add(1) }
func (t *Telemetry) RecordMatch()       { t.matchedOrders.Add(1) }
func (t *Telemetry) RecordCancel()      { t.cancelledOrders.Add(1) }
func (t *Telemetry) RecordStaleCancel() { t.staleCancels.Add(1) }
func (t *Telemetry) RecordError()       { t.errors.Add(1) }

func (t *Telemetry) RecordAlloc(reused bool) {
	t.totalAllocs.Add(1)
	if reused {
		t.reusedAllocs.Add(1)
	}
}

// RecordLatency records one observation: the running sum/max are updated
// with plain atomics, and the sample is inserted into the ordered sample
// store used for percentile estimation.
func (t *Telemetry) RecordLatency(ns int64) {
	t.totalLatencyNS.Add(uint64(ns))
	for {
		prev := t.maxLatencyNS.Load()
		if uint64(ns) <= prev {
			break
		}
		if t.maxLatencyNS.CompareAndSwap(prev, uint64(ns)) {
			break
		}
	}
	t.samples.add(ns)
}

// AvgLatencyNS returns the mean latency per submitted order in nanoseconds:
// the sum of every recorded latency divided by the RecordOrder count.
func (t *Telemetry) AvgLatencyNS() float64 {
	total := t.totalOrders.Load()
	if total == 0 {
		return 0
	}
	return float64(t.totalLatencyNS.Load()) / float64(total)
}

// ReuseRatio returns the percentage of allocations served from the free
// list rather than a fresh slab slot.
func (t *Telemetry) ReuseRatio() float64 {
	total := t.totalAllocs.Load()
	if total == 0 {
		return 0
	}
	return 100 * float64(t.reusedAllocs.Load()) / float64(total)
}

// Percentile returns the p-th percentile (0..1) of recorded latencies.
func (t *Telemetry) Percentile(p float64) int64 {
	return t.samples.percentile(p)
}

// Snapshot is a point-in-time, pointer-free copy suitable for exporting to
// Prometheus or logging without touching the live counters again.
type Snapshot struct {
	TotalOrders     uint64
	MatchedOrders   uint64
	CancelledOrders uint64
	StaleCancels    uint64
	Errors          uint64
	TotalAllocs     uint64
	ReusedAllocs    uint64
	AvgLatencyNS    float64
	MaxLatencyNS    uint64
	P50NS           int64
	P90NS           int64
	P99NS           int64
	P999NS          int64
}

// Snapshot captures the current counter values and percentile estimates.
func (t *Telemetry) Snapshot() Snapshot {
	return Snapshot{
		TotalOrders:     t.totalOrders.Load(),
		MatchedOrders:   t.matchedOrders.Load(),
		CancelledOrders: t.cancelledOrders.Load(),
		StaleCancels:    t.staleCancels.Load(),
		Errors:          t.errors.Load(),
		TotalAllocs:     t.totalAllocs.Load(),
		ReusedAllocs:    t.reusedAllocs.Load(),
		AvgLatencyNS:    t.AvgLatencyNS(),
		MaxLatencyNS:    t.maxLatencyNS.Load(),
		P50NS:           t.Percentile(0.50),
		P90NS:           t.Percentile(0.90),
		P99NS:           t.Percentile(0.99),
		P999NS:          t.Percentile(0.999),
	}
}

// sample pairs a latency with a monotonic sequence number so that equal
// latencies remain distinguishable entries in the btree (a multiset built
// on a uniquely-keyed tree).
type sample struct {
	ns  int64
	seq uint64
}

func sampleLess(a, b sample) bool {
	if a.ns != b.ns {
		return a.ns < b.ns
	}
	return a.seq < b.seq
}

// latencyChanDepth bounds the channel add() hands samples to before
// flushLoop drains them into the tree. Sized generously relative to
// flushLoop's expected drain rate so the non-blocking send in add() only
// ever hits its default case under pathological backpressure.
const latencyChanDepth = 4096

// latencySamples keeps an ordered multiset of latency observations in a
// btree so Percentile is an in-order scan up to the target rank instead of
// a full sort of every sample on every dump (the original's dump_percentiles sorts the whole
// vector each time it is called). add() is called synchronously from
// RecordLatency on the single matching goroutine (spec.md §5: "no
// operation inside the core blocks, yields, or awaits"), so it never takes
// mu or touches the tree itself — it only hands the sample to a buffered
// channel, a non-blocking send as long as flushLoop is keeping up. A
// background flushLoop goroutine drains that channel into the tree under
// mu, off the hot path entirely. percentile() additionally drains whatever
// is still queued before reading the tree, so a caller querying right
// after a burst of RecordLatency calls (tests, or a shutdown-time
// percentile dump) isn't racing flushLoop's own schedule.
type latencySamples struct {
	mu   sync.Mutex
	seq  uint64
	tree *btree.BTreeG[sample]

	ch chan int64
}

func newLatencySamples() *latencySamples {
	s := &latencySamples{
		tree: btree.NewBTreeG(sampleLess),
		ch:   make(chan int64, latencyChanDepth),
	}
	go s.flushLoop()
	return s
}

func (s *latencySamples) add(ns int64) {
	select {
	case s.ch <- ns:
	default:
		// flushLoop is behind and the channel is saturated: drop this
		// sample rather than block the matching core. Avg/max latency
		// (tracked separately via plain atomics in RecordLatency) are
		// unaffected; only this percentile sample is lost.
	}
}

// flushLoop drains queued samples into the ordered tree, taking mu only
// here — never on the RecordLatency hot path.
func (s *latencySamples) flushLoop() {
	for ns := range s.ch {
		s.insert(ns)
	}
}

func (s *latencySamples) insert(ns int64) {
	s.mu.Lock()
	s.seq++
	s.tree.Set(sample{ns: ns, seq: s.seq})
	s.mu.Unlock()
}

// drainPending pulls any samples still sitting in the channel into the
// tree synchronously, stealing flushLoop's work so percentile() always
// reflects every sample recorded so far.
func (s *latencySamples) drainPending() {
	for {
		select {
		case ns := <-s.ch:
			s.insert(ns)
		default:
			return
		}
	}
}

func (s *latencySamples) percentile(p float64) int64 {
	s.drainPending()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.tree.Len()
	if n == 0 {
		return 0
	}
	target := int(p * float64(n))
	if target >= n {
		target = n - 1
	}

	var result int64
	i := 0
	s.tree.Scan(func(item sample) bool {
		if i == target {
			result = item.ns
			return false
		}
		i++
		return true
	})
	return result
}

// ScopedTimer mirrors the C++ RAII ScopedTimer in telemetry.h: Start begins
// timing, and the returned Stop records the elapsed nanoseconds into the
// sink exactly once. Callers wrap a single book operation per timer, same
// as the original wraps Orderbook::addOrder.
type ScopedTimer struct {
	sink  Sink
	start time.Time
}

// StartTimer begins a latency measurement against sink.
func StartTimer(sink Sink) ScopedTimer {
	return ScopedTimer{sink: sink, start: time.Now()}
}

// Stop records the elapsed time since StartTimer was called.
func (s ScopedTimer) Stop() {
	s.sink.RecordLatency(time.Since(s.start).Nanoseconds())
}
