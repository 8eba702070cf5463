// Package ingress implements the SPSC ingestion path: a lock-free ring
// buffer feeding commands into the matching core, a binary wire codec for
// decoding them off a socket, and a latency histogram for the ingress
// boundary. Ring is ported from _examples/ejyy-femto_go/ringbuffer.go.
package ingress

import (
	"runtime"
	"sync/atomic"
)

const (
	// DefaultRingSize matches the teacher's RING_SIZE; must stay a power of
	// two so index wrapping can use a bitmask instead of modulo.
	DefaultRingSize = 1 << 16
	cacheLineSize   = 64

	// spinLimit bounds how many times Push/Read re-check the atomic
	// positions before yielding the processor with runtime.Gosched(). The
	// teacher's ringbuffer.go busy-spins unconditionally, which is fine on
	// a benchmark box with a dedicated producer/consumer core each, but
	// internal/server.Matcher calls TryRead from a goroutine that shares a
	// core with the worker pool and metrics exporter — an unconditional
	// spin here would starve them under sustained backpressure.
	spinLimit = 1000
)

// Ring is a lock-free ring buffer supporting a single producer and a single
// consumer (SPSC). Concurrent Push calls, or concurrent Read calls, are
// unsafe; one goroutine must own each end.
type Ring[T any] struct {
	buffer []T
	mask   uint64

	_pad1    [cacheLineSize - 8]byte
	writePos uint64
	_pad2    [cacheLineSize - 8]byte
	readPos  uint64
	_pad3    [cacheLineSize - 8]byte
}

// NewRing allocates a ring buffer of DefaultRingSize elements.
func NewRing[T any]() *Ring[T] {
	return NewRingWithSize[T](DefaultRingSize)
}

// NewRingWithSize allocates a ring buffer of size elements; size must be a
// power of two.
func NewRingWithSize[T any](size uint64) *Ring[T] {
	if size == 0 || size&(size-1) != 0 {
		panic("ingress: ring size must be a power of two")
	}
	return &Ring[T]{
		buffer: make([]T, size),
		mask:   size - 1,
	}
}

// Push adds a single element, busy-waiting if the buffer is full. Spins
// spinLimit times before yielding to the scheduler, rather than spinning
// unconditionally, since a full ring under sustained load means the
// consumer is behind and holding the processor won't change that.
func (r *Ring[T]) Push(v T) {
	spins := 0
	for {
		write := atomic.LoadUint64(&r.writePos)
		read := atomic.LoadUint64(&r.readPos)

		if write-read < uint64(len(r.buffer)) {
			r.buffer[write&r.mask] = v
			atomic.StoreUint64(&r.writePos, write+1)
			return
		}

		spins++
		if spins >= spinLimit {
			runtime.Gosched()
			spins = 0
		}
	}
}

// TryPush adds v without blocking, reporting false if the buffer is full.
func (r *Ring[T]) TryPush(v T) bool {
	write := atomic.LoadUint64(&r.writePos)
	read := atomic.LoadUint64(&r.readPos)

	if write-read >= uint64(len(r.buffer)) {
		return false
	}
	r.buffer[write&r.mask] = v
	atomic.StoreUint64(&r.writePos, write+1)
	return true
}

// Read extracts up to len(out) elements, busy-waiting while the buffer is
// empty, and returns the number of elements actually read (always >= 1).
// Like Push, it yields every spinLimit iterations instead of spinning
// unconditionally — internal/server.Matcher prefers TryRead plus its own
// sleep-on-empty backoff, so Read's spin-then-yield mainly protects
// Push/Read round-trip callers (tests, other future producers) from
// pegging a shared core while waiting on an empty ring.
func (r *Ring[T]) Read(out []T) uint32 {
	spins := 0
	for {
		write := atomic.LoadUint64(&r.writePos)
		read := atomic.LoadUint64(&r.readPos)

		available := write - read
		if available == 0 {
			spins++
			if spins >= spinLimit {
				runtime.Gosched()
				spins = 0
			}
			continue
		}

		count := min(available, uint64(len(out)))
		for i := uint64(0); i < count; i++ {
			out[i] = r.buffer[(read+i)&r.mask]
		}
		atomic.StoreUint64(&r.readPos, read+count)
		return uint32(count)
	}
}

// TryRead extracts up to len(out) elements without blocking, returning 0 if
// the buffer is currently empty.
func (r *Ring[T]) TryRead(out []T) uint32 {
	write := atomic.LoadUint64(&r.writePos)
	read := atomic.LoadUint64(&r.readPos)

	available := write - read
	if available == 0 {
		return 0
	}

	count := min(available, uint64(len(out)))
	for i := uint64(0); i < count; i++ {
		out[i] = r.buffer[(read+i)&r.mask]
	}
	atomic.StoreUint64(&r.readPos, read+count)
	return uint32(count)
}
