package ingress

import (
	"sync/atomic"
	"time"
)

// Histogram buckets ingress-to-dispatch latency, ported from
// original_source/include/ingress_telemetry.h's Ingress_Telemetry. It is
// distinct from internal/telemetry's btree-backed percentile samples: this
// one tracks the wire-to-ring boundary specifically, at fixed bin
// granularity rather than exact order statistics.
type Histogram struct {
	totalMsgs      atomic.Uint64
	totalLatencyNS atomic.Uint64
	bins           [HistogramNumBins]atomic.Uint64
}

const (
	HistogramBinWidthNS = 100
	HistogramMaxTrackNS = 10_000_000
	HistogramNumBins    = HistogramMaxTrackNS/HistogramBinWidthNS + 1
)

// NewHistogram returns a zeroed Histogram ready to record.
func NewHistogram() *Histogram {
	return &Histogram{}
}

// RecordLatency buckets one observation of ns nanoseconds, clamping into
// the overflow bin if it exceeds HistogramMaxTrackNS.
func (h *Histogram) RecordLatency(ns uint64) {
	idx := ns / HistogramBinWidthNS
	if idx >= HistogramNumBins {
		idx = HistogramNumBins - 1
	}
	h.bins[idx].Add(1)
	h.totalLatencyNS.Add(ns)
	h.totalMsgs.Add(1)
}

// AvgLatencyNS returns the mean recorded latency in nanoseconds.
func (h *Histogram) AvgLatencyNS() float64 {
	total := h.totalMsgs.Load()
	if total == 0 {
		return 0
	}
	return float64(h.totalLatencyNS.Load()) / float64(total)
}

// TotalMessages returns the number of latencies recorded so far.
func (h *Histogram) TotalMessages() uint64 {
	return h.totalMsgs.Load()
}

// Throughput returns messages-per-second over elapsed, given the message
// count recorded so far.
func (h *Histogram) Throughput(elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs == 0 {
		return 0
	}
	return float64(h.totalMsgs.Load()) / secs
}

// BinCount returns the raw count in bucket idx, mainly for tests and
// diagnostics dumps.
func (h *Histogram) BinCount(idx int) uint64 {
	if idx < 0 || idx >= HistogramNumBins {
		return 0
	}
	return h.bins[idx].Load()
}
