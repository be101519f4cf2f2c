package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter slot.
type MetricID uint16

const (
	MetricValidateSuccess MetricID = iota
	MetricValidateRejected
	MetricCacheHit
	MetricCacheMiss
	MetricTokenBlacklistHit
	MetricUserBlacklistHit
	MetricTrustRejected
	MetricReplayDetected
	MetricConsumeSuccess
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricAccessIssued
	MetricRefreshIssued
	MetricServiceIssued
	MetricTokenBlacklisted
	MetricUserBlacklisted
	MetricStoreUnavailable
	MetricIDTokenAccepted
	MetricIDTokenRejected
	MetricValidateLatency
	MetricIDCount
)

const (
	HistogramBucketCount = 8
	cacheLineSize        = 64
)

type histogram struct {
	buckets [HistogramBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config toggles collection.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Metrics holds lock-free counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	histograms    [MetricIDCount]histogram
}

// Snapshot is a point-in-time copy of every counter and histogram.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the latency histogram of id. Only
// MetricValidateLatency carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[BucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, HistogramBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

// BucketIndex maps d onto the upper bounds 1ms, 2ms, 5ms, 10ms, 25ms, 50ms,
// 100ms and +Inf. Validation is expected to finish well under 100ms.
func BucketIndex(d time.Duration) int {
	switch {
	case d <= time.Millisecond:
		return 0
	case d <= 2*time.Millisecond:
		return 1
	case d <= 5*time.Millisecond:
		return 2
	case d <= 10*time.Millisecond:
		return 3
	case d <= 25*time.Millisecond:
		return 4
	case d <= 50*time.Millisecond:
		return 5
	case d <= 100*time.Millisecond:
		return 6
	default:
		return 7
	}
}
