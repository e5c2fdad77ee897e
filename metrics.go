package defauth

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricRegistrationSuccess MetricID = iota
	MetricRegistrationPendingReview
	MetricRegistrationRejected
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricMFARequired
	MetricMFASuccess
	MetricMFAFailure
	MetricMFAExpired
	MetricMFAMethodRejected
	MetricOTPIssued
	MetricOTPResent
	MetricOTPResendThrottled
	MetricRecoveryCodeUsed
	MetricRecoveryCodeFailed
	MetricRecoveryCodesRegenerated
	MetricEmailVerificationIssued
	MetricEmailVerificationResent
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricSessionIssued
	MetricNotifyFailure
	metricIDCount
)

const cacheLineSize = 64

// paddedCounter keeps each counter on its own cache line so concurrent
// increments on different IDs do not contend.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's in-process counters. All methods are safe for
// concurrent use and are no-ops on a nil or disabled receiver.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics returns a Metrics sized for every MetricID.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter into a map.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
