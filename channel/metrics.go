package channel

import "sync/atomic"

// MetricsSnapshot is a point-in-time copy of a channel's counters.
type MetricsSnapshot struct {
	Subscriptions int64
	Emits         int64
	Deliveries    int64
}

// Metrics tracks channel activity with lock-free counters.
type Metrics struct {
	subscriptions atomic.Int64
	emits         atomic.Int64
	deliveries    atomic.Int64
}

// NewMetrics returns zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSubscription adjusts the active subscription count by delta.
func (m *Metrics) RecordSubscription(delta int) {
	m.subscriptions.Add(int64(delta))
}

// RecordEmit counts one emit that reached delivered listeners.
func (m *Metrics) RecordEmit(delivered int) {
	m.emits.Add(1)
	m.deliveries.Add(int64(delivered))
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Subscriptions: m.subscriptions.Load(),
		Emits:         m.emits.Load(),
		Deliveries:    m.deliveries.Load(),
	}
}
