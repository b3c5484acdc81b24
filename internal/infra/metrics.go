package infra

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	opsMu           sync.RWMutex
	ops             map[string]*opCounters
	eventsJournaled atomic.Uint64
	latches         atomic.Uint64
	errorsTotal     atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

type opCounters struct {
	success atomic.Uint64
	failure atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordOp records one lifecycle operation outcome with its latency.
func (m *Metrics) RecordOp(op string, ok bool, latencyNs int64) {
	c := m.counters(op)
	if ok {
		c.success.Add(1)
	} else {
		c.failure.Add(1)
		m.errorsTotal.Add(1)
	}
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

func (m *Metrics) counters(op string) *opCounters {
	m.opsMu.RLock()
	c, ok := m.ops[op]
	m.opsMu.RUnlock()
	if ok {
		return c
	}

	m.opsMu.Lock()
	defer m.opsMu.Unlock()
	if m.ops == nil {
		m.ops = make(map[string]*opCounters)
	}
	if c, ok = m.ops[op]; !ok {
		c = &opCounters{}
		m.ops[op] = c
	}
	return c
}

// RecordEventJournaled counts an event appended to the journal.
func (m *Metrics) RecordEventJournaled() {
	m.eventsJournaled.Add(1)
}

// RecordLatch counts a market moved to Resolving by a late bet.
func (m *Metrics) RecordLatch() {
	m.latches.Add(1)
}

// RecordError records an error outside the operation path (journal, transport).
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// OpSnapshot counts the outcomes of one operation.
type OpSnapshot struct {
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Ops               map[string]OpSnapshot `json:"ops"`
	EventsJournaled   uint64                `json:"events_journaled"`
	Latches           uint64                `json:"latches"`
	ErrorsTotal       uint64                `json:"errors_total"`
	AvgLatencyNs      int64                 `json:"avg_latency_ns"`
	ActiveConnections int32                 `json:"active_connections"`
	Timestamp         time.Time             `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	m.opsMu.RLock()
	ops := make(map[string]OpSnapshot, len(m.ops))
	for name, c := range m.ops {
		ops[name] = OpSnapshot{Success: c.success.Load(), Failure: c.failure.Load()}
	}
	m.opsMu.RUnlock()

	return MetricsSnapshot{
		Ops:               ops,
		EventsJournaled:   m.eventsJournaled.Load(),
		Latches:           m.latches.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.opsMu.Lock()
	m.ops = nil
	m.opsMu.Unlock()
	m.eventsJournaled.Store(0)
	m.latches.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}
