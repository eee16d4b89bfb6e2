// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Counter registry for engine telemetry. Sessions report through the
// api.StatsRecorder side; monitoring reads snapshots.

package control

import (
	"sync"
	"time"
)

// Metrics is a concurrent counter map with dynamic registration: the
// first Add of a name creates the counter.
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	updated  time.Time
}

// NewMetrics creates an empty registry.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int64)}
}

// Add implements api.StatsRecorder.
func (m *Metrics) Add(name string, delta int64) {
	m.mu.Lock()
	m.counters[name] += delta
	m.updated = time.Now()
	m.mu.Unlock()
}

// Get returns one counter value, zero when it never fired.
func (m *Metrics) Get(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

// UpdatedAt returns the time of the last counter change.
func (m *Metrics) UpdatedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updated
}
