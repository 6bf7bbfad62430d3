package compilepool

import (
	"sync"
	"time"

	"github.com/relicforge/resourceserver/internal/resource"
)

// Metrics tracks aggregate compile outcomes, grounded on the teacher's
// job worker pool metrics (per-type counters plus min/max/avg
// duration), generalized from job type to terminal request status.
type Metrics struct {
	mu sync.RWMutex

	counts        map[resource.Status]int64
	totalDuration map[resource.Status]time.Duration
	minDuration   map[resource.Status]time.Duration
	maxDuration   map[resource.Status]time.Duration

	spawnFailures int64
	joinFailures  int64
}

// NewMetrics returns an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		counts:        make(map[resource.Status]int64),
		totalDuration: make(map[resource.Status]time.Duration),
		minDuration:   make(map[resource.Status]time.Duration),
		maxDuration:   make(map[resource.Status]time.Duration),
	}
}

// Record logs one completed compilation's terminal status and
// duration.
func (m *Metrics) Record(status resource.Status, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[status]++

	m.totalDuration[status] += duration
	if min, ok := m.minDuration[status]; !ok || duration < min {
		m.minDuration[status] = duration
	}
	if max, ok := m.maxDuration[status]; !ok || duration > max {
		m.maxDuration[status] = duration
	}
}

// RecordSpawnFailure increments the spawn-failure counter.
func (m *Metrics) RecordSpawnFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spawnFailures++
}

// RecordJoinFailure increments the join-failure counter.
func (m *Metrics) RecordJoinFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinFailures++
}

// Snapshot is a point-in-time, read-only view of the pool's metrics.
type Snapshot struct {
	Counts        map[resource.Status]int64
	AvgDuration   map[resource.Status]time.Duration
	MinDuration   map[resource.Status]time.Duration
	MaxDuration   map[resource.Status]time.Duration
	SpawnFailures int64
	JoinFailures  int64
}

// Snapshot returns a copy of the current metrics suitable for
// rendering on the admin HTTP surface.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Counts:        make(map[resource.Status]int64, len(m.counts)),
		AvgDuration:   make(map[resource.Status]time.Duration, len(m.counts)),
		MinDuration:   make(map[resource.Status]time.Duration, len(m.minDuration)),
		MaxDuration:   make(map[resource.Status]time.Duration, len(m.maxDuration)),
		SpawnFailures: m.spawnFailures,
		JoinFailures:  m.joinFailures,
	}

	for status, count := range m.counts {
		snap.Counts[status] = count
		if count > 0 {
			snap.AvgDuration[status] = m.totalDuration[status] / time.Duration(count)
		}
		snap.MinDuration[status] = m.minDuration[status]
		snap.MaxDuration[status] = m.maxDuration[status]
	}

	return snap
}
