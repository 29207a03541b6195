package bridge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/deneb/vm"
)

// ---------------------------------------------------------------------------
// Monitor: periodic health sweep over open states
// ---------------------------------------------------------------------------

// MonitorStats holds statistics from a single sweep.
type MonitorStats struct {
	States           int
	LiveRefs         int
	QueuedFinalizers int
	SweepDuration    time.Duration
	Timestamp        time.Time
}

// Monitor periodically surveys every open state and logs reference and
// finalizer-queue totals. Its job is catching reference leaks in
// long-running embedders (servers, REPLs, IDE sessions) before they
// matter.
type Monitor struct {
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	sweepCount atomic.Uint64
	lastStats  atomic.Value // *MonitorStats

	trackMu  sync.Mutex
	prevRefs map[string]int
}

// DefaultMonitorInterval is the default sweep interval.
const DefaultMonitorInterval = 30 * time.Second

// NewMonitor creates a Monitor with the given sweep interval. Use
// DefaultMonitorInterval for the default (30s).
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	m := &Monitor{
		interval: interval,
		prevRefs: make(map[string]int),
	}
	m.enabled.Store(true)
	return m
}

// Start begins the periodic sweep goroutine. It is safe to call Start
// multiple times; only one sweep loop will run.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		return // already running
	}

	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})

	// Capture channels locally so the goroutine does not read m.stop
	// and m.stopped after Stop() has nilled them out.
	stopCh := m.stop
	stoppedCh := m.stopped
	go m.loop(stopCh, stoppedCh)
}

// Stop halts the periodic sweep goroutine and waits for it to finish.
// It is safe to call Stop multiple times or on a Monitor that was
// never started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh := m.stop
	stoppedCh := m.stopped
	m.stop = nil
	m.stopped = nil
	m.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled enables or disables sweeping. When disabled, the
// goroutine still runs but skips sweep operations.
func (m *Monitor) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// IsEnabled returns whether sweeping is currently enabled.
func (m *Monitor) IsEnabled() bool {
	return m.enabled.Load()
}

// Interval returns the current sweep interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// SweepCount returns the total number of sweeps performed.
func (m *Monitor) SweepCount() uint64 {
	return m.sweepCount.Load()
}

// LastStats returns statistics from the most recent sweep, or nil if
// no sweep has been performed yet.
func (m *Monitor) LastStats() *MonitorStats {
	v := m.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*MonitorStats)
}

// SweepNow performs an immediate sweep regardless of the timer.
// This is useful for testing and manual checks.
func (m *Monitor) SweepNow() *MonitorStats {
	return m.sweep()
}

// loop is the monitor goroutine that periodically invokes sweep.
// stopCh and stoppedCh are captured copies of m.stop and m.stopped to
// avoid reading struct fields that may be nilled by Stop().
func (m *Monitor) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if m.enabled.Load() {
				m.sweep()
			}
		}
	}
}

// sweep performs one pass over every open state, totalling live
// references and queued finalizers and warning about states whose
// reference count keeps growing. Only synchronized counters are read;
// stack contents belong to the owning goroutine.
func (m *Monitor) sweep() *MonitorStats {
	start := time.Now()
	stats := &MonitorStats{Timestamp: start}

	m.trackMu.Lock()
	seen := make(map[string]bool, len(m.prevRefs))
	vm.EachState(func(s *vm.State) bool {
		refs := s.LiveRefs()
		queued := s.GC(vm.GCPending, 0)
		stats.States++
		stats.LiveRefs += refs
		stats.QueuedFinalizers += queued

		id := s.ID()
		seen[id] = true
		if prev, ok := m.prevRefs[id]; ok && refs > prev {
			log.Warningf("state %s live references grew from %d to %d", id, prev, refs)
		}
		m.prevRefs[id] = refs
		return true
	})
	for id := range m.prevRefs {
		if !seen[id] {
			delete(m.prevRefs, id)
		}
	}
	m.trackMu.Unlock()

	stats.SweepDuration = time.Since(start)
	m.sweepCount.Add(1)
	m.lastStats.Store(stats)

	log.Debugf("sweep %d: %d states, %d live references, %d queued finalizers in %s",
		m.sweepCount.Load(), stats.States, stats.LiveRefs, stats.QueuedFinalizers, stats.SweepDuration)
	return stats
}
