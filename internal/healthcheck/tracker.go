package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest liveness details.
type Snapshot struct {
	LastDockerPing   *time.Time `json:"last_docker_ping"`
	PingDurationMS   int64      `json:"ping_duration_ms"`
	ActiveOperations int        `json:"active_operations"`
	ActiveStreams    int        `json:"active_streams"`
	Connections      int        `json:"connections"`
}

// Tracker records Docker connectivity and live activity for health endpoints.
type Tracker struct {
	mu           sync.RWMutex
	lastPing     time.Time
	pingDuration time.Duration
	activeOps    int
	streams      int
	connections  int
	ready        bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordPing updates Docker connectivity timing and readiness.
func (t *Tracker) RecordPing(duration time.Duration) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastPing = now
	t.pingDuration = duration
	t.ready = true
	t.mu.Unlock()
}

// RecordActivity updates the live activity gauges.
func (t *Tracker) RecordActivity(activeOps, streams, connections int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.activeOps = activeOps
	t.streams = streams
	t.connections = connections
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastPing.IsZero() {
		value := t.lastPing
		last = &value
	}
	return Snapshot{
		LastDockerPing:   last,
		PingDurationMS:   int64(t.pingDuration / time.Millisecond),
		ActiveOperations: t.activeOps,
		ActiveStreams:    t.streams,
		Connections:      t.connections,
	}
}

// Ready reports whether at least one Docker ping has succeeded.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last ping completed within 2x the ping interval.
func (t *Tracker) Healthy(now time.Time, pingInterval time.Duration) bool {
	if t == nil {
		return false
	}
	if pingInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastPing.IsZero() {
		return false
	}
	return now.Sub(t.lastPing) <= 2*pingInterval
}
