package engine

import (
	"sync"
	"time"

	"github.com/rawcarve/rawcarve/session"
)

// Collector accumulates scan counters. Safe for concurrent use; the
// parallel scan path records from several workers.
type Collector struct {
	mu          sync.Mutex
	started     time.Time
	bytes       int64
	chunks      int64
	matchEvents int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector { return &Collector{} }

// RecordChunk records one processed chunk and its match events.
func (c *Collector) RecordChunk(bytes, matches int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started.IsZero() {
		c.started = time.Now()
	}
	c.bytes += int64(bytes)
	c.chunks++
	c.matchEvents += int64(matches)
}

// Snapshot is a point-in-time view of a scan.
type Snapshot struct {
	BytesScanned  int64         `json:"bytes_scanned"`
	Chunks        int64         `json:"chunks"`
	MatchEvents   int64         `json:"match_events"`
	Opened        int64         `json:"sessions_opened"`
	Finalized     int64         `json:"sessions_finalized"`
	Discarded     int64         `json:"sessions_discarded"`
	IgnoredNested int64         `json:"headers_ignored_nested"`
	Duration      time.Duration `json:"duration_ns"`
	ThroughputBPS float64       `json:"throughput_bps"`
}

// Snapshot merges the collector counters with tracker outcome counters.
func (c *Collector) Snapshot(ts session.Stats) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		BytesScanned:  c.bytes,
		Chunks:        c.chunks,
		MatchEvents:   c.matchEvents,
		Opened:        ts.Opened,
		Finalized:     ts.Finalized,
		Discarded:     ts.Discarded,
		IgnoredNested: ts.IgnoredNested,
	}
	if !c.started.IsZero() {
		s.Duration = time.Since(c.started)
		if secs := s.Duration.Seconds(); secs > 0 {
			s.ThroughputBPS = float64(c.bytes) / secs
		}
	}
	return s
}
