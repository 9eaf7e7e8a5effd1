// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"sync"
	"time"
)

// RateWindow tracks per-source request counts inside a fixed hourly window.
// Counts reset when the wall-clock hour rolls over, matching the upstream
// directories' published quotas. State is process-local; a multi-instance
// deployment accepts duplicate work (upserts keep it safe).
type RateWindow struct {
	mu     sync.Mutex
	counts map[string]int
	window time.Time
	now    func() time.Time
}

// NewRateWindow returns a fresh rate window using the real clock.
func NewRateWindow() *RateWindow {
	return newRateWindow(time.Now)
}

func newRateWindow(now func() time.Time) *RateWindow {
	return &RateWindow{
		counts: make(map[string]int),
		window: now().Truncate(time.Hour),
		now:    now,
	}
}

// Allow reports whether sourceID may make another request under limit, and
// counts the request if so. A limit of zero or less means unlimited.
func (r *RateWindow) Allow(sourceID string, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	hour := r.now().Truncate(time.Hour)
	if hour.After(r.window) {
		r.counts = make(map[string]int)
		r.window = hour
	}

	if limit > 0 && r.counts[sourceID] >= limit {
		return false
	}
	r.counts[sourceID]++
	return true
}

// Used returns the request count for sourceID in the current window.
func (r *RateWindow) Used(sourceID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[sourceID]
}
