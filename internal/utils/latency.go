package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded ring of recent duration samples and computes
// percentiles over them. Used to report recovery latency (MTTR-style) without
// unbounded memory growth.
type LatencyTracker struct {
	mu      sync.RWMutex
	ring    []time.Duration
	next    int
	filled  bool
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, maxSize), maxSize: maxSize}
}

// Observe records a new duration, evicting the oldest sample when full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next++
	if l.next == l.maxSize {
		l.next = 0
		l.filled = true
	}
}

// Count returns the number of samples currently held.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.filled {
		return l.maxSize
	}
	return l.next
}

// Percentile returns the p-th percentile (0-100) duration, zero if empty.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	n := l.maxSize
	if !l.filled {
		n = l.next
	}
	if n == 0 {
		l.mu.RUnlock()
		return 0
	}
	sorted := append([]time.Duration(nil), l.ring[:n]...)
	l.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}

	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}
