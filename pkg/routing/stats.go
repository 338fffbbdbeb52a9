package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks router statistics with atomic counters, lock-free on
// the hot path.
type Stats struct {
	totalRequests atomic.Int64
	cacheHits     atomic.Int64

	// requestsPerBackend tracks decisions per selected backend
	requestsPerBackend sync.Map // map[string]*atomic.Int64

	fallbackCount        atomic.Int64
	approvalFlaggedCount atomic.Int64
	errors               atomic.Int64

	// mu protects lastResetTime
	mu            sync.RWMutex
	lastResetTime time.Time
}

// NewStats creates a router statistics tracker.
func NewStats() *Stats {
	return &Stats{
		lastResetTime: time.Now(),
	}
}

func (s *Stats) recordRequest() {
	s.totalRequests.Add(1)
}

func (s *Stats) recordCacheHit() {
	s.cacheHits.Add(1)
}

func (s *Stats) recordError() {
	s.errors.Add(1)
}

func (s *Stats) recordDecision(d *Decision) {
	val, _ := s.requestsPerBackend.LoadOrStore(d.Backend, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)

	if d.Fallback {
		s.fallbackCount.Add(1)
	}
	if d.ApprovalRequired {
		s.approvalFlaggedCount.Add(1)
	}
}

// Snapshot returns a point-in-time snapshot safe to read without locks.
func (s *Stats) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perBackend := make(map[string]int64)
	s.requestsPerBackend.Range(func(key, value interface{}) bool {
		perBackend[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return &Snapshot{
		TotalRequests:        s.totalRequests.Load(),
		CacheHits:            s.cacheHits.Load(),
		RequestsPerBackend:   perBackend,
		FallbackCount:        s.fallbackCount.Load(),
		ApprovalFlaggedCount: s.approvalFlaggedCount.Load(),
		Errors:               s.errors.Load(),
		LastResetTime:        s.lastResetTime,
	}
}

// Reset resets all statistics to zero.
func (s *Stats) Reset() {
	s.totalRequests.Store(0)
	s.cacheHits.Store(0)
	s.fallbackCount.Store(0)
	s.approvalFlaggedCount.Store(0)
	s.errors.Store(0)

	s.requestsPerBackend.Range(func(key, value interface{}) bool {
		s.requestsPerBackend.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
