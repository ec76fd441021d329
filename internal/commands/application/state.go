package application

import (
	"sync"
	"time"
)

// BridgeState holds the counters the bridge exposes about itself.
type BridgeState struct {
	mu           sync.Mutex
	startedAt    time.Time
	processed    int
	failed       int
	reportErrors int
	decodeSkips  int
	lastCycle    time.Time
	lastCommand  string
}

// StateSnapshot is a copy of BridgeState.
type StateSnapshot struct {
	StartedAt    time.Time
	Processed    int
	Failed       int
	ReportErrors int
	DecodeSkips  int
	LastCycle    time.Time
	LastCommand  string
}

// Uptime returns the time since start at now.
func (s StateSnapshot) Uptime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// NewBridgeState constructs a state started at now.
func NewBridgeState(now time.Time) *BridgeState {
	return &BridgeState{startedAt: now}
}

func (s *BridgeState) recordTerminal(id string, failed bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	if failed {
		s.failed++
	}
	s.lastCommand = id
}

func (s *BridgeState) recordReportError() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.reportErrors++
	s.mu.Unlock()
}

func (s *BridgeState) recordDecodeSkips(count int) {
	if s == nil || count <= 0 {
		return
	}
	s.mu.Lock()
	s.decodeSkips += count
	s.mu.Unlock()
}

func (s *BridgeState) recordCycle(now time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.lastCycle = now
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (s *BridgeState) Snapshot() StateSnapshot {
	if s == nil {
		return StateSnapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		StartedAt:    s.startedAt,
		Processed:    s.processed,
		Failed:       s.failed,
		ReportErrors: s.reportErrors,
		DecodeSkips:  s.decodeSkips,
		LastCycle:    s.lastCycle,
		LastCommand:  s.lastCommand,
	}
}
