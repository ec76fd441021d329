// Package liveness drives the bridge's status indicator. The physical output
// (an LED, a log line) sits behind Signal.
package liveness

import (
	"log"
	"sync"
	"time"

	"lumina-bridge/internal/observability/metrics"
)

// Level is the health level shown by the indicator.
type Level int

const (
	LevelHealthy Level = iota
	LevelSessionDown
	LevelNetworkDown
)

func (l Level) String() string {
	switch l {
	case LevelHealthy:
		return "healthy"
	case LevelSessionDown:
		return "session_down"
	case LevelNetworkDown:
		return "network_down"
	default:
		return "unknown"
	}
}

// Signal renders a level. Blink is called once per heartbeat.
type Signal interface {
	Blink(level Level)
}

// LogSignal logs level changes.
type LogSignal struct {
	logger *log.Logger
	mu     sync.Mutex
	last   Level
	seen   bool
}

// NewLogSignal constructs a logging signal.
func NewLogSignal(logger *log.Logger) *LogSignal {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSignal{logger: logger}
}

// Blink implements Signal.
func (s *LogSignal) Blink(level Level) {
	if s == nil {
		return
	}
	s.mu.Lock()
	changed := !s.seen || s.last != level
	s.last = level
	s.seen = true
	s.mu.Unlock()
	if changed {
		s.logger.Printf("liveness: level=%s", level)
	}
}

// Heartbeat emits the current level at a fixed interval.
type Heartbeat struct {
	signal   Signal
	interval time.Duration
	last     time.Time
}

// NewHeartbeat constructs a heartbeat. A zero interval defaults to 5s.
func NewHeartbeat(signal Signal, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Heartbeat{signal: signal, interval: interval}
}

// Due reports whether a beat should be emitted at now.
func (h *Heartbeat) Due(now time.Time) bool {
	if h == nil {
		return false
	}
	return h.last.IsZero() || now.Sub(h.last) >= h.interval
}

// Beat records and emits level.
func (h *Heartbeat) Beat(now time.Time, level Level) {
	if h == nil {
		return
	}
	h.last = now
	metrics.SetLivenessLevel(int(level))
	if h.signal != nil {
		h.signal.Blink(level)
	}
}
