// Package connectivity keeps the ingestion link alive across network faults.
package connectivity

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"lumina-bridge/internal/liveness"
	"lumina-bridge/internal/observability/metrics"
)

const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultAttemptTimeout    = 10 * time.Second
)

// State is the link state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Link is the ingestion session owned by the supervisor.
type Link interface {
	// Connect establishes the session. It must honor ctx.
	Connect(ctx context.Context) error
	// Connected reports whether the session is still up.
	Connected() bool
	Close() error
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Supervisor drives Disconnected -> Connecting -> Ready and back on faults.
type Supervisor struct {
	link           Link
	backoff        Backoff
	attemptTimeout time.Duration
	netCheck       *NetworkCheck
	clock          Clock
	logger         *log.Logger

	mu          sync.Mutex
	state       State
	failures    int
	nextAttempt time.Time
	lastErr     error
}

// Option configures the supervisor.
type Option func(*Supervisor)

// WithBackoff overrides the fixed 5s reconnect interval.
func WithBackoff(backoff Backoff) Option {
	return func(s *Supervisor) {
		if backoff != nil {
			s.backoff = backoff
		}
	}
}

// WithAttemptTimeout bounds every connect attempt.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(s *Supervisor) {
		if timeout > 0 {
			s.attemptTimeout = timeout
		}
	}
}

// WithNetworkCheck sets the network check used by Health.
func WithNetworkCheck(check *NetworkCheck) Option {
	return func(s *Supervisor) {
		s.netCheck = check
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(s *Supervisor) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSupervisor constructs a supervisor in the disconnected state.
func NewSupervisor(link Link, opts ...Option) (*Supervisor, error) {
	if link == nil {
		return nil, errors.New("connectivity: nil link")
	}
	s := &Supervisor{
		link:           link,
		backoff:        FixedBackoff{Interval: DefaultReconnectInterval},
		attemptTimeout: DefaultAttemptTimeout,
		clock:          systemClock{},
		logger:         log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics.SetLinkState(int(StateDisconnected))
	return s, nil
}

// Maintain makes at most one connect attempt when one is due and returns the
// resulting state. It never blocks longer than the attempt timeout.
func (s *Supervisor) Maintain(ctx context.Context) State {
	if s == nil {
		return StateDisconnected
	}
	s.mu.Lock()
	if s.state == StateReady && !s.link.Connected() {
		s.dropLocked(errors.New("link lost"))
	}
	if s.state == StateReady || s.clock.Now().Before(s.nextAttempt) {
		state := s.state
		s.mu.Unlock()
		return state
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	err := s.link.Connect(attemptCtx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		// MarkFault raced with the attempt.
		return s.state
	}
	if err != nil {
		s.failures++
		wait := s.backoff.Next(s.failures)
		s.nextAttempt = s.clock.Now().Add(wait)
		s.lastErr = err
		s.setStateLocked(StateDisconnected)
		metrics.IncReconnectAttempt(metrics.ResultError)
		s.logger.Printf("connectivity connect error: failures=%d retry_in=%s err=%v", s.failures, wait, err)
		return s.state
	}
	if s.failures > 0 {
		s.logger.Printf("connectivity reconnected: after_failures=%d", s.failures)
	}
	s.failures = 0
	s.lastErr = nil
	s.setStateLocked(StateReady)
	metrics.IncReconnectAttempt(metrics.ResultSuccess)
	return s.state
}

// MarkFault drops a ready link to disconnected. The next Maintain retries
// immediately.
func (s *Supervisor) MarkFault(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return
	}
	s.dropLocked(err)
}

func (s *Supervisor) dropLocked(err error) {
	if err == nil {
		err = errors.New("transport fault")
	}
	s.lastErr = err
	s.nextAttempt = time.Time{}
	s.setStateLocked(StateDisconnected)
	s.logger.Printf("connectivity link down: err=%v", err)
	if closeErr := s.link.Close(); closeErr != nil {
		s.logger.Printf("connectivity close error: err=%v", closeErr)
	}
}

func (s *Supervisor) setStateLocked(state State) {
	s.state = state
	metrics.SetLinkState(int(state))
}

// Ready reports whether the link is ready.
func (s *Supervisor) Ready() bool {
	return s.State() == StateReady
}

// State returns the current state.
func (s *Supervisor) State() State {
	if s == nil {
		return StateDisconnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent connect or fault error.
func (s *Supervisor) LastError() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Health classifies the link for the liveness signal.
func (s *Supervisor) Health(ctx context.Context) liveness.Level {
	if s.Ready() {
		return liveness.LevelHealthy
	}
	if s != nil && !s.netCheck.Up(ctx) {
		return liveness.LevelNetworkDown
	}
	return liveness.LevelSessionDown
}

// Close closes the link.
func (s *Supervisor) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(StateDisconnected)
	return s.link.Close()
}
