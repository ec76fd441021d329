package application

import (
	"context"
	"errors"
	"log"
	"time"

	"lumina-bridge/internal/connectivity"
	"lumina-bridge/internal/liveness"
	"lumina-bridge/internal/observability/metrics"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultBatchLimit   = 5

	// maxFetchLimit caps a query widened to see past already re-reported commands.
	maxFetchLimit = 50
)

// Link is the part of the connectivity supervisor the loop drives.
type Link interface {
	Maintain(ctx context.Context) connectivity.State
	Ready() bool
	MarkFault(err error)
	Health(ctx context.Context) liveness.Level
}

// Task is extra periodic work run on the loop goroutine.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Loop alternates heartbeat, link maintenance and ingestion on a single
// goroutine. Commands are processed strictly one after another.
type Loop struct {
	engine       *Engine
	source       Source
	link         Link
	heartbeat    *liveness.Heartbeat
	pollInterval time.Duration
	batchLimit   int
	tick         time.Duration
	tasks        []Task
	taskDue      []time.Time
	nextPoll     time.Time
	clock        Clock
	logger       *log.Logger
}

// LoopOption configures the loop.
type LoopOption func(*Loop)

// WithPollInterval sets the time between ingestion cycles.
func WithPollInterval(interval time.Duration) LoopOption {
	return func(l *Loop) {
		if interval > 0 {
			l.pollInterval = interval
		}
	}
}

// WithBatchLimit caps the commands fetched per cycle.
func WithBatchLimit(limit int) LoopOption {
	return func(l *Loop) {
		if limit > 0 {
			l.batchLimit = limit
		}
	}
}

// WithHeartbeat sets the liveness heartbeat.
func WithHeartbeat(hb *liveness.Heartbeat) LoopOption {
	return func(l *Loop) {
		l.heartbeat = hb
	}
}

// WithTask adds periodic work. Tasks with a non-positive interval are ignored.
func WithTask(task Task) LoopOption {
	return func(l *Loop) {
		if task.Interval > 0 && task.Run != nil {
			l.tasks = append(l.tasks, task)
		}
	}
}

// WithLoopClock overrides the default clock.
func WithLoopClock(clock Clock) LoopOption {
	return func(l *Loop) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLoopLogger sets the logger.
func WithLoopLogger(logger *log.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop constructs the bridge loop.
func NewLoop(engine *Engine, source Source, link Link, opts ...LoopOption) (*Loop, error) {
	if engine == nil {
		return nil, errors.New("loop: nil engine")
	}
	if source == nil {
		return nil, errors.New("loop: nil source")
	}
	if link == nil {
		return nil, errors.New("loop: nil link")
	}
	l := &Loop{
		engine:       engine,
		source:       source,
		link:         link,
		pollInterval: DefaultPollInterval,
		batchLimit:   DefaultBatchLimit,
		clock:        systemClock{},
		logger:       log.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.tick = l.pollInterval
	if l.tick > time.Second {
		l.tick = time.Second
	}
	l.taskDue = make([]time.Time, len(l.tasks))
	return l, nil
}

// Run executes steps until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return errors.New("loop: nil loop")
	}
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	for {
		l.Step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step runs one pass: heartbeat, maintenance, ingestion when due, tasks when due.
func (l *Loop) Step(ctx context.Context) {
	now := l.clock.Now()
	if l.heartbeat.Due(now) {
		l.heartbeat.Beat(now, l.link.Health(ctx))
	}
	l.link.Maintain(ctx)
	if ctx.Err() != nil {
		return
	}
	if !now.Before(l.nextPoll) {
		l.nextPoll = now.Add(l.pollInterval)
		if _, err := l.RunCycle(ctx); err != nil {
			l.logger.Printf("loop cycle error: err=%v", err)
		}
	}
	for i, task := range l.tasks {
		if ctx.Err() != nil {
			return
		}
		if now.Before(l.taskDue[i]) {
			continue
		}
		l.taskDue[i] = now.Add(task.Interval)
		if !l.link.Ready() {
			continue
		}
		if err := task.Run(ctx); err != nil {
			l.logger.Printf("loop task error: task=%s err=%v", task.Name, err)
		}
	}
}

// RunCycle fetches one batch and processes it to completion. It skips when the
// link is not ready. Transport faults drop the link; other source errors abort
// the cycle without processing anything. Commands already re-reported in this
// run do not count against the batch limit, and the query is widened by their
// number so they cannot crowd out newer work.
func (l *Loop) RunCycle(ctx context.Context) (int, error) {
	if !l.link.Ready() {
		metrics.IncIngestCycle(metrics.ResultSkipped, 0)
		return 0, nil
	}
	// Push ids are fresh ULIDs, so a draining source is never widened past the
	// batch limit and nothing drained is left unhandled.
	fetch := l.batchLimit + l.engine.Rereported()
	if fetch > maxFetchLimit {
		fetch = max(maxFetchLimit, l.batchLimit)
	}
	batch, err := l.source.Pending(ctx, fetch)
	if err != nil {
		if connectivity.IsTransportFault(err) {
			metrics.IncIngestCycle("transport", 0)
			l.link.MarkFault(err)
			return 0, err
		}
		metrics.IncIngestCycle(metrics.ResultError, 0)
		return 0, err
	}
	metrics.IncIngestCycle(metrics.ResultSuccess, len(batch))
	l.engine.state.recordCycle(l.clock.Now())

	handled, processed := 0, 0
	for _, cmd := range batch {
		if ctx.Err() != nil || handled >= l.batchLimit {
			break
		}
		_, err := l.engine.Process(ctx, cmd)
		if errors.Is(err, ErrAlreadyReported) {
			continue
		}
		handled++
		if err != nil {
			l.logger.Printf("loop process error: id=%s err=%v", cmd.ID, err)
			continue
		}
		processed++
	}
	return processed, nil
}
