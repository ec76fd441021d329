package application

import (
	"context"
	"errors"
	"log"
	"time"

	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/connectivity"
	"lumina-bridge/internal/observability/metrics"
	"lumina-bridge/internal/wled"
)

// ErrAlreadyReported is returned by Process for a terminal command whose
// status was already re-reported once in this run.
var ErrAlreadyReported = errors.New("engine: command already reported")

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Engine drives one command at a time from pending to a terminal status.
type Engine struct {
	device   Device
	reporter Reporter
	journal  Journal
	faults   FaultSink
	state    *BridgeState
	clock    Clock
	logger   *log.Logger
	source   string

	rereported map[string]struct{}
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithFaultSink routes transport faults seen while reporting to sink.
func WithFaultSink(sink FaultSink) EngineOption {
	return func(e *Engine) {
		if sink != nil {
			e.faults = sink
		}
	}
}

// WithState shares a BridgeState with the engine.
func WithState(state *BridgeState) EngineOption {
	return func(e *Engine) {
		if state != nil {
			e.state = state
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSourceName labels decode metrics with the ingestion mode.
func WithSourceName(name string) EngineOption {
	return func(e *Engine) {
		if name != "" {
			e.source = name
		}
	}
}

// NewEngine constructs a lifecycle engine.
func NewEngine(device Device, reporter Reporter, journal Journal, opts ...EngineOption) (*Engine, error) {
	if device == nil {
		return nil, errors.New("engine: nil device")
	}
	if reporter == nil {
		return nil, errors.New("engine: nil reporter")
	}
	if journal == nil {
		return nil, errors.New("engine: nil journal")
	}
	e := &Engine{
		device:   device,
		reporter: reporter,
		journal:  journal,
		clock:    systemClock{},
		logger:   log.Default(),
		source:   "unknown",

		rereported: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.state == nil {
		e.state = NewBridgeState(e.clock.Now())
	}
	return e, nil
}

// State returns the engine's counters.
func (e *Engine) State() *BridgeState {
	if e == nil {
		return nil
	}
	return e.state
}

// Process runs cmd to a terminal status and reports it exactly once.
// A command already in the journal is re-reported once per run, never
// re-executed; later sightings return ErrAlreadyReported.
func (e *Engine) Process(ctx context.Context, cmd commands.Command) (commands.Command, error) {
	if e == nil {
		return cmd, errors.New("engine: nil engine")
	}
	if cmd.ID == "" {
		return cmd, commands.ErrEmptyID
	}

	prior, err := e.journal.Get(ctx, cmd.ID)
	if err != nil {
		e.logger.Printf("engine journal lookup error: id=%s err=%v", cmd.ID, err)
	}
	if prior != nil && prior.Status.Terminal() {
		if _, done := e.rereported[prior.ID]; done {
			return *prior, ErrAlreadyReported
		}
		e.rereported[prior.ID] = struct{}{}
		e.logger.Printf("engine re-report: id=%s status=%s", prior.ID, prior.RemoteStatus())
		e.report(ctx, *prior)
		return *prior, nil
	}

	cmd.Status = commands.StatusPending
	cmd.FailureKind = commands.FailureNone
	cmd.Error = ""
	cmd.Result = nil
	cmd.CompletedAt = time.Time{}

	if err := commands.ValidateTarget(cmd.Target); err != nil {
		_ = cmd.Fail(commands.FailureValidation, err.Error(), e.clock.Now())
		return e.finish(ctx, cmd), nil
	}

	e.recordSkips(cmd)
	if !cmd.Intent.Known() {
		e.logger.Printf("engine unknown intent: id=%s intent=%s fallback=%s", cmd.ID, cmd.Intent, wled.PathState)
	}

	_ = cmd.Begin()
	if err := e.reporter.MarkExecuting(ctx, cmd); err != nil {
		e.reportError(cmd, "executing", err)
	}

	req := wled.MapIntent(cmd.Intent, cmd.Payload)
	start := time.Now()
	body, err := e.device.Do(ctx, cmd.Target, req)
	if err != nil {
		metrics.ObserveDeviceRequest(cmd.Intent.String(), metrics.ResultError, time.Since(start))
		kind := failureKind(err)
		_ = cmd.Fail(kind, err.Error(), e.clock.Now())
		e.logger.Printf("engine device error: id=%s intent=%s target=%s err=%v", cmd.ID, cmd.Intent, cmd.Target, err)
		return e.finish(ctx, cmd), nil
	}
	metrics.ObserveDeviceRequest(cmd.Intent.String(), metrics.ResultSuccess, time.Since(start))
	_ = cmd.Complete(commands.NewResult(body), e.clock.Now())
	return e.finish(ctx, cmd), nil
}

// Rereported returns how many journaled commands were re-reported in this run.
func (e *Engine) Rereported() int {
	if e == nil {
		return 0
	}
	return len(e.rereported)
}

func (e *Engine) recordSkips(cmd commands.Command) {
	if len(cmd.Skipped) == 0 {
		return
	}
	e.logger.Printf("engine fields skipped: id=%s paths=%v", cmd.ID, cmd.Skipped)
	metrics.AddDecodeSkips(e.source, len(cmd.Skipped))
	e.state.recordDecodeSkips(len(cmd.Skipped))
}

func (e *Engine) finish(ctx context.Context, cmd commands.Command) commands.Command {
	if err := e.journal.Save(ctx, cmd); err != nil {
		e.logger.Printf("engine journal save error: id=%s err=%v", cmd.ID, err)
	}
	e.state.recordTerminal(cmd.ID, cmd.Status == commands.StatusFailed)
	metrics.IncCommandResult(cmd.RemoteStatus())
	e.report(ctx, cmd)
	return cmd
}

func (e *Engine) report(ctx context.Context, cmd commands.Command) {
	if err := e.reporter.Report(ctx, cmd); err != nil {
		e.reportError(cmd, "terminal", err)
	}
}

func (e *Engine) reportError(cmd commands.Command, stage string, err error) {
	metrics.IncReportError(stage)
	e.state.recordReportError()
	e.logger.Printf("engine report error: id=%s stage=%s err=%v", cmd.ID, stage, err)
	if connectivity.IsTransportFault(err) && e.faults != nil {
		e.faults.MarkFault(err)
	}
}

func failureKind(err error) commands.FailureKind {
	var devErr *wled.DeviceError
	if !errors.As(err, &devErr) {
		return commands.FailureDevice
	}
	switch devErr.Kind {
	case wled.ErrorTimeout:
		return commands.FailureTimeout
	case wled.ErrorRefused:
		return commands.FailureConnection
	default:
		return commands.FailureDevice
	}
}
