package commands

import (
	"errors"
	"time"

	"lumina-bridge/internal/typedvalue"
)

// Status is the lifecycle state of a command.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RemoteStatusTimeout is the status written upstream for a failed command
// whose failure kind is FailureTimeout.
const RemoteStatusTimeout = "timeout"

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FailureKind classifies why a command failed.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureValidation FailureKind = "validation"
	FailurePayload    FailureKind = "payload"
	FailureDevice     FailureKind = "device"
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
)

// Result is a captured device response.
type Result struct {
	Body  []byte
	Value typedvalue.Value
	// JSON is true when Body parsed as JSON into Value.
	JSON bool
}

// NewResult captures body as JSON when it parses, as opaque text otherwise.
func NewResult(body []byte) Result {
	out := Result{Body: append([]byte(nil), body...)}
	if v, err := typedvalue.FromPlainJSON(body); err == nil {
		out.Value = v
		out.JSON = true
		return out
	}
	out.Value = typedvalue.String(string(body))
	return out
}

var (
	ErrInvalidTransition = errors.New("command: invalid status transition")
	ErrEmptyID           = errors.New("command: empty id")
)

// Command is one unit of work pulled or pushed from the remote queue.
type Command struct {
	ID          string
	Intent      Intent
	Target      string
	Payload     typedvalue.Value
	// Skipped lists wire paths the source dropped while decoding the command.
	Skipped     []string
	Status      Status
	FailureKind FailureKind
	Error       string
	Result      *Result
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Begin moves a pending command to executing.
func (c *Command) Begin() error {
	if c == nil {
		return ErrInvalidTransition
	}
	if !CanTransition(c.Status, StatusExecuting) {
		return ErrInvalidTransition
	}
	c.Status = StatusExecuting
	return nil
}

// Complete moves an executing command to completed and captures the result.
func (c *Command) Complete(result Result, now time.Time) error {
	if c == nil {
		return ErrInvalidTransition
	}
	if !CanTransition(c.Status, StatusCompleted) {
		return ErrInvalidTransition
	}
	c.Status = StatusCompleted
	c.Result = &result
	c.CompletedAt = now.UTC()
	return nil
}

// Fail terminalizes a pending or executing command.
func (c *Command) Fail(kind FailureKind, message string, now time.Time) error {
	if c == nil {
		return ErrInvalidTransition
	}
	if !CanTransition(c.Status, StatusFailed) {
		return ErrInvalidTransition
	}
	if kind == FailureNone {
		kind = FailureDevice
	}
	c.Status = StatusFailed
	c.FailureKind = kind
	c.Error = message
	c.CompletedAt = now.UTC()
	return nil
}

// RemoteStatus is the status string written back upstream.
func (c Command) RemoteStatus() string {
	if c.Status == StatusFailed && c.FailureKind == FailureTimeout {
		return RemoteStatusTimeout
	}
	return string(c.Status)
}

// CanTransition reports whether from -> to is a forward move of the state machine.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusExecuting || to == StatusFailed
	case StatusExecuting:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}
