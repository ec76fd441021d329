package application

import (
	"context"
	"time"

	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/wled"
)

// Source yields pending commands, at most limit per call.
type Source interface {
	Pending(ctx context.Context, limit int) ([]commands.Command, error)
}

// Reporter writes command status back to the remote queue.
type Reporter interface {
	// MarkExecuting is a best-effort intermediate write.
	MarkExecuting(ctx context.Context, cmd commands.Command) error
	// Report writes a terminal status.
	Report(ctx context.Context, cmd commands.Command) error
}

// Device executes a mapped request against a target.
type Device interface {
	Do(ctx context.Context, target string, req wled.Request) ([]byte, error)
}

// Journal records terminal commands for the current run.
type Journal interface {
	// Get returns nil, nil when id is unknown.
	Get(ctx context.Context, id string) (*commands.Command, error)
	Save(ctx context.Context, cmd commands.Command) error
}

// FaultSink receives transport faults observed outside the supervisor.
type FaultSink interface {
	MarkFault(err error)
}

// Clock provides time for transitions.
type Clock interface {
	Now() time.Time
}
