package memory

import (
	"context"
	"errors"
	"sync"

	commands "lumina-bridge/internal/commands/domain"
)

// Journal is an in-memory command journal scoped to the process lifetime.
type Journal struct {
	mu   sync.RWMutex
	data map[string]commands.Command
}

// NewJournal constructs a journal.
func NewJournal() *Journal {
	return &Journal{data: make(map[string]commands.Command)}
}

// Get returns a copy of the recorded command, or nil.
func (j *Journal) Get(ctx context.Context, id string) (*commands.Command, error) {
	_ = ctx
	if j == nil {
		return nil, errors.New("journal: nil journal")
	}
	if id == "" {
		return nil, commands.ErrEmptyID
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	cmd, ok := j.data[id]
	if !ok {
		return nil, nil
	}
	return &cmd, nil
}

// Save records cmd, replacing any earlier entry.
func (j *Journal) Save(ctx context.Context, cmd commands.Command) error {
	_ = ctx
	if j == nil {
		return errors.New("journal: nil journal")
	}
	if cmd.ID == "" {
		return commands.ErrEmptyID
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data[cmd.ID] = cmd
	return nil
}
