package memory

import (
	"context"
	"errors"
	"testing"

	commands "lumina-bridge/internal/commands/domain"
)

func TestJournalSaveAndGet(t *testing.T) {
	j := NewJournal()
	ctx := context.Background()

	got, err := j.Get(ctx, "c1")
	if err != nil || got != nil {
		t.Fatalf("expected unknown id to yield nil, got %v err=%v", got, err)
	}

	if err := j.Save(ctx, commands.Command{ID: "c1", Status: commands.StatusFailed}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := j.Save(ctx, commands.Command{ID: "c1", Status: commands.StatusCompleted}); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, err = j.Get(ctx, "c1")
	if err != nil || got == nil {
		t.Fatalf("expected recorded command, err=%v", err)
	}
	if got.Status != commands.StatusCompleted {
		t.Fatalf("expected latest entry, got %s", got.Status)
	}
	if len(j.data) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(j.data))
	}
}

func TestJournalRejectsEmptyID(t *testing.T) {
	j := NewJournal()
	if err := j.Save(context.Background(), commands.Command{}); !errors.Is(err, commands.ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
	var nilJournal *Journal
	if _, err := nilJournal.Get(context.Background(), "x"); err == nil {
		t.Fatalf("expected error from nil journal")
	}
}
