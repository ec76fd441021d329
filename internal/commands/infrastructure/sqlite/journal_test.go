package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	commands "lumina-bridge/internal/commands/domain"
)

func TestJournalSaveGetAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	journal, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cmd := commands.Command{ID: "c2", Intent: commands.IntentGetState, Target: "10.0.0.5", Status: commands.StatusExecuting, CreatedAt: now.Add(-time.Minute)}
	if err := cmd.Complete(commands.NewResult([]byte(`{"on":true,"bri":128}`)), now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := journal.Save(ctx, cmd); err != nil {
		t.Fatalf("save: %v", err)
	}
	failed := commands.Command{ID: "c1", Intent: commands.IntentSetState, Status: commands.StatusPending}
	if err := failed.Fail(commands.FailureValidation, "missing target", now); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := journal.Save(ctx, failed); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "c2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Status != commands.StatusCompleted {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Result == nil || got.Result.Value.String() != `{"on":true,"bri":128}` {
		t.Fatalf("unexpected result: %+v", got.Result)
	}
	if !got.CompletedAt.Equal(now) || !got.CreatedAt.Equal(now.Add(-time.Minute)) {
		t.Fatalf("unexpected timestamps: created=%s completed=%s", got.CreatedAt, got.CompletedAt)
	}

	gotFailed, err := reopened.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if gotFailed == nil || gotFailed.Error != "missing target" || gotFailed.FailureKind != commands.FailureValidation || gotFailed.Result != nil {
		t.Fatalf("unexpected failed entry: %+v", gotFailed)
	}

	var count int
	if err := reopened.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM bridge_command_journal`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries, got %d", count)
	}

	missing, err := reopened.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing id, got %+v err=%v", missing, err)
	}
}
