package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	commands "lumina-bridge/internal/commands/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestJournalRoundTrip(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	journal := NewJournal(db)
	if err := journal.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	id := "pg-journal-" + time.Now().UTC().Format("20060102150405.000000000")
	defer db.ExecContext(ctx, `DELETE FROM bridge_command_journal WHERE id = $1`, id)

	cmd := commands.Command{ID: id, Intent: commands.IntentGetState, Target: "10.0.0.5", Status: commands.StatusExecuting}
	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := cmd.Complete(commands.NewResult([]byte(`{"on":true}`)), now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := journal.Save(ctx, cmd); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := journal.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Status != commands.StatusCompleted || got.Result == nil || !got.Result.JSON {
		t.Fatalf("unexpected journal entry: %+v", got)
	}
	if !got.CompletedAt.Equal(now) {
		t.Fatalf("expected completedAt %s, got %s", now, got.CompletedAt)
	}
	missing, err := journal.Get(ctx, id+"-missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing id, got %+v err=%v", missing, err)
	}
}
