package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	commands "lumina-bridge/internal/commands/domain"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
CREATE TABLE IF NOT EXISTS bridge_command_journal (
	id           TEXT PRIMARY KEY,
	intent       TEXT NOT NULL,
	target       TEXT NOT NULL,
	status       TEXT NOT NULL,
	failure_kind TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	has_result   INTEGER NOT NULL DEFAULT 0,
	result_body  BLOB,
	created_at   TEXT NOT NULL DEFAULT '',
	completed_at TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL
);`

// Journal is a SQLite-backed command journal. It survives restarts, so a
// command terminalized before a restart is re-reported rather than re-run.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("sqlite journal: empty path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	j := &Journal{db: db}
	if err := j.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, schema)
	return err
}

// DB exposes the handle for metrics.
func (j *Journal) DB() *sql.DB {
	if j == nil {
		return nil
	}
	return j.db
}

// Get loads a command by id. Unknown ids return nil, nil.
func (j *Journal) Get(ctx context.Context, id string) (*commands.Command, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("sqlite journal: nil db")
	}
	if id == "" {
		return nil, commands.ErrEmptyID
	}
	row := j.db.QueryRowContext(ctx, `
SELECT id, intent, target, status, failure_kind, error, has_result, result_body, created_at, completed_at
FROM bridge_command_journal
WHERE id = ?`, id)
	var (
		cmd         commands.Command
		intent      string
		status      string
		kind        string
		hasResult   int
		body        []byte
		createdAt   string
		completedAt string
	)
	if err := row.Scan(&cmd.ID, &intent, &cmd.Target, &status, &kind, &cmd.Error, &hasResult, &body, &createdAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cmd.Intent = commands.Intent(intent)
	cmd.Status = commands.Status(status)
	cmd.FailureKind = commands.FailureKind(kind)
	if hasResult != 0 {
		res := commands.NewResult(body)
		cmd.Result = &res
	}
	cmd.CreatedAt = parseTime(createdAt)
	cmd.CompletedAt = parseTime(completedAt)
	return &cmd, nil
}

// Save upserts cmd.
func (j *Journal) Save(ctx context.Context, cmd commands.Command) error {
	if j == nil || j.db == nil {
		return errors.New("sqlite journal: nil db")
	}
	if cmd.ID == "" {
		return commands.ErrEmptyID
	}
	hasResult := 0
	var body []byte
	if cmd.Result != nil {
		hasResult = 1
		body = cmd.Result.Body
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO bridge_command_journal (
	id, intent, target, status, failure_kind, error, has_result, result_body, created_at, completed_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	failure_kind = excluded.failure_kind,
	error = excluded.error,
	has_result = excluded.has_result,
	result_body = excluded.result_body,
	completed_at = excluded.completed_at,
	updated_at = excluded.updated_at`,
		cmd.ID, string(cmd.Intent), cmd.Target, string(cmd.Status), string(cmd.FailureKind), cmd.Error,
		hasResult, body, formatTime(cmd.CreatedAt), formatTime(cmd.CompletedAt), formatTime(time.Now()))
	return err
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
