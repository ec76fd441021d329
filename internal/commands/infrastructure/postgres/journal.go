package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	commands "lumina-bridge/internal/commands/domain"
)

// Journal is a Postgres-backed command journal.
type Journal struct {
	db *sql.DB
}

// NewJournal constructs a journal on an open pgx stdlib handle.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Migrate creates the journal table when missing.
func (j *Journal) Migrate(ctx context.Context) error {
	if j == nil || j.db == nil {
		return errors.New("postgres journal: nil db")
	}
	_, err := j.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS bridge_command_journal (
	id           TEXT PRIMARY KEY,
	intent       TEXT NOT NULL,
	target       TEXT NOT NULL,
	status       TEXT NOT NULL,
	failure_kind TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	has_result   BOOLEAN NOT NULL DEFAULT FALSE,
	result_body  BYTEA,
	created_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	return err
}

// Get loads a command by id. Unknown ids return nil, nil.
func (j *Journal) Get(ctx context.Context, id string) (*commands.Command, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("postgres journal: nil db")
	}
	if id == "" {
		return nil, commands.ErrEmptyID
	}
	row := j.db.QueryRowContext(ctx, `
SELECT id, intent, target, status, failure_kind, error, has_result, result_body, created_at, completed_at
FROM bridge_command_journal
WHERE id = $1`, id)
	var (
		cmd         commands.Command
		intent      string
		status      string
		kind        string
		hasResult   bool
		body        []byte
		createdAt   sql.NullTime
		completedAt sql.NullTime
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
	if hasResult {
		res := commands.NewResult(body)
		cmd.Result = &res
	}
	if createdAt.Valid {
		cmd.CreatedAt = createdAt.Time.UTC()
	}
	if completedAt.Valid {
		cmd.CompletedAt = completedAt.Time.UTC()
	}
	return &cmd, nil
}

// Save upserts cmd.
func (j *Journal) Save(ctx context.Context, cmd commands.Command) error {
	if j == nil || j.db == nil {
		return errors.New("postgres journal: nil db")
	}
	if cmd.ID == "" {
		return commands.ErrEmptyID
	}
	var body []byte
	if cmd.Result != nil {
		body = cmd.Result.Body
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO bridge_command_journal (
	id, intent, target, status, failure_kind, error, has_result, result_body, created_at, completed_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()
)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	failure_kind = EXCLUDED.failure_kind,
	error = EXCLUDED.error,
	has_result = EXCLUDED.has_result,
	result_body = EXCLUDED.result_body,
	completed_at = EXCLUDED.completed_at,
	updated_at = NOW()`,
		cmd.ID, string(cmd.Intent), cmd.Target, string(cmd.Status), string(cmd.FailureKind), cmd.Error,
		cmd.Result != nil, body, nullTime(cmd.CreatedAt), nullTime(cmd.CompletedAt))
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
