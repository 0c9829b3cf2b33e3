package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo reads and writes the calls table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `call_id, workspace_id, external_call_id, assistant_id, outcome, guardrail_rule,
  phone_captured, email_captured, user_turns, tool_calls, ended_at, created_at`

func (r *PostgresRepo) Upsert(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (` + callColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (call_id) DO UPDATE SET
  outcome = EXCLUDED.outcome,
  guardrail_rule = EXCLUDED.guardrail_rule,
  phone_captured = EXCLUDED.phone_captured,
  email_captured = EXCLUDED.email_captured,
  user_turns = EXCLUDED.user_turns,
  tool_calls = EXCLUDED.tool_calls,
  ended_at = EXCLUDED.ended_at
WHERE calls.workspace_id = EXCLUDED.workspace_id
`
	_, err := r.db.ExecContext(ctx, q,
		c.CallID, c.WorkspaceID, c.ExternalCallID, c.AssistantID, string(c.Outcome), c.GuardrailRule,
		c.PhoneCaptured, c.EmailCaptured, c.UserTurns, c.ToolCalls, c.EndedAt, c.CreatedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(s scanner) (Call, error) {
	var c Call
	err := s.Scan(&c.CallID, &c.WorkspaceID, &c.ExternalCallID, &c.AssistantID, &c.Outcome, &c.GuardrailRule,
		&c.PhoneCaptured, &c.EmailCaptured, &c.UserTurns, &c.ToolCalls, &c.EndedAt, &c.CreatedAt)
	return c, err
}

func (r *PostgresRepo) Get(ctx context.Context, callID string) (Call, error) {
	c, err := scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE call_id = $1`, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]Call, error) {
	if f.WorkspaceID == "" {
		return nil, ErrInvalidArgument
	}
	to := f.To
	if to.IsZero() {
		to = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	q := `SELECT ` + callColumns + `
FROM calls
WHERE workspace_id = $1 AND ended_at >= $2 AND ended_at < $3
ORDER BY ended_at`
	rows, err := r.db.QueryContext(ctx, q, f.WorkspaceID, f.From, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
