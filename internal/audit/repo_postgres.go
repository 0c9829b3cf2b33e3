package audit

import (
	"context"
	"database/sql"

	"voice-agent-platform/pkg/utils"
)

// PostgresRepo appends to audit_events. The table rejects UPDATE and DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, workspace_id, type, actor, call_id, phone_number_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.WorkspaceID,
		e.Type,
		e.Actor,
		e.CallID,
		e.PhoneNumberID,
		e.Message,
		utils.NullString(e.Metadata),
		e.CreatedAt,
	)
	return err
}
