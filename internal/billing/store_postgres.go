package billing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voice-agent-platform/internal/workspace"
	"voice-agent-platform/pkg/utils"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Apply(ctx context.Context, ev Event, now time.Time) (workspace.Workspace, bool, error) {
	var (
		ws  workspace.Workspace
		dup bool
	)
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		// Serializes concurrent events for one workspace.
		ws, err = workspace.LockForUpdate(ctx, tx, ev.WorkspaceID)
		if err != nil {
			return err
		}

		var one int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM billing_events WHERE id = $1`, ev.ID).Scan(&one)
		switch {
		case err == nil:
			dup = true
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		switch ev.Type {
		case EventStatusChanged:
			ws, err = workspace.SetStatus(ctx, tx, ev.WorkspaceID, ev.Status, ev.PauseReason, now)
		case EventPlanChanged:
			ws, err = workspace.SetPlan(ctx, tx, ev.WorkspaceID, ev.PlanCode, now)
		case EventAddonChanged:
			err = workspace.UpsertAddon(ctx, tx, workspace.Addon{
				WorkspaceID: ev.WorkspaceID,
				Key:         ev.AddonKey,
				Quantity:    ev.Quantity,
				Status:      ev.AddonStatus,
				UpdatedAt:   now,
			})
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO billing_events (id, workspace_id, type, received_at) VALUES ($1, $2, $3, $4)`,
			ev.ID, ev.WorkspaceID, string(ev.Type), now)
		return err
	})
	if err != nil {
		return workspace.Workspace{}, false, err
	}
	return ws, dup, nil
}
