package workspace

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo reads and writes the workspaces and workspace_addons tables.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const workspaceColumns = `id, plan_code, status, COALESCE(pause_reason, ''), updated_at`

func scanWorkspace(row *sql.Row) (Workspace, error) {
	var w Workspace
	if err := row.Scan(&w.ID, &w.PlanCode, &w.Status, &w.PauseReason, &w.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workspace{}, ErrNotFound
		}
		return Workspace{}, err
	}
	return w, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Workspace, error) {
	return Get(ctx, r.db, id)
}

// Get reads one workspace through q.
func Get(ctx context.Context, q Querier, id string) (Workspace, error) {
	if id == "" {
		return Workspace{}, ErrInvalidArgument
	}
	return scanWorkspace(q.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id))
}

// LockForUpdate reads a workspace row and holds its row lock until tx ends.
func LockForUpdate(ctx context.Context, tx *sql.Tx, id string) (Workspace, error) {
	if id == "" {
		return Workspace{}, ErrInvalidArgument
	}
	return scanWorkspace(tx.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1 FOR UPDATE`, id))
}

func (r *PostgresRepo) ListAddons(ctx context.Context, workspaceID string) ([]Addon, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT workspace_id, addon_key, quantity, status, updated_at
FROM workspace_addons
WHERE workspace_id = $1
ORDER BY addon_key
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Addon
	for rows.Next() {
		var a Addon
		if err := rows.Scan(&a.WorkspaceID, &a.Key, &a.Quantity, &a.Status, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, status Status, reason PauseReason, now time.Time) (Workspace, error) {
	return SetStatus(ctx, r.db, id, status, reason, now)
}

// SetStatus writes a status transition through q.
func SetStatus(ctx context.Context, q Querier, id string, status Status, reason PauseReason, now time.Time) (Workspace, error) {
	reason, err := ValidateStatus(status, reason)
	if err != nil {
		return Workspace{}, err
	}
	return scanWorkspace(q.QueryRowContext(ctx, `
UPDATE workspaces SET status = $2, pause_reason = $3, updated_at = $4
WHERE id = $1
RETURNING `+workspaceColumns, id, status, reason, now))
}

func (r *PostgresRepo) SetPlan(ctx context.Context, id, planCode string, now time.Time) (Workspace, error) {
	return SetPlan(ctx, r.db, id, planCode, now)
}

// SetPlan changes the plan code through q.
func SetPlan(ctx context.Context, q Querier, id, planCode string, now time.Time) (Workspace, error) {
	if id == "" {
		return Workspace{}, ErrInvalidArgument
	}
	return scanWorkspace(q.QueryRowContext(ctx, `
UPDATE workspaces SET plan_code = $2, updated_at = $3
WHERE id = $1
RETURNING `+workspaceColumns, id, planCode, now))
}

func (r *PostgresRepo) UpsertAddon(ctx context.Context, a Addon) error {
	return UpsertAddon(ctx, r.db, a)
}

// UpsertAddon writes an add-on row through q.
func UpsertAddon(ctx context.Context, q Querier, a Addon) error {
	if err := validateAddon(a); err != nil {
		return err
	}
	const stmt = `
INSERT INTO workspace_addons (workspace_id, addon_key, quantity, status, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (workspace_id, addon_key)
DO UPDATE SET quantity = EXCLUDED.quantity,
              status = EXCLUDED.status,
              updated_at = EXCLUDED.updated_at
`
	_, err := q.ExecContext(ctx, stmt, a.WorkspaceID, a.Key, a.Quantity, a.Status, a.UpdatedAt)
	return err
}
