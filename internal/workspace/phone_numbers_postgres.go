package workspace

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const phoneNumberColumns = `id, workspace_id, provider_number_id, number, COALESCE(backup_assistant_id, ''), updated_at`

func scanPhoneNumber(scan func(dest ...any) error) (PhoneNumber, error) {
	var p PhoneNumber
	if err := scan(&p.ID, &p.WorkspaceID, &p.ProviderNumberID, &p.Number, &p.BackupAssistantID, &p.UpdatedAt); err != nil {
		return PhoneNumber{}, err
	}
	return p, nil
}

func (r *PostgresRepo) ListPhoneNumbers(ctx context.Context, workspaceID string) ([]PhoneNumber, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+phoneNumberColumns+` FROM phone_numbers WHERE workspace_id = $1 ORDER BY id`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhoneNumber
	for rows.Next() {
		p, err := scanPhoneNumber(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) FindPhoneNumber(ctx context.Context, number string) (PhoneNumber, error) {
	if number == "" {
		return PhoneNumber{}, ErrInvalidArgument
	}
	p, err := scanPhoneNumber(r.db.QueryRowContext(ctx, `SELECT `+phoneNumberColumns+` FROM phone_numbers WHERE number = $1 LIMIT 1`, number).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return PhoneNumber{}, ErrNotFound
	}
	return p, err
}

func (r *PostgresRepo) SaveBackup(ctx context.Context, workspaceID, phoneNumberID, assistantID string, now time.Time) (string, error) {
	if workspaceID == "" || phoneNumberID == "" || assistantID == "" {
		return "", ErrInvalidArgument
	}
	// COALESCE keeps an existing backup; the restore point is written once.
	const q = `
UPDATE phone_numbers
SET backup_assistant_id = COALESCE(backup_assistant_id, $3),
    updated_at = $4
WHERE workspace_id = $1 AND id = $2
RETURNING backup_assistant_id
`
	var backup string
	if err := r.db.QueryRowContext(ctx, q, workspaceID, phoneNumberID, assistantID, now).Scan(&backup); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return backup, nil
}

func (r *PostgresRepo) ClearBackup(ctx context.Context, workspaceID, phoneNumberID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE phone_numbers SET backup_assistant_id = NULL, updated_at = $3
WHERE workspace_id = $1 AND id = $2
`, workspaceID, phoneNumberID, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
