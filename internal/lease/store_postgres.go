package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voice-agent-platform/pkg/utils"
)

// PostgresStore keeps leases in concurrency_leases. The atomic path is the
// acquire_concurrency_lease stored function (migrations/0002).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) AcquireAtomic(ctx context.Context, l Lease, max int) (Lease, bool, error) {
	const q = `
SELECT lease_id, acquired, lease_expires_at
FROM acquire_concurrency_lease($1, $2, $3, $4, $5, $6, $7)
`
	// Round up so a sub-second remainder never shortens the lease.
	ttl := l.ExpiresAt.Sub(l.AcquiredAt)
	ttlSeconds := int((ttl + time.Second - 1) / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	var (
		id      sql.NullString
		ok      bool
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, q,
		l.ID,
		l.WorkspaceID,
		utils.NullString(l.AssistantID),
		utils.NullString(l.ExternalCallID),
		ttlSeconds,
		max,
		l.AcquiredAt,
	).Scan(&id, &ok, &expires)
	if err != nil {
		if utils.IsUndefinedFunction(err) {
			return Lease{}, false, fmt.Errorf("lease: atomic primitive missing: %w", err)
		}
		return Lease{}, false, fmt.Errorf("lease: atomic acquire: %w", err)
	}
	if !ok {
		return Lease{}, false, nil
	}
	out := l
	out.ID = id.String
	if expires.Valid {
		out.ExpiresAt = expires.Time
	}
	return out, true, nil
}

func (s *PostgresStore) CountActive(ctx context.Context, workspaceID string, now time.Time) (int, error) {
	const q = `
SELECT count(*)
FROM concurrency_leases
WHERE workspace_id = $1 AND released_at IS NULL AND expires_at > $2
`
	var n int
	if err := s.db.QueryRowContext(ctx, q, workspaceID, now).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) FindActiveByExternalCall(ctx context.Context, workspaceID, externalCallID string, now time.Time) (Lease, bool, error) {
	const q = `
SELECT id, workspace_id, COALESCE(assistant_id, ''), COALESCE(external_call_id, ''), acquired_at, expires_at
FROM concurrency_leases
WHERE workspace_id = $1 AND external_call_id = $2 AND released_at IS NULL AND expires_at > $3
ORDER BY acquired_at
LIMIT 1
`
	var l Lease
	err := s.db.QueryRowContext(ctx, q, workspaceID, externalCallID, now).Scan(
		&l.ID,
		&l.WorkspaceID,
		&l.AssistantID,
		&l.ExternalCallID,
		&l.AcquiredAt,
		&l.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lease{}, false, nil
		}
		return Lease{}, false, err
	}
	return l, true, nil
}

func (s *PostgresStore) Insert(ctx context.Context, l Lease) error {
	const q = `
INSERT INTO concurrency_leases (id, workspace_id, assistant_id, external_call_id, acquired_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := s.db.ExecContext(ctx, q,
		l.ID,
		l.WorkspaceID,
		utils.NullString(l.AssistantID),
		utils.NullString(l.ExternalCallID),
		l.AcquiredAt,
		l.ExpiresAt,
	)
	return err
}

func (s *PostgresStore) Release(ctx context.Context, workspaceID, externalCallID string, now time.Time) (int64, error) {
	const q = `
UPDATE concurrency_leases
SET released_at = $3
WHERE workspace_id = $1 AND external_call_id = $2 AND released_at IS NULL AND expires_at > $3
`
	return s.exec(ctx, q, workspaceID, externalCallID, now)
}

func (s *PostgresStore) ReleaseByID(ctx context.Context, workspaceID, leaseID string, now time.Time) (int64, error) {
	const q = `
UPDATE concurrency_leases
SET released_at = $3
WHERE workspace_id = $1 AND id = $2 AND released_at IS NULL AND expires_at > $3
`
	return s.exec(ctx, q, workspaceID, leaseID, now)
}

func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE concurrency_leases
SET released_at = $1
WHERE released_at IS NULL AND expires_at < $1
`
	return s.exec(ctx, q, now)
}

func (s *PostgresStore) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
