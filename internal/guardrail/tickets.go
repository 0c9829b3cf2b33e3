package guardrail

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"voice-agent-platform/pkg/utils"
)

// PostgresTickets reads and writes the tickets table. tickets.call_id is unique.
type PostgresTickets struct {
	db *sql.DB
}

func NewPostgresTickets(db *sql.DB) *PostgresTickets { return &PostgresTickets{db: db} }

func (s *PostgresTickets) FindByCall(ctx context.Context, callID string) (Ticket, bool, error) {
	const q = `
SELECT id, workspace_id, call_id, source, reason, created_at
FROM tickets
WHERE call_id = $1
LIMIT 1
`
	var t Ticket
	err := s.db.QueryRowContext(ctx, q, callID).Scan(&t.ID, &t.WorkspaceID, &t.CallID, &t.Source, &t.Reason, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, false, nil
		}
		return Ticket{}, false, err
	}
	return t, true, nil
}

func (s *PostgresTickets) Insert(ctx context.Context, t Ticket) error {
	const q = `
INSERT INTO tickets (id, workspace_id, call_id, source, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := s.db.ExecContext(ctx, q, t.ID, t.WorkspaceID, t.CallID, t.Source, t.Reason, t.CreatedAt)
	if utils.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// MemoryTickets is an in-memory ArtifactStore for tests.
type MemoryTickets struct {
	mu      sync.Mutex
	tickets map[string]Ticket

	// FindErr, when set, makes FindByCall fail.
	FindErr error
	// HideOnce makes the next FindByCall miss an existing ticket, the way a
	// concurrent insert looks to a reader that checked first.
	HideOnce bool
}

func NewMemoryTickets() *MemoryTickets {
	return &MemoryTickets{tickets: map[string]Ticket{}}
}

func (s *MemoryTickets) FindByCall(ctx context.Context, callID string) (Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return Ticket{}, false, s.FindErr
	}
	if s.HideOnce {
		s.HideOnce = false
		return Ticket{}, false, nil
	}
	t, ok := s.tickets[callID]
	return t, ok, nil
}

func (s *MemoryTickets) Insert(ctx context.Context, t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.CallID]; ok {
		return ErrConflict
	}
	s.tickets[t.CallID] = t
	return nil
}

// Put seeds a ticket.
func (s *MemoryTickets) Put(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.CallID] = t
}

func (s *MemoryTickets) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
