package lease

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. Its mutex stands in for the per-workspace
// advisory lock of the Postgres primitive.
type MemoryStore struct {
	mu     sync.Mutex
	leases []Lease

	// AtomicErr, when set, makes AcquireAtomic fail as if the primitive were unavailable.
	AtomicErr error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) AcquireAtomic(ctx context.Context, l Lease, max int) (Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AtomicErr != nil {
		return Lease{}, false, s.AtomicErr
	}
	now := l.AcquiredAt
	if l.ExternalCallID != "" {
		if existing, ok := s.findActiveLocked(l.WorkspaceID, l.ExternalCallID, now); ok {
			return existing, true, nil
		}
	}
	if s.countActiveLocked(l.WorkspaceID, now) >= max {
		return Lease{}, false, nil
	}
	s.leases = append(s.leases, l)
	return l, true, nil
}

func (s *MemoryStore) CountActive(ctx context.Context, workspaceID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countActiveLocked(workspaceID, now), nil
}

func (s *MemoryStore) FindActiveByExternalCall(ctx context.Context, workspaceID, externalCallID string, now time.Time) (Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.findActiveLocked(workspaceID, externalCallID, now)
	return l, ok, nil
}

func (s *MemoryStore) Insert(ctx context.Context, l Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases = append(s.leases, l)
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, workspaceID, externalCallID string, now time.Time) (int64, error) {
	return s.releaseWhere(now, func(l Lease) bool {
		return l.WorkspaceID == workspaceID && l.ExternalCallID == externalCallID && l.Active(now)
	}), nil
}

func (s *MemoryStore) ReleaseByID(ctx context.Context, workspaceID, leaseID string, now time.Time) (int64, error) {
	return s.releaseWhere(now, func(l Lease) bool {
		return l.WorkspaceID == workspaceID && l.ID == leaseID && l.Active(now)
	}), nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.releaseWhere(now, func(l Lease) bool {
		return l.ReleasedAt == nil && l.ExpiresAt.Before(now)
	}), nil
}

// Leases returns a copy of every stored lease.
func (s *MemoryStore) Leases() []Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Lease, len(s.leases))
	copy(out, s.leases)
	return out
}

func (s *MemoryStore) releaseWhere(now time.Time, match func(Lease) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.leases {
		if match(s.leases[i]) {
			t := now
			s.leases[i].ReleasedAt = &t
			n++
		}
	}
	return n
}

func (s *MemoryStore) countActiveLocked(workspaceID string, now time.Time) int {
	n := 0
	for _, l := range s.leases {
		if l.WorkspaceID == workspaceID && l.Active(now) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) findActiveLocked(workspaceID, externalCallID string, now time.Time) (Lease, bool) {
	for _, l := range s.leases {
		if l.WorkspaceID == workspaceID && l.ExternalCallID == externalCallID && l.Active(now) {
			return l, true
		}
	}
	return Lease{}, false
}
