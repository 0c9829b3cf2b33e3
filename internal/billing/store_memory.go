package billing

import (
	"context"
	"sync"
	"time"

	"voice-agent-platform/internal/workspace"
)

// MemoryStore applies events to a workspace.MemoryRepo. A single mutex
// stands in for the row lock.
type MemoryStore struct {
	mu   sync.Mutex
	repo *workspace.MemoryRepo
	seen map[string]bool
}

func NewMemoryStore(repo *workspace.MemoryRepo) *MemoryStore {
	return &MemoryStore{repo: repo, seen: map[string]bool{}}
}

func (s *MemoryStore) Apply(ctx context.Context, ev Event, now time.Time) (workspace.Workspace, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.repo.Get(ctx, ev.WorkspaceID)
	if err != nil {
		return workspace.Workspace{}, false, err
	}
	if s.seen[ev.ID] {
		return ws, true, nil
	}

	switch ev.Type {
	case EventStatusChanged:
		ws, err = s.repo.SetStatus(ctx, ev.WorkspaceID, ev.Status, ev.PauseReason, now)
	case EventPlanChanged:
		ws, err = s.repo.SetPlan(ctx, ev.WorkspaceID, ev.PlanCode, now)
	case EventAddonChanged:
		err = s.repo.UpsertAddon(ctx, workspace.Addon{
			WorkspaceID: ev.WorkspaceID,
			Key:         ev.AddonKey,
			Quantity:    ev.Quantity,
			Status:      ev.AddonStatus,
			UpdatedAt:   now,
		})
	}
	if err != nil {
		return workspace.Workspace{}, false, err
	}
	s.seen[ev.ID] = true
	return ws, false, nil
}
