package workspace

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
type MemoryRepo struct {
	mu         sync.Mutex
	workspaces map[string]Workspace
	addons     map[string]map[string]Addon
	numbers    map[string]PhoneNumber

	// SaveBackupErr, when set, makes SaveBackup fail.
	SaveBackupErr error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		workspaces: map[string]Workspace{},
		addons:     map[string]map[string]Addon{},
		numbers:    map[string]PhoneNumber{},
	}
}

// Put stores w as-is, bypassing status validation so tests can seed invalid states.
func (r *MemoryRepo) Put(w Workspace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces[w.ID] = w
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Workspace, error) {
	if id == "" {
		return Workspace{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workspaces[id]
	if !ok {
		return Workspace{}, ErrNotFound
	}
	return w, nil
}

func (r *MemoryRepo) ListAddons(ctx context.Context, workspaceID string) ([]Addon, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Addon, 0, len(r.addons[workspaceID]))
	for _, a := range r.addons[workspaceID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, id string, status Status, reason PauseReason, now time.Time) (Workspace, error) {
	reason, err := ValidateStatus(status, reason)
	if err != nil {
		return Workspace{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workspaces[id]
	if !ok {
		return Workspace{}, ErrNotFound
	}
	w.Status = status
	w.PauseReason = reason
	w.UpdatedAt = now
	r.workspaces[id] = w
	return w, nil
}

func (r *MemoryRepo) SetPlan(ctx context.Context, id, planCode string, now time.Time) (Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workspaces[id]
	if !ok {
		return Workspace{}, ErrNotFound
	}
	w.PlanCode = planCode
	w.UpdatedAt = now
	r.workspaces[id] = w
	return w, nil
}

func (r *MemoryRepo) UpsertAddon(ctx context.Context, a Addon) error {
	if err := validateAddon(a); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workspaces[a.WorkspaceID]; !ok {
		return ErrNotFound
	}
	if r.addons[a.WorkspaceID] == nil {
		r.addons[a.WorkspaceID] = map[string]Addon{}
	}
	r.addons[a.WorkspaceID][a.Key] = a
	return nil
}
