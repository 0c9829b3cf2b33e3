package workspace

import (
	"context"
	"sort"
	"time"
)

// PutPhoneNumber seeds a number as-is.
func (r *MemoryRepo) PutPhoneNumber(p PhoneNumber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.numbers == nil {
		r.numbers = map[string]PhoneNumber{}
	}
	r.numbers[p.ID] = p
}

func (r *MemoryRepo) ListPhoneNumbers(ctx context.Context, workspaceID string) ([]PhoneNumber, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PhoneNumber, 0)
	for _, p := range r.numbers {
		if p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) FindPhoneNumber(ctx context.Context, number string) (PhoneNumber, error) {
	if number == "" {
		return PhoneNumber{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.numbers {
		if p.Number == number {
			return p, nil
		}
	}
	return PhoneNumber{}, ErrNotFound
}

func (r *MemoryRepo) SaveBackup(ctx context.Context, workspaceID, phoneNumberID, assistantID string, now time.Time) (string, error) {
	if workspaceID == "" || phoneNumberID == "" || assistantID == "" {
		return "", ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveBackupErr != nil {
		return "", r.SaveBackupErr
	}
	p, ok := r.numbers[phoneNumberID]
	if !ok || p.WorkspaceID != workspaceID {
		return "", ErrNotFound
	}
	if p.BackupAssistantID != "" {
		return p.BackupAssistantID, nil
	}
	p.BackupAssistantID = assistantID
	p.UpdatedAt = now
	r.numbers[phoneNumberID] = p
	return assistantID, nil
}

func (r *MemoryRepo) ClearBackup(ctx context.Context, workspaceID, phoneNumberID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.numbers[phoneNumberID]
	if !ok || p.WorkspaceID != workspaceID {
		return ErrNotFound
	}
	p.BackupAssistantID = ""
	p.UpdatedAt = now
	r.numbers[phoneNumberID] = p
	return nil
}
