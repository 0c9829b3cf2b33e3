package workspace

import (
	"context"
	"time"
)

// Repository is the persistence contract for workspace and add-on rows.
// Reads always hit the store; nothing here caches.
type Repository interface {
	Get(ctx context.Context, id string) (Workspace, error)
	ListAddons(ctx context.Context, workspaceID string) ([]Addon, error)

	SetStatus(ctx context.Context, id string, status Status, reason PauseReason, now time.Time) (Workspace, error)
	SetPlan(ctx context.Context, id, planCode string, now time.Time) (Workspace, error)
	UpsertAddon(ctx context.Context, a Addon) error
}

// ValidateStatus checks a requested status transition.
// Active workspaces always store reason "none".
func ValidateStatus(status Status, reason PauseReason) (PauseReason, error) {
	if !status.Valid() {
		return "", ErrInvalidArgument
	}
	if status == StatusActive {
		return PauseReasonNone, nil
	}
	if !reason.Enforceable() {
		return "", ErrInvalidArgument
	}
	return reason, nil
}

func validateAddon(a Addon) error {
	if a.WorkspaceID == "" || a.Key == "" || a.Quantity < 0 {
		return ErrInvalidArgument
	}
	if a.Status != AddonStatusActive && a.Status != AddonStatusInactive {
		return ErrInvalidArgument
	}
	return nil
}
