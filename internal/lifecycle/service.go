package lifecycle

import (
	"context"
	"fmt"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/workspace"
	"voice-agent-platform/pkg/logger"
)

// Service is the pause/resume action surface used by operators. Both actions
// write the status first and then enforce it.
type Service struct {
	*Enforcer
}

func NewService(e *Enforcer) *Service { return &Service{Enforcer: e} }

// Pause marks the workspace paused and unbinds its numbers. Operators may only
// pause manually; hard_cap and past_due are written by billing events. An
// existing billing hold keeps its reason so a later manual resume cannot lift it.
func (s *Service) Pause(ctx context.Context, workspaceID string, reason workspace.PauseReason, actor string) (Report, error) {
	if workspaceID == "" {
		return Report{}, ErrInvalidArgument
	}
	if reason == "" || reason == workspace.PauseReasonNone {
		reason = workspace.PauseReasonManual
	}
	if reason != workspace.PauseReasonManual {
		return Report{}, fmt.Errorf("%w: pause reason %q", ErrInvalidArgument, reason)
	}

	ws, err := s.store.Get(ctx, workspaceID)
	if err != nil {
		return Report{}, fmt.Errorf("lifecycle: load workspace: %w", err)
	}
	if ws.Status == workspace.StatusPaused && ws.PauseReason.BillingHold() {
		reason = ws.PauseReason
	}
	if ws.Status != workspace.StatusPaused || ws.PauseReason != reason {
		if _, err := s.store.SetStatus(ctx, workspaceID, workspace.StatusPaused, reason, s.clock().UTC()); err != nil {
			return Report{}, fmt.Errorf("lifecycle: set paused: %w", err)
		}
		logger.From(ctx).Info("workspace paused", "workspace_id", workspaceID, "pause_reason", reason, "actor", actor)
	}
	return s.EnforcePause(ctx, workspaceID)
}

// Resume reactivates a manually paused workspace and rebinds its numbers.
// A billing hold (hard_cap, past_due) refuses the request without error;
// only billing can lift it.
func (s *Service) Resume(ctx context.Context, workspaceID, actor string) (Report, error) {
	if workspaceID == "" {
		return Report{}, ErrInvalidArgument
	}
	ws, err := s.store.Get(ctx, workspaceID)
	if err != nil {
		return Report{}, fmt.Errorf("lifecycle: load workspace: %w", err)
	}
	if ws.Status == workspace.StatusPaused && ws.PauseReason.BillingHold() {
		logger.From(ctx).Info("resume refused during billing hold", "workspace_id", workspaceID, "pause_reason", ws.PauseReason, "actor", actor)
		rep := Report{
			WorkspaceID: ws.ID,
			Operation:   OperationResume,
			Status:      ws.Status,
			PauseReason: ws.PauseReason,
			Refused:     true,
		}
		s.logAudit(ctx, ws.ID, audit.EventTypeResumeRefused, actor, "resume refused: "+string(ws.PauseReason), nil)
		return rep, nil
	}
	if ws.Status != workspace.StatusActive {
		if _, err := s.store.SetStatus(ctx, workspaceID, workspace.StatusActive, workspace.PauseReasonNone, s.clock().UTC()); err != nil {
			return Report{}, fmt.Errorf("lifecycle: set active: %w", err)
		}
		logger.From(ctx).Info("workspace resumed", "workspace_id", workspaceID, "actor", actor)
	}
	return s.EnforceResume(ctx, workspaceID)
}
