package reporting

import (
	"context"
	"errors"
	"fmt"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/limits"
	"voice-agent-platform/internal/workspace"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Workspaces is satisfied by the workspace repositories.
type Workspaces interface {
	Get(ctx context.Context, id string) (workspace.Workspace, error)
	ListPhoneNumbers(ctx context.Context, workspaceID string) ([]workspace.PhoneNumber, error)
}

// LimitSource is satisfied by *limits.Calculator.
type LimitSource interface {
	ComputeLimits(ctx context.Context, workspaceID string) (limits.Limits, error)
}

// LeaseCounter is satisfied by *lease.Manager.
type LeaseCounter interface {
	ActiveLeaseCount(ctx context.Context, workspaceID string) (int, error)
}

// CallLister is satisfied by calls.Repository. Implementations must filter by workspace.
type CallLister interface {
	List(ctx context.Context, f calls.ListFilter) ([]calls.Call, error)
}

type Service struct {
	workspaces Workspaces
	limits     LimitSource
	leases     LeaseCounter
	calls      CallLister
}

func NewService(workspaces Workspaces, lim LimitSource, leases LeaseCounter, callList CallLister) *Service {
	return &Service{workspaces: workspaces, limits: lim, leases: leases, calls: callList}
}

func (s *Service) Capacity(ctx context.Context, workspaceID string) (Capacity, error) {
	if workspaceID == "" {
		return Capacity{}, ErrInvalidRequest
	}
	ws, err := s.workspaces.Get(ctx, workspaceID)
	if err != nil {
		return Capacity{}, fmt.Errorf("reporting: load workspace: %w", err)
	}
	lim, err := s.limits.ComputeLimits(ctx, workspaceID)
	if err != nil {
		return Capacity{}, fmt.Errorf("reporting: limits: %w", err)
	}
	active, err := s.leases.ActiveLeaseCount(ctx, workspaceID)
	if err != nil {
		return Capacity{}, fmt.Errorf("reporting: active leases: %w", err)
	}
	numbers, err := s.workspaces.ListPhoneNumbers(ctx, workspaceID)
	if err != nil {
		return Capacity{}, fmt.Errorf("reporting: phone numbers: %w", err)
	}

	out := Capacity{
		WorkspaceID:    ws.ID,
		Status:         ws.Status,
		PauseReason:    ws.PauseReason,
		Limits:         lim,
		ActiveLeases:   active,
		AvailableSlots: max(lim.MaxConcurrentCalls-active, 0),
		PhoneNumbers:   len(numbers),
	}
	out.PhoneNumbersOver = max(out.PhoneNumbers-lim.IncludedPhoneNumbers, 0)
	return out, nil
}

func (s *Service) OutcomeSummary(ctx context.Context, req OutcomeSummaryRequest) (OutcomeSummary, error) {
	if req.WorkspaceID == "" || !req.Range.valid() {
		return OutcomeSummary{}, ErrInvalidRequest
	}
	rows, err := s.calls.List(ctx, calls.ListFilter{WorkspaceID: req.WorkspaceID, From: req.Range.From, To: req.Range.To})
	if err != nil {
		return OutcomeSummary{}, err
	}

	out := OutcomeSummary{WorkspaceID: req.WorkspaceID, Range: req.Range, GuardrailTriggers: map[string]int{}}
	for _, c := range rows {
		// Belt for repositories that ignore the filter.
		if c.WorkspaceID != req.WorkspaceID {
			continue
		}
		out.TotalCalls++
		switch c.Outcome {
		case calls.OutcomeCompleted:
			out.CompletedCalls++
		case calls.OutcomePartial:
			out.PartialCalls++
		case calls.OutcomeAbandoned:
			out.AbandonedCalls++
		}
		if c.GuardrailRule != "" {
			out.GuardrailTriggers[c.GuardrailRule]++
		}
	}
	if out.TotalCalls > 0 {
		out.CompletionRate = float64(out.CompletedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
