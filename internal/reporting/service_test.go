package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/limits"
	"voice-agent-platform/internal/workspace"
)

type fixedLeases map[string]int

func (l fixedLeases) ActiveLeaseCount(ctx context.Context, workspaceID string) (int, error) {
	return l[workspaceID], nil
}

func seedWorkspaces() *workspace.MemoryRepo {
	repo := workspace.NewMemoryRepo()
	repo.Put(workspace.Workspace{ID: "w", PlanCode: "growth", Status: workspace.StatusActive, PauseReason: workspace.PauseReasonNone})
	repo.Put(workspace.Workspace{ID: "p", PlanCode: "growth", Status: workspace.StatusPaused, PauseReason: workspace.PauseReasonHardCap})
	for _, id := range []string{"pn-1", "pn-2", "pn-3"} {
		repo.PutPhoneNumber(workspace.PhoneNumber{ID: id, WorkspaceID: "w", ProviderNumberID: "prov-" + id})
	}
	return repo
}

func TestCapacity(t *testing.T) {
	repo := seedWorkspaces()
	svc := NewService(repo, limits.NewCalculator(repo, limits.DefaultPlanTable()), fixedLeases{"w": 3, "p": 1}, calls.NewMemoryRepo())

	c, err := svc.Capacity(context.Background(), "w")
	if err != nil {
		t.Fatalf("capacity: %v", err)
	}
	if c.Limits.MaxConcurrentCalls != 4 || c.ActiveLeases != 3 || c.AvailableSlots != 1 {
		t.Fatalf("unexpected concurrency view: %+v", c)
	}
	if c.PhoneNumbers != 3 || c.PhoneNumbersOver != 1 {
		t.Fatalf("unexpected phone number view: %+v", c)
	}

	c, err = svc.Capacity(context.Background(), "p")
	if err != nil {
		t.Fatalf("capacity: %v", err)
	}
	if c.Status != workspace.StatusPaused || c.AvailableSlots != 0 || c.PauseReason != workspace.PauseReasonHardCap {
		t.Fatalf("paused workspace must show no headroom: %+v", c)
	}
}

func TestCapacity_Errors(t *testing.T) {
	repo := seedWorkspaces()
	svc := NewService(repo, limits.NewCalculator(repo, limits.DefaultPlanTable()), fixedLeases{}, calls.NewMemoryRepo())
	if _, err := svc.Capacity(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.Capacity(context.Background(), "missing"); !errors.Is(err, workspace.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOutcomeSummary_WorkspaceIsolation(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	callRepo := calls.NewMemoryRepo()
	ctx := context.Background()
	seed := []calls.Call{
		{CallID: "c1", WorkspaceID: "w", Outcome: calls.OutcomeCompleted, EndedAt: now},
		{CallID: "c2", WorkspaceID: "w", Outcome: calls.OutcomePartial, GuardrailRule: "repeat_slot", EndedAt: now},
		{CallID: "c3", WorkspaceID: "w", Outcome: calls.OutcomeAbandoned, GuardrailRule: "loop_cap", EndedAt: now},
		{CallID: "c4", WorkspaceID: "w", Outcome: calls.OutcomeCompleted, EndedAt: now.Add(-2 * time.Hour)},
		{CallID: "c5", WorkspaceID: "other", Outcome: calls.OutcomeCompleted, EndedAt: now},
	}
	for _, c := range seed {
		if err := callRepo.Upsert(ctx, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	repo := seedWorkspaces()
	svc := NewService(repo, limits.NewCalculator(repo, limits.DefaultPlanTable()), fixedLeases{}, callRepo)

	out, err := svc.OutcomeSummary(ctx, OutcomeSummaryRequest{WorkspaceID: "w", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if out.TotalCalls != 3 || out.CompletedCalls != 1 || out.PartialCalls != 1 || out.AbandonedCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.GuardrailTriggers["repeat_slot"] != 1 || out.GuardrailTriggers["loop_cap"] != 1 {
		t.Fatalf("unexpected triggers: %v", out.GuardrailTriggers)
	}
	if out.CompletionRate < 0.33 || out.CompletionRate > 0.34 {
		t.Fatalf("unexpected completion rate %f", out.CompletionRate)
	}
}

func TestOutcomeSummary_RejectsBadRange(t *testing.T) {
	svc := NewService(nil, nil, nil, calls.NewMemoryRepo())
	now := time.Now()
	tests := []OutcomeSummaryRequest{
		{Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{WorkspaceID: "w"},
		{WorkspaceID: "w", Range: TimeRange{From: now, To: now}},
	}
	for _, req := range tests {
		if _, err := svc.OutcomeSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}
