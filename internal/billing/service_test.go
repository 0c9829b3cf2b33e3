package billing

import (
	"context"
	"errors"
	"testing"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/internal/workspace"
	"voice-agent-platform/pkg/telemetry/telemetrytest"
)

type fixture struct {
	repo  *workspace.MemoryRepo
	cp    *telephony.MemoryControlPlane
	audit *audit.MemoryRepo
	svc   *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := workspace.NewMemoryRepo()
	repo.Put(workspace.Workspace{ID: "w", PlanCode: "starter", Status: workspace.StatusActive, PauseReason: workspace.PauseReasonNone})
	repo.PutPhoneNumber(workspace.PhoneNumber{ID: "pn-1", WorkspaceID: "w", ProviderNumberID: "prov-1"})

	cp := telephony.NewMemoryControlPlane()
	cp.Put(telephony.Binding{ProviderNumberID: "prov-1", AssistantID: "asst-a"})

	auditRepo := audit.NewMemoryRepo()
	auditor := audit.NewService(auditRepo)
	enf := lifecycle.NewEnforcer(repo, cp, auditor)
	return fixture{repo: repo, cp: cp, audit: auditRepo, svc: NewService(NewMemoryStore(repo), enf, auditor)}
}

func pastDue(id string) Event {
	return Event{ID: id, Type: EventStatusChanged, WorkspaceID: "w", Status: workspace.StatusPaused, PauseReason: workspace.PauseReasonPastDue}
}

func bindingOf(t *testing.T, cp *telephony.MemoryControlPlane) string {
	t.Helper()
	b, err := cp.GetPhoneNumber(context.Background(), "prov-1")
	if err != nil {
		t.Fatalf("get binding: %v", err)
	}
	return b.AssistantID
}

func TestHandle_StatusChangePausesAndEnforces(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.Handle(context.Background(), pastDue("evt-1"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Duplicate || out.Workspace.Status != workspace.StatusPaused || out.Workspace.PauseReason != workspace.PauseReasonPastDue {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Enforcement == nil || out.Enforcement.Operation != lifecycle.OperationPause {
		t.Fatalf("expected pause enforcement, got %+v", out.Enforcement)
	}
	if bindingOf(t, f.cp) != "" {
		t.Fatalf("expected number unbound")
	}
}

func TestHandle_DuplicateIsNotReapplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Handle(ctx, pastDue("evt-1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// Ops lifted the hold out of band; a redelivery must not re-pause.
	if _, err := f.repo.SetStatus(ctx, "w", workspace.StatusActive, "", f.svc.clock()); err != nil {
		t.Fatalf("set status: %v", err)
	}

	out, err := f.svc.Handle(ctx, pastDue("evt-1"))
	if err != nil {
		t.Fatalf("handle duplicate: %v", err)
	}
	if !out.Duplicate || out.Workspace.Status != workspace.StatusActive {
		t.Fatalf("expected duplicate with current state, got %+v", out)
	}
	if out.Enforcement.Operation != lifecycle.OperationResume || bindingOf(t, f.cp) != "asst-a" {
		t.Fatalf("expected reconcile to restore the binding, got %+v", out.Enforcement)
	}
}

func TestHandle_DuplicateRetriesFailedEnforcement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cp.FailSet("prov-1", telephony.ErrUnavailable)

	out, err := f.svc.Handle(ctx, pastDue("evt-1"))
	if !errors.Is(err, lifecycle.ErrEnforcementIncomplete) {
		t.Fatalf("expected enforcement error, got %v", err)
	}
	if out.Enforcement == nil || out.Enforcement.Failed() != 1 {
		t.Fatalf("expected report with failure, got %+v", out.Enforcement)
	}

	f.cp.FailSet("prov-1", nil)
	out, err = f.svc.Handle(ctx, pastDue("evt-1"))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !out.Duplicate || bindingOf(t, f.cp) != "" {
		t.Fatalf("expected redelivery to finish the pause, got %+v", out)
	}
}

func TestHandle_PlanAndAddonChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Handle(ctx, Event{ID: "evt-plan", Type: EventPlanChanged, WorkspaceID: "w", PlanCode: "scale"})
	if err != nil || out.Workspace.PlanCode != "scale" {
		t.Fatalf("plan change: %+v err=%v", out, err)
	}
	_, err = f.svc.Handle(ctx, Event{ID: "evt-addon", Type: EventAddonChanged, WorkspaceID: "w", AddonKey: "extra_concurrency", Quantity: 2, AddonStatus: workspace.AddonStatusActive})
	if err != nil {
		t.Fatalf("addon change: %v", err)
	}
	addons, err := f.repo.ListAddons(ctx, "w")
	if err != nil || len(addons) != 1 || addons[0].Quantity != 2 {
		t.Fatalf("expected addon stored, got %+v err=%v", addons, err)
	}
	if bindingOf(t, f.cp) != "asst-a" {
		t.Fatalf("active workspace binding must be untouched")
	}
}

func TestHandle_RejectsInvalidEvents(t *testing.T) {
	f := newFixture(t)
	tests := []Event{
		{Type: EventPlanChanged, WorkspaceID: "w", PlanCode: "scale"},
		{ID: "e", Type: EventPlanChanged, PlanCode: "scale"},
		{ID: "e", Type: "refund", WorkspaceID: "w"},
		{ID: "e", Type: EventStatusChanged, WorkspaceID: "w", Status: workspace.StatusPaused},
		{ID: "e", Type: EventStatusChanged, WorkspaceID: "w", Status: "deleted"},
		{ID: "e", Type: EventPlanChanged, WorkspaceID: "w"},
		{ID: "e", Type: EventAddonChanged, WorkspaceID: "w", AddonKey: "x", Quantity: -1, AddonStatus: workspace.AddonStatusActive},
		{ID: "e", Type: EventAddonChanged, WorkspaceID: "w", AddonKey: "x", AddonStatus: "gone"},
		{ID: "e", Type: EventPlanChanged, WorkspaceID: "missing", PlanCode: "scale"},
	}
	for _, ev := range tests {
		if _, err := f.svc.Handle(context.Background(), ev); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("expected ErrInvalidEvent for %+v, got %v", ev, err)
		}
	}
}

func TestHandle_AuditsAppliedEventsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Handle(ctx, Event{ID: "evt-plan", Type: EventPlanChanged, WorkspaceID: "w", PlanCode: "growth"}); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	n := 0
	for _, e := range f.audit.Events() {
		if e.Type == audit.EventTypeBillingApplied {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected 1 billing audit event, got %d", n)
	}
}

func TestHandle_CountsByResult(t *testing.T) {
	reader := telemetrytest.NewReader(t)
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.svc.Handle(ctx, Event{ID: "a", Type: EventPlanChanged, WorkspaceID: "w", PlanCode: "growth"})
	_, _ = f.svc.Handle(ctx, Event{ID: "a", Type: EventPlanChanged, WorkspaceID: "w", PlanCode: "growth"})
	_, _ = f.svc.Handle(ctx, Event{Type: EventPlanChanged})

	if got := telemetrytest.Sum(t, reader, "billing_events_total"); got != 3 {
		t.Fatalf("expected 3 counted events, got %d", got)
	}
}
