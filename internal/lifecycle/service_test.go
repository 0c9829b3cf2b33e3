package lifecycle

import (
	"context"
	"errors"
	"testing"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/workspace"
)

func TestPause_SetsStatusAndUnbinds(t *testing.T) {
	f := newFixture(t, workspace.StatusActive, workspace.PauseReasonNone)
	ctx := context.Background()

	rep, err := f.svc.Pause(ctx, "w", "", "operator:ops")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if rep.Status != workspace.StatusPaused || rep.PauseReason != workspace.PauseReasonManual {
		t.Fatalf("expected manual pause, got %+v", rep)
	}
	if binding(t, f.cp, "prov-1") != "" {
		t.Fatalf("expected unbound")
	}
}

func TestPause_KeepsBillingHoldReason(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonPastDue)
	rep, err := f.svc.Pause(context.Background(), "w", workspace.PauseReasonManual, "operator:ops")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if rep.PauseReason != workspace.PauseReasonPastDue {
		t.Fatalf("expected past_due kept, got %s", rep.PauseReason)
	}
}

func TestPause_RejectsUnknownReason(t *testing.T) {
	f := newFixture(t, workspace.StatusActive, workspace.PauseReasonNone)
	if _, err := f.svc.Pause(context.Background(), "w", "vacation", "op"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestPause_BillingReasonsAreNotOperatorOwned(t *testing.T) {
	for _, reason := range []workspace.PauseReason{workspace.PauseReasonHardCap, workspace.PauseReasonPastDue} {
		f := newFixture(t, workspace.StatusActive, workspace.PauseReasonNone)
		ctx := context.Background()

		if _, err := f.svc.Pause(ctx, "w", reason, "operator:ops"); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", reason, err)
		}
		ws, _ := f.repo.Get(ctx, "w")
		if ws.Status != workspace.StatusActive || ws.PauseReason.BillingHold() {
			t.Fatalf("%s: workspace state changed: %+v", reason, ws)
		}
		if binding(t, f.cp, "prov-1") == "" {
			t.Fatalf("%s: number must stay bound", reason)
		}
		if len(f.cp.Writes()) != 0 {
			t.Fatalf("%s: expected no control-plane writes", reason)
		}
	}
}

func TestResume_RefusedDuringBillingHold(t *testing.T) {
	for _, reason := range []workspace.PauseReason{workspace.PauseReasonHardCap, workspace.PauseReasonPastDue} {
		f := newFixture(t, workspace.StatusPaused, reason)
		ctx := context.Background()
		if _, err := f.svc.EnforcePause(ctx, "w"); err != nil {
			t.Fatalf("pause: %v", err)
		}

		rep, err := f.svc.Resume(ctx, "w", "operator:ops")
		if err != nil {
			t.Fatalf("%s: expected refusal without error, got %v", reason, err)
		}
		if !rep.Refused {
			t.Fatalf("%s: expected refused report, got %+v", reason, rep)
		}
		ws, _ := f.repo.Get(ctx, "w")
		if ws.Status != workspace.StatusPaused {
			t.Fatalf("%s: status must not change", reason)
		}
		if binding(t, f.cp, "prov-1") != "" {
			t.Fatalf("%s: numbers must stay unbound", reason)
		}
		evs := f.audit.Events()
		if evs[len(evs)-1].Type != audit.EventTypeResumeRefused {
			t.Fatalf("%s: expected resume_refused audit event", reason)
		}
	}
}

func TestResume_ManualPauseRestores(t *testing.T) {
	f := newFixture(t, workspace.StatusActive, workspace.PauseReasonNone)
	ctx := context.Background()
	if _, err := f.svc.Pause(ctx, "w", workspace.PauseReasonManual, "op"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	rep, err := f.svc.Resume(ctx, "w", "op")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if rep.Refused || rep.Status != workspace.StatusActive {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if binding(t, f.cp, "prov-1") != "asst-a" || binding(t, f.cp, "prov-2") != "asst-b" {
		t.Fatalf("expected bindings restored")
	}
}
