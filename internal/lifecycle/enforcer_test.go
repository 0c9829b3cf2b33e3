package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-agent-platform/internal/audit"
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

func newFixture(t *testing.T, status workspace.Status, reason workspace.PauseReason) fixture {
	t.Helper()
	repo := workspace.NewMemoryRepo()
	repo.Put(workspace.Workspace{ID: "w", PlanCode: "growth", Status: status, PauseReason: reason})
	repo.PutPhoneNumber(workspace.PhoneNumber{ID: "pn-1", WorkspaceID: "w", ProviderNumberID: "prov-1", Number: "+15550000001"})
	repo.PutPhoneNumber(workspace.PhoneNumber{ID: "pn-2", WorkspaceID: "w", ProviderNumberID: "prov-2", Number: "+15550000002"})

	cp := telephony.NewMemoryControlPlane()
	cp.Put(telephony.Binding{ProviderNumberID: "prov-1", AssistantID: "asst-a"})
	cp.Put(telephony.Binding{ProviderNumberID: "prov-2", AssistantID: "asst-b"})

	auditRepo := audit.NewMemoryRepo()
	svc := NewService(NewEnforcer(repo, cp, audit.NewService(auditRepo)))
	return fixture{repo: repo, cp: cp, audit: auditRepo, svc: svc}
}

func backups(t *testing.T, repo *workspace.MemoryRepo) map[string]string {
	t.Helper()
	nums, err := repo.ListPhoneNumbers(context.Background(), "w")
	if err != nil {
		t.Fatalf("list numbers: %v", err)
	}
	out := map[string]string{}
	for _, p := range nums {
		out[p.ID] = p.BackupAssistantID
	}
	return out
}

func binding(t *testing.T, cp *telephony.MemoryControlPlane, id string) string {
	t.Helper()
	b, err := cp.GetPhoneNumber(context.Background(), id)
	if err != nil {
		t.Fatalf("get binding: %v", err)
	}
	return b.AssistantID
}

func TestEnforcePause_UnbindsAndCachesBackups(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonPastDue)
	ctx := context.Background()

	rep, err := f.svc.EnforcePause(ctx, "w")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if rep.Skipped || len(rep.Numbers) != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	for _, o := range rep.Numbers {
		if o.Action != ActionUnbound {
			t.Fatalf("expected unbound, got %+v", o)
		}
	}
	if binding(t, f.cp, "prov-1") != "" || binding(t, f.cp, "prov-2") != "" {
		t.Fatalf("expected both numbers unbound")
	}
	b := backups(t, f.repo)
	if b["pn-1"] != "asst-a" || b["pn-2"] != "asst-b" {
		t.Fatalf("unexpected backups: %v", b)
	}
}

func TestEnforcePause_SecondCallIsNoOp(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonManual)
	ctx := context.Background()

	if _, err := f.svc.EnforcePause(ctx, "w"); err != nil {
		t.Fatalf("first pause: %v", err)
	}
	writes := len(f.cp.Writes())

	rep, err := f.svc.EnforcePause(ctx, "w")
	if err != nil {
		t.Fatalf("second pause: %v", err)
	}
	if got := len(f.cp.Writes()); got != writes {
		t.Fatalf("expected no control-plane writes on second pause, got %d new", got-writes)
	}
	for _, o := range rep.Numbers {
		if o.Action != ActionAlreadyUnbound {
			t.Fatalf("expected already_unbound, got %+v", o)
		}
	}
	if b := backups(t, f.repo); b["pn-1"] != "asst-a" {
		t.Fatalf("backup changed: %v", b)
	}
}

func TestEnforcePause_NeverOverwritesBackup(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonManual)
	ctx := context.Background()
	if _, err := f.svc.EnforcePause(ctx, "w"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Someone rebinds a different assistant at the provider while paused.
	f.cp.Put(telephony.Binding{ProviderNumberID: "prov-1", AssistantID: "asst-intruder"})
	if _, err := f.svc.EnforcePause(ctx, "w"); err != nil {
		t.Fatalf("pause again: %v", err)
	}
	if binding(t, f.cp, "prov-1") != "" {
		t.Fatalf("expected rebound number to be unbound again")
	}
	if b := backups(t, f.repo); b["pn-1"] != "asst-a" {
		t.Fatalf("expected original backup kept, got %v", b)
	}
}

func TestEnforcePause_PropagatesPartialFailure(t *testing.T) {
	reader := telemetrytest.NewReader(t)
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonHardCap)
	f.cp.FailSet("prov-2", telephony.ErrUnavailable)

	rep, err := f.svc.EnforcePause(context.Background(), "w")
	if !errors.Is(err, ErrEnforcementIncomplete) {
		t.Fatalf("expected ErrEnforcementIncomplete, got %v", err)
	}
	if !errors.Is(err, telephony.ErrUnavailable) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if rep.Failed() != 1 {
		t.Fatalf("expected one failed number, got %+v", rep.Numbers)
	}
	if binding(t, f.cp, "prov-1") != "" {
		t.Fatalf("expected the healthy number to be unbound")
	}
	if binding(t, f.cp, "prov-2") != "asst-b" {
		t.Fatalf("expected the failing number to still be bound")
	}
	if got := telemetrytest.Sum(t, reader, "lifecycle_enforcement_failures_total"); got != 1 {
		t.Fatalf("expected 1 failure recorded, got %d", got)
	}
	evs := f.audit.Events()
	if len(evs) == 0 || evs[len(evs)-1].Type != audit.EventTypeEnforcementFail {
		t.Fatalf("expected enforcement_failed audit event, got %+v", evs)
	}

	// A retry after the provider recovers converges.
	f.cp.FailSet("prov-2", nil)
	if _, err := f.svc.EnforcePause(context.Background(), "w"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if binding(t, f.cp, "prov-2") != "" {
		t.Fatalf("expected retry to unbind")
	}
}

func TestEnforcePause_BackupFailureKeepsNumberBound(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonManual)
	f.repo.SaveBackupErr = errors.New("db down")

	_, err := f.svc.EnforcePause(context.Background(), "w")
	if !errors.Is(err, ErrEnforcementIncomplete) {
		t.Fatalf("expected ErrEnforcementIncomplete, got %v", err)
	}
	if len(f.cp.Writes()) != 0 {
		t.Fatalf("must not unbind without a saved backup")
	}
}

func TestEnforcePause_SkipsWhenNotPausedOrInvalid(t *testing.T) {
	f := newFixture(t, workspace.StatusActive, workspace.PauseReasonNone)
	rep, err := f.svc.EnforcePause(context.Background(), "w")
	if err != nil || !rep.Skipped || rep.SkipReason != skipNotPaused {
		t.Fatalf("expected not_paused skip, got %+v %v", rep, err)
	}

	f = newFixture(t, workspace.StatusPaused, "")
	rep, err = f.svc.EnforcePause(context.Background(), "w")
	if err != nil || !rep.Skipped || rep.SkipReason != skipInvalidReason {
		t.Fatalf("expected invalid reason skip, got %+v %v", rep, err)
	}
	if len(f.cp.Writes()) != 0 {
		t.Fatalf("expected no writes")
	}
}

func TestEnforceResume_RestoresAndClearsBackups(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonManual)
	ctx := context.Background()
	if _, err := f.svc.EnforcePause(ctx, "w"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.repo.SetStatus(ctx, "w", workspace.StatusActive, workspace.PauseReasonNone, f.svc.clock()); err != nil {
		t.Fatalf("activate: %v", err)
	}

	rep, err := f.svc.EnforceResume(ctx, "w")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(rep.Numbers) != 2 {
		t.Fatalf("expected 2 numbers restored, got %+v", rep)
	}
	if binding(t, f.cp, "prov-1") != "asst-a" || binding(t, f.cp, "prov-2") != "asst-b" {
		t.Fatalf("expected original assistants restored")
	}
	if b := backups(t, f.repo); b["pn-1"] != "" || b["pn-2"] != "" {
		t.Fatalf("expected backups cleared, got %v", b)
	}

	writes := len(f.cp.Writes())
	rep, err = f.svc.EnforceResume(ctx, "w")
	if err != nil || len(rep.Numbers) != 0 {
		t.Fatalf("expected empty second resume, got %+v %v", rep, err)
	}
	if len(f.cp.Writes()) != writes {
		t.Fatalf("expected no writes on second resume")
	}
}

func TestEnforceResume_KeepsBackupWhenRebindFails(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonManual)
	ctx := context.Background()
	if _, err := f.svc.EnforcePause(ctx, "w"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, _ = f.repo.SetStatus(ctx, "w", workspace.StatusActive, workspace.PauseReasonNone, f.svc.clock())
	f.cp.FailSet("prov-1", errors.New("boom"))

	_, err := f.svc.EnforceResume(ctx, "w")
	if !errors.Is(err, ErrEnforcementIncomplete) {
		t.Fatalf("expected ErrEnforcementIncomplete, got %v", err)
	}
	if b := backups(t, f.repo); b["pn-1"] != "asst-a" || b["pn-2"] != "" {
		t.Fatalf("expected only the failed number to keep its backup, got %v", b)
	}
}

func TestEnforceResume_AlreadyBoundJustClears(t *testing.T) {
	f := newFixture(t, workspace.StatusActive, workspace.PauseReasonNone)
	ctx := context.Background()
	if _, err := f.repo.SaveBackup(ctx, "w", "pn-1", "asst-a", f.svc.clock()); err != nil {
		t.Fatalf("seed backup: %v", err)
	}
	rep, err := f.svc.EnforceResume(ctx, "w")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(rep.Numbers) != 1 || rep.Numbers[0].Action != ActionAlreadyBound {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(f.cp.Writes()) != 0 {
		t.Fatalf("expected no provider write")
	}
}

func TestEnforceResume_SkipsWhilePaused(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonPastDue)
	ctx := context.Background()
	if _, err := f.svc.EnforcePause(ctx, "w"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	rep, err := f.svc.EnforceResume(ctx, "w")
	if err != nil || !rep.Skipped {
		t.Fatalf("expected skip, got %+v %v", rep, err)
	}
	if binding(t, f.cp, "prov-1") != "" {
		t.Fatalf("expected number to stay unbound")
	}
}

func TestReconcile_DispatchesOnStatus(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonManual)
	ctx := context.Background()
	rep, err := f.svc.Reconcile(ctx, "w")
	if err != nil || rep.Operation != OperationPause {
		t.Fatalf("expected pause pass, got %+v %v", rep, err)
	}
	_, _ = f.repo.SetStatus(ctx, "w", workspace.StatusActive, workspace.PauseReasonNone, f.svc.clock())
	rep, err = f.svc.Reconcile(ctx, "w")
	if err != nil || rep.Operation != OperationResume {
		t.Fatalf("expected resume pass, got %+v %v", rep, err)
	}
	if binding(t, f.cp, "prov-1") != "asst-a" {
		t.Fatalf("expected binding restored")
	}
}

func TestEnforce_UnknownWorkspace(t *testing.T) {
	f := newFixture(t, workspace.StatusActive, workspace.PauseReasonNone)
	if _, err := f.svc.EnforcePause(context.Background(), "missing"); !errors.Is(err, workspace.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// replayingControlPlane acknowledges writes for keys it has seen before
// without applying them, returning the binding as it currently stands.
type replayingControlPlane struct {
	*telephony.MemoryControlPlane
	seen map[string]bool
}

func (r *replayingControlPlane) SetAssistant(ctx context.Context, providerNumberID, assistantID, key string) (telephony.Binding, error) {
	if r.seen[key] {
		return r.GetPhoneNumber(ctx, providerNumberID)
	}
	r.seen[key] = true
	return r.MemoryControlPlane.SetAssistant(ctx, providerNumberID, assistantID, key)
}

func TestEnforce_ReplayedWriteIsNotTrusted(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonPastDue)
	cp := &replayingControlPlane{MemoryControlPlane: f.cp, seen: map[string]bool{}}
	e := NewEnforcer(f.repo, cp, audit.NewService(f.audit))
	ctx := context.Background()

	if _, err := e.EnforcePause(ctx, "w"); err != nil {
		t.Fatalf("first pause: %v", err)
	}
	if _, err := f.repo.SetStatus(ctx, "w", workspace.StatusActive, workspace.PauseReasonNone, time.Now()); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := e.EnforceResume(ctx, "w"); err != nil {
		t.Fatalf("first resume: %v", err)
	}
	if _, err := f.repo.SetStatus(ctx, "w", workspace.StatusPaused, workspace.PauseReasonPastDue, time.Now()); err != nil {
		t.Fatalf("set paused: %v", err)
	}

	// Second cycle reuses the unbind keys; the provider replays the old
	// acknowledgement and leaves the numbers bound.
	rep, err := e.EnforcePause(ctx, "w")
	if !errors.Is(err, ErrEnforcementIncomplete) || !errors.Is(err, telephony.ErrBindingMismatch) {
		t.Fatalf("expected binding mismatch, got %v", err)
	}
	if rep.Failed() != 2 {
		t.Fatalf("expected both numbers failed, got %+v", rep.Numbers)
	}
	if binding(t, f.cp, "prov-1") != "asst-a" {
		t.Fatalf("fake should still have the number bound")
	}
	if b := backups(t, f.repo); b["pn-1"] != "asst-a" || b["pn-2"] != "asst-b" {
		t.Fatalf("backups must be kept for the retry, got %+v", b)
	}
}

func TestEnforce_EmptyWriteResponseIsConfirmedByRead(t *testing.T) {
	f := newFixture(t, workspace.StatusPaused, workspace.PauseReasonManual)
	cp := &blankResponseControlPlane{MemoryControlPlane: f.cp}
	e := NewEnforcer(f.repo, cp, audit.NewService(f.audit))
	ctx := context.Background()

	if _, err := e.EnforcePause(ctx, "w"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.repo.SetStatus(ctx, "w", workspace.StatusActive, workspace.PauseReasonNone, time.Now()); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := e.EnforceResume(ctx, "w"); err != nil {
		t.Fatalf("resume with blank write responses: %v", err)
	}
	if binding(t, f.cp, "prov-1") != "asst-a" {
		t.Fatalf("expected number rebound")
	}
}

// blankResponseControlPlane applies writes but answers with an empty body.
type blankResponseControlPlane struct {
	*telephony.MemoryControlPlane
}

func (b *blankResponseControlPlane) SetAssistant(ctx context.Context, providerNumberID, assistantID, key string) (telephony.Binding, error) {
	if _, err := b.MemoryControlPlane.SetAssistant(ctx, providerNumberID, assistantID, key); err != nil {
		return telephony.Binding{}, err
	}
	return telephony.Binding{ProviderNumberID: providerNumberID}, nil
}
