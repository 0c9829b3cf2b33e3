package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/internal/workspace"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

// Store is the datastore side: intended state plus cached backups.
type Store interface {
	Get(ctx context.Context, id string) (workspace.Workspace, error)
	SetStatus(ctx context.Context, id string, status workspace.Status, reason workspace.PauseReason, now time.Time) (workspace.Workspace, error)
	workspace.PhoneNumberRepository
}

// Auditor is satisfied by *audit.Service.
type Auditor interface {
	LogEnforcement(ctx context.Context, workspaceID string, typ audit.EventType, actor, message string, details any) error
}

// Enforcer drives provider bindings toward the stored workspace status.
// The datastore is the intended state; every pass re-reads it and re-reads
// each remote binding before writing, so passes are safe to repeat.
type Enforcer struct {
	store Store
	cp    telephony.ControlPlane
	audit Auditor
	clock func() time.Time

	failures *telemetry.Counter
}

// NewEnforcer builds an Enforcer. auditor may be nil.
func NewEnforcer(store Store, cp telephony.ControlPlane, auditor Auditor) *Enforcer {
	return &Enforcer{
		store: store,
		cp:    cp,
		audit: auditor,
		clock: time.Now,
		failures: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "lifecycle_enforcement_failures_total",
			Description: "Phone numbers an enforcement pass could not drive to the intended binding",
			Unit:        "{number}",
		}),
	}
}

// EnforcePause unbinds every bound number of a paused workspace, caching the
// current assistant first. An existing backup is never overwritten. Every
// number is attempted; failures are joined into an ErrEnforcementIncomplete.
func (e *Enforcer) EnforcePause(ctx context.Context, workspaceID string) (Report, error) {
	if workspaceID == "" {
		return Report{}, ErrInvalidArgument
	}
	log := logger.From(ctx).With("workspace_id", workspaceID, "operation", OperationPause)

	ws, err := e.store.Get(ctx, workspaceID)
	if err != nil {
		return Report{}, fmt.Errorf("lifecycle: load workspace: %w", err)
	}
	rep := Report{WorkspaceID: ws.ID, Operation: OperationPause, Status: ws.Status, PauseReason: ws.PauseReason}

	if ws.Status != workspace.StatusPaused {
		log.Info("workspace not paused, nothing to enforce", "status", ws.Status)
		rep.Skipped, rep.SkipReason = true, skipNotPaused
		return rep, nil
	}
	if !ws.PauseReason.Enforceable() {
		log.Warn("paused workspace has no valid pause reason, not enforcing", "pause_reason", ws.PauseReason)
		rep.Skipped, rep.SkipReason = true, skipInvalidReason
		return rep, nil
	}

	numbers, err := e.store.ListPhoneNumbers(ctx, ws.ID)
	if err != nil {
		return rep, fmt.Errorf("lifecycle: list phone numbers: %w", err)
	}

	var errs []error
	for _, p := range numbers {
		out, err := e.pauseNumber(ctx, ws.ID, p)
		rep.Numbers = append(rep.Numbers, out)
		if err != nil {
			errs = append(errs, fmt.Errorf("phone number %s: %w", p.ID, err))
		}
	}
	return rep, e.finish(ctx, rep, errs)
}

func (e *Enforcer) pauseNumber(ctx context.Context, workspaceID string, p workspace.PhoneNumber) (NumberOutcome, error) {
	out := NumberOutcome{PhoneNumberID: p.ID, ProviderNumberID: p.ProviderNumberID}
	fail := func(err error) (NumberOutcome, error) {
		out.Action, out.Error = ActionFailed, err.Error()
		return out, err
	}

	b, err := e.cp.GetPhoneNumber(ctx, p.ProviderNumberID)
	if err != nil {
		return fail(fmt.Errorf("read binding: %w", err))
	}
	if !b.Bound() {
		out.Action, out.AssistantID = ActionAlreadyUnbound, p.BackupAssistantID
		return out, nil
	}

	// The restore point must be durable before the number goes dark.
	backup, err := e.store.SaveBackup(ctx, workspaceID, p.ID, b.AssistantID, e.clock().UTC())
	if err != nil {
		return fail(fmt.Errorf("save backup: %w", err))
	}
	out.AssistantID = backup

	key := telephony.IdempotencyKey(workspaceID, p.ID, "")
	got, err := e.cp.SetAssistant(ctx, p.ProviderNumberID, "", key)
	if err != nil {
		return fail(fmt.Errorf("unbind: %w", err))
	}
	if err := e.confirm(ctx, p.ProviderNumberID, got, ""); err != nil {
		return fail(fmt.Errorf("unbind: %w", err))
	}
	out.Action = ActionUnbound
	return out, nil
}

// EnforceResume rebinds every cached backup of an active workspace. A backup
// is cleared only after the provider confirms the binding. A workspace that is
// not active is left alone; resume follows status, it never overrides it.
func (e *Enforcer) EnforceResume(ctx context.Context, workspaceID string) (Report, error) {
	if workspaceID == "" {
		return Report{}, ErrInvalidArgument
	}
	log := logger.From(ctx).With("workspace_id", workspaceID, "operation", OperationResume)

	ws, err := e.store.Get(ctx, workspaceID)
	if err != nil {
		return Report{}, fmt.Errorf("lifecycle: load workspace: %w", err)
	}
	rep := Report{WorkspaceID: ws.ID, Operation: OperationResume, Status: ws.Status, PauseReason: ws.PauseReason}

	if !ws.Active() {
		log.Info("workspace not active, not resuming", "status", ws.Status, "pause_reason", ws.PauseReason)
		rep.Skipped, rep.SkipReason = true, skipNotActive
		return rep, nil
	}

	numbers, err := e.store.ListPhoneNumbers(ctx, ws.ID)
	if err != nil {
		return rep, fmt.Errorf("lifecycle: list phone numbers: %w", err)
	}

	var errs []error
	for _, p := range numbers {
		if p.BackupAssistantID == "" {
			continue
		}
		out, err := e.resumeNumber(ctx, ws.ID, p)
		rep.Numbers = append(rep.Numbers, out)
		if err != nil {
			errs = append(errs, fmt.Errorf("phone number %s: %w", p.ID, err))
		}
	}
	return rep, e.finish(ctx, rep, errs)
}

func (e *Enforcer) resumeNumber(ctx context.Context, workspaceID string, p workspace.PhoneNumber) (NumberOutcome, error) {
	out := NumberOutcome{PhoneNumberID: p.ID, ProviderNumberID: p.ProviderNumberID, AssistantID: p.BackupAssistantID}
	fail := func(err error) (NumberOutcome, error) {
		out.Action, out.Error = ActionFailed, err.Error()
		return out, err
	}

	b, err := e.cp.GetPhoneNumber(ctx, p.ProviderNumberID)
	if err != nil {
		return fail(fmt.Errorf("read binding: %w", err))
	}
	out.Action = ActionAlreadyBound
	if b.AssistantID != p.BackupAssistantID {
		key := telephony.IdempotencyKey(workspaceID, p.ID, p.BackupAssistantID)
		got, err := e.cp.SetAssistant(ctx, p.ProviderNumberID, p.BackupAssistantID, key)
		if err != nil {
			return fail(fmt.Errorf("rebind: %w", err))
		}
		if err := e.confirm(ctx, p.ProviderNumberID, got, p.BackupAssistantID); err != nil {
			return fail(fmt.Errorf("rebind: %w", err))
		}
		out.Action = ActionRebound
	}
	// Bound now; a failed clear is retried by the next pass, which sees the
	// binding already in place.
	if err := e.store.ClearBackup(ctx, workspaceID, p.ID, e.clock().UTC()); err != nil {
		return fail(fmt.Errorf("clear backup: %w", err))
	}
	return out, nil
}

// confirm checks that a write left the number bound to want. The same key is
// reused on every pause/resume cycle, so an acknowledged write whose response
// disagrees is re-read before it is trusted.
func (e *Enforcer) confirm(ctx context.Context, providerNumberID string, got telephony.Binding, want string) error {
	if got.AssistantID == want {
		return nil
	}
	b, err := e.cp.GetPhoneNumber(ctx, providerNumberID)
	if err != nil {
		return fmt.Errorf("confirm binding: %w", err)
	}
	if b.AssistantID != want {
		return fmt.Errorf("%w: want %q, provider has %q", telephony.ErrBindingMismatch, want, b.AssistantID)
	}
	return nil
}

// Reconcile reads the stored status and runs the matching pass.
func (e *Enforcer) Reconcile(ctx context.Context, workspaceID string) (Report, error) {
	if workspaceID == "" {
		return Report{}, ErrInvalidArgument
	}
	ws, err := e.store.Get(ctx, workspaceID)
	if err != nil {
		return Report{}, fmt.Errorf("lifecycle: load workspace: %w", err)
	}
	if ws.Status == workspace.StatusPaused {
		return e.EnforcePause(ctx, workspaceID)
	}
	return e.EnforceResume(ctx, workspaceID)
}

func (e *Enforcer) finish(ctx context.Context, rep Report, errs []error) error {
	log := logger.From(ctx).With("workspace_id", rep.WorkspaceID, "operation", rep.Operation)

	typ := audit.EventTypePauseEnforced
	if rep.Operation == OperationResume {
		typ = audit.EventTypeResumeEnforced
	}
	var err error
	if len(errs) > 0 {
		e.failures.Add(ctx, int64(len(errs)), attribute.String("operation", string(rep.Operation)))
		err = fmt.Errorf("%w: %d of %d numbers failed: %w", ErrEnforcementIncomplete, len(errs), len(rep.Numbers), errors.Join(errs...))
		typ = audit.EventTypeEnforcementFail
		log.Error("enforcement incomplete", "failed", len(errs), "numbers", len(rep.Numbers), "err", err)
	} else {
		log.Info("enforcement complete", "numbers", len(rep.Numbers))
	}
	e.logAudit(ctx, rep.WorkspaceID, typ, "lifecycle", string(rep.Operation), rep)
	return err
}

func (e *Enforcer) logAudit(ctx context.Context, workspaceID string, typ audit.EventType, actor, message string, details any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.LogEnforcement(ctx, workspaceID, typ, actor, message, details); err != nil {
		logger.From(ctx).Warn("audit append failed", "workspace_id", workspaceID, "type", typ, "err", err)
	}
}
