package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/internal/workspace"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

// Reconciler is satisfied by *lifecycle.Enforcer.
type Reconciler interface {
	Reconcile(ctx context.Context, workspaceID string) (lifecycle.Report, error)
}

// Auditor is satisfied by *audit.Service.
type Auditor interface {
	LogEnforcement(ctx context.Context, workspaceID string, typ audit.EventType, actor, message string, details any) error
}

// Service ingests billing events and drives enforcement from the stored result.
type Service struct {
	store      Store
	reconciler Reconciler
	audit      Auditor
	clock      func() time.Time

	events *telemetry.Counter
}

// NewService builds a Service. auditor may be nil.
func NewService(store Store, reconciler Reconciler, auditor Auditor) *Service {
	return &Service{
		store:      store,
		reconciler: reconciler,
		audit:      auditor,
		clock:      time.Now,
		events: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "billing_events_total",
			Description: "Billing events received by type and result",
			Unit:        "{event}",
		}),
	}
}

// Handle applies ev once and then reconciles provider bindings. Duplicates are
// not re-applied but still reconcile, so a redelivery after a failed
// enforcement retries it. Enforcement errors are returned with the outcome.
func (s *Service) Handle(ctx context.Context, ev Event) (Outcome, error) {
	if err := ev.validate(); err != nil {
		s.events.Inc(ctx, attribute.String("type", string(ev.Type)), attribute.String("result", "invalid"))
		return Outcome{}, err
	}
	log := logger.From(ctx).With("workspace_id", ev.WorkspaceID, "billing_event_id", ev.ID, "billing_event_type", ev.Type)
	ctx = logger.With(ctx, log)

	now := s.clock().UTC()
	ws, dup, err := s.store.Apply(ctx, ev, now)
	if err != nil {
		s.events.Inc(ctx, attribute.String("type", string(ev.Type)), attribute.String("result", "error"))
		if errors.Is(err, workspace.ErrNotFound) || errors.Is(err, workspace.ErrInvalidArgument) {
			return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		return Outcome{}, fmt.Errorf("billing: apply: %w", err)
	}
	out := Outcome{EventID: ev.ID, WorkspaceID: ev.WorkspaceID, Duplicate: dup, Workspace: ws}

	result := "applied"
	if dup {
		result = "duplicate"
		log.Info("billing event already applied")
	} else {
		log.Info("billing event applied", "status", ws.Status, "pause_reason", ws.PauseReason, "plan_code", ws.PlanCode)
		if s.audit != nil {
			if err := s.audit.LogEnforcement(ctx, ev.WorkspaceID, audit.EventTypeBillingApplied, "billing", string(ev.Type), ev); err != nil {
				log.Warn("audit append failed", "err", err)
			}
		}
	}
	s.events.Inc(ctx, attribute.String("type", string(ev.Type)), attribute.String("result", result))

	rep, err := s.reconciler.Reconcile(ctx, ev.WorkspaceID)
	out.Enforcement = &rep
	if err != nil {
		return out, fmt.Errorf("billing: enforce: %w", err)
	}
	return out, nil
}
