package calls

import (
	"context"
	"fmt"
	"time"

	"voice-agent-platform/internal/guardrail"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

// Guardrail is satisfied by *guardrail.Evaluator.
type Guardrail interface {
	Evaluate(ctx context.Context, cc guardrail.CallContext) guardrail.Result
}

// Artifacts looks up the fallback ticket linked to a call.
type Artifacts interface {
	FindByCall(ctx context.Context, callID string) (guardrail.Ticket, bool, error)
}

// LeaseReleaser is satisfied by *lease.Manager.
type LeaseReleaser interface {
	Release(ctx context.Context, workspaceID, externalCallID string) error
	ReleaseLease(ctx context.Context, workspaceID, leaseID string) error
}

// Finalizer classifies an ended call and persists the final record.
type Finalizer struct {
	guard     Guardrail
	artifacts Artifacts
	leases    LeaseReleaser
	repo      Repository
	clock     func() time.Time

	downgrades *telemetry.Counter
}

func NewFinalizer(guard Guardrail, artifacts Artifacts, leases LeaseReleaser, repo Repository) *Finalizer {
	return &Finalizer{
		guard:     guard,
		artifacts: artifacts,
		leases:    leases,
		repo:      repo,
		clock:     time.Now,
		downgrades: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "call_outcome_downgrades_total",
			Description: "Final call outcomes lowered by a classification rule",
			Unit:        "{call}",
		}),
	}
}

// Finalize runs the guardrail, applies the classification rules, releases the
// lease and upserts the call. Safe to repeat for the same call id.
func (f *Finalizer) Finalize(ctx context.Context, req EndRequest) (Call, error) {
	if req.CallID == "" || req.WorkspaceID == "" {
		return Call{}, ErrInvalidArgument
	}
	outcome := req.Outcome
	if outcome == "" {
		outcome = OutcomeCompleted
	}
	if !outcome.Valid() {
		return Call{}, fmt.Errorf("%w: outcome %q", ErrInvalidArgument, outcome)
	}

	log := logger.From(ctx).With("workspace_id", req.WorkspaceID, "call_id", req.CallID)
	ctx = logger.With(ctx, log)

	now := f.clock().UTC()
	c := Call{
		CallID:         req.CallID,
		WorkspaceID:    req.WorkspaceID,
		ExternalCallID: req.ExternalCallID,
		AssistantID:    req.AssistantID,
		PhoneCaptured:  req.PhoneCaptured,
		EmailCaptured:  req.EmailCaptured,
		UserTurns:      req.UserTurns,
		ToolCalls:      req.ToolCalls,
		EndedAt:        now,
		CreatedAt:      now,
	}
	if req.EndedAt != nil {
		c.EndedAt = req.EndedAt.UTC()
	}

	res := f.guard.Evaluate(ctx, guardrail.CallContext{
		CallID:      req.CallID,
		WorkspaceID: req.WorkspaceID,
		Transcript:  req.Transcript,
		UserTurns:   req.UserTurns,
		ToolCalls:   req.ToolCalls,
	})
	if res.MarkPartial && outcome == OutcomeCompleted {
		outcome = OutcomePartial
	}
	if res.Triggered() {
		c.GuardrailRule = string(res.Reason)
		c.ArtifactID = res.ArtifactID
	}

	if !req.PhoneCaptured && !req.EmailCaptured && outcome != OutcomeAbandoned {
		log.Info("no contact captured, capping outcome", "from", outcome, "to", OutcomeAbandoned)
		f.downgrades.Inc(ctx, attribute.String("reason", "missing_contact"))
		outcome = OutcomeAbandoned
	}

	if outcome == OutcomePartial {
		outcome = f.checkPartial(ctx, &c)
	}
	c.Outcome = outcome

	f.releaseLease(ctx, req)

	if err := f.repo.Upsert(ctx, c); err != nil {
		return Call{}, fmt.Errorf("calls: save: %w", err)
	}
	log.Info("call finalized", "outcome", c.Outcome, "guardrail_rule", c.GuardrailRule)
	return c, nil
}

// checkPartial downgrades partial to abandoned when no ticket backs it.
func (f *Finalizer) checkPartial(ctx context.Context, c *Call) Outcome {
	if c.ArtifactID != "" {
		return OutcomePartial
	}
	t, ok, err := f.artifacts.FindByCall(ctx, c.CallID)
	if err == nil && ok {
		c.ArtifactID = t.ID
		return OutcomePartial
	}
	logger.From(ctx).Warn("partial call without artifact, downgrading",
		"from", OutcomePartial,
		"to", OutcomeAbandoned,
		"lookup_err", err,
	)
	f.downgrades.Inc(ctx, attribute.String("reason", "partial_without_artifact"))
	return OutcomeAbandoned
}

// releaseLease never fails finalization: the lease TTL bounds a missed release.
func (f *Finalizer) releaseLease(ctx context.Context, req EndRequest) {
	if f.leases == nil {
		return
	}
	var err error
	switch {
	case req.ExternalCallID != "":
		err = f.leases.Release(ctx, req.WorkspaceID, req.ExternalCallID)
	case req.LeaseID != "":
		err = f.leases.ReleaseLease(ctx, req.WorkspaceID, req.LeaseID)
	default:
		return
	}
	if err != nil {
		logger.From(ctx).Warn("lease release failed at call end", "err", err)
	}
}
