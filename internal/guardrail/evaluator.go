package guardrail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ArtifactStore finds and creates fallback tickets. Insert must return
// ErrConflict when the call already has one.
type ArtifactStore interface {
	FindByCall(ctx context.Context, callID string) (Ticket, bool, error)
	Insert(ctx context.Context, t Ticket) error
}

// Auditor is satisfied by *audit.Service.
type Auditor interface {
	LogGuardrail(ctx context.Context, workspaceID, callID, rule string) error
}

// Evaluator detects stalled conversations and forces a fallback ticket.
// Evaluate is safe to re-run on the same call and never fails the caller.
type Evaluator struct {
	cfg       Config
	artifacts ArtifactStore
	audit     Auditor
	clock     func() time.Time
	newID     func() string

	triggers *telemetry.Counter
}

// NewEvaluator builds an Evaluator. auditor may be nil.
func NewEvaluator(cfg Config, artifacts ArtifactStore, auditor Auditor) *Evaluator {
	return &Evaluator{
		cfg:       cfg.withDefaults(),
		artifacts: artifacts,
		audit:     auditor,
		clock:     time.Now,
		newID:     uuid.NewString,
		triggers: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "guardrail_triggers_total",
			Description: "Calls where a guardrail forced a fallback artifact",
			Unit:        "{call}",
		}),
	}
}

// Evaluate runs the rules in order; the first match wins. Any internal error
// or panic is logged and reported as no trigger.
func (e *Evaluator) Evaluate(ctx context.Context, cc CallContext) (res Result) {
	log := logger.From(ctx).With("workspace_id", cc.WorkspaceID, "call_id", cc.CallID)
	defer func() {
		if p := recover(); p != nil {
			log.Error("guardrail panic, treating as no trigger", "panic", fmt.Sprint(p))
			res = Result{}
		}
	}()

	rule, detail := e.match(cc)
	if rule == "" {
		return Result{}
	}
	if cc.CallID == "" || cc.WorkspaceID == "" {
		log.Warn("guardrail matched a call without ids, no artifact possible", "rule", rule)
		return Result{}
	}

	ticketID, err := e.ensureArtifact(ctx, cc, rule, detail)
	if err != nil {
		log.Error("guardrail artifact failed, treating as no trigger", "rule", rule, "err", err)
		return Result{}
	}

	e.triggers.Inc(ctx, attribute.String("rule", string(rule)))
	log.Warn("guardrail triggered",
		"rule", rule,
		"detail", detail,
		"action", "fallback_ticket,mark_partial",
		"ticket_id", ticketID,
	)
	if e.audit != nil {
		if err := e.audit.LogGuardrail(ctx, cc.WorkspaceID, cc.CallID, string(rule)); err != nil {
			log.Warn("audit append failed", "err", err)
		}
	}
	return Result{ForceArtifact: true, MarkPartial: true, Reason: rule, ArtifactID: ticketID}
}

func (e *Evaluator) match(cc CallContext) (Rule, string) {
	t := parseTranscript(cc.Transcript)
	if field, n := repeatedSlot(t.assistant, e.cfg.RepeatThreshold); field != "" {
		return RuleRepeatSlot, fmt.Sprintf("%s asked %d times", field, n)
	}

	turns := cc.UserTurns
	if turns == 0 {
		turns = t.userTurns
	}
	if turns > e.cfg.MaxUserTurns {
		return RuleLoopCap, fmt.Sprintf("%d user turns", turns)
	}
	if cc.ToolCalls > e.cfg.MaxToolCalls {
		return RuleLoopCap, fmt.Sprintf("%d tool calls", cc.ToolCalls)
	}
	return "", ""
}

// ensureArtifact is check, insert, and re-check on conflict, so concurrent
// evaluations of one call end with one ticket.
func (e *Evaluator) ensureArtifact(ctx context.Context, cc CallContext, rule Rule, detail string) (string, error) {
	if t, ok, err := e.artifacts.FindByCall(ctx, cc.CallID); err != nil {
		return "", fmt.Errorf("find artifact: %w", err)
	} else if ok {
		return t.ID, nil
	}

	t := Ticket{
		ID:          e.newID(),
		WorkspaceID: cc.WorkspaceID,
		CallID:      cc.CallID,
		Source:      ticketSource,
		Reason:      string(rule) + ": " + detail,
		CreatedAt:   e.clock().UTC(),
	}
	err := e.artifacts.Insert(ctx, t)
	if err == nil {
		return t.ID, nil
	}
	if !errors.Is(err, ErrConflict) {
		return "", fmt.Errorf("insert artifact: %w", err)
	}
	existing, ok, err := e.artifacts.FindByCall(ctx, cc.CallID)
	if err != nil {
		return "", fmt.Errorf("re-check artifact: %w", err)
	}
	if !ok {
		return "", errors.New("artifact conflict but none found")
	}
	return existing.ID, nil
}
