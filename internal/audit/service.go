package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information. Records are internal-only and
// callers treat Append as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.WorkspaceID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogEnforcement records the outcome of a pause or resume pass.
// details is marshalled into Metadata; a marshal failure drops the details, not the event.
func (s *Service) LogEnforcement(ctx context.Context, workspaceID string, typ EventType, actor, message string, details any) error {
	e := Event{
		WorkspaceID: workspaceID,
		Type:        typ,
		Actor:       actor,
		Message:     message,
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			e.Metadata = string(b)
		}
	}
	return s.Append(ctx, e)
}

// LogGuardrail records a forced fallback for a call.
func (s *Service) LogGuardrail(ctx context.Context, workspaceID, callID, rule string) error {
	return s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeGuardrail,
		Actor:       "guardrail",
		CallID:      callID,
		Message:     "fallback artifact forced: " + rule,
	})
}
