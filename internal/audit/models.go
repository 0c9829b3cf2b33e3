package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted (audit_events has a trigger for this).
// - workspace_id is required for tenancy isolation.
// - Audit is best-effort; enforcement never blocks on an audit failure.
type Event struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Type        EventType `json:"type" db:"type"`

	// Actor is the service or role that triggered the action.
	Actor string `json:"actor,omitempty" db:"actor"`

	CallID        string `json:"call_id,omitempty" db:"call_id"`
	PhoneNumberID string `json:"phone_number_id,omitempty" db:"phone_number_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypePauseEnforced   EventType = "pause_enforced"
	EventTypeResumeEnforced  EventType = "resume_enforced"
	EventTypeResumeRefused   EventType = "resume_refused"
	EventTypeEnforcementFail EventType = "enforcement_failed"
	EventTypeBillingApplied  EventType = "billing_event_applied"
	EventTypeGuardrail       EventType = "guardrail_triggered"
)
