package calls

import (
	"errors"
	"time"
)

// Outcome is the completion tier of a finished call, best to worst.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePartial   Outcome = "partial"
	OutcomeAbandoned Outcome = "abandoned"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomePartial, OutcomeAbandoned:
		return true
	}
	return false
}

// Call is the final record of a voice-agent call.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
// A partial call always has a fallback ticket keyed by CallID.
type Call struct {
	CallID         string  `json:"call_id" db:"call_id"`
	WorkspaceID    string  `json:"workspace_id" db:"workspace_id"`
	ExternalCallID string  `json:"external_call_id,omitempty" db:"external_call_id"`
	AssistantID    string  `json:"assistant_id,omitempty" db:"assistant_id"`
	Outcome        Outcome `json:"outcome" db:"outcome"`
	// GuardrailRule is the rule that forced a fallback, if any.
	GuardrailRule string `json:"guardrail_rule,omitempty" db:"guardrail_rule"`
	ArtifactID    string `json:"artifact_id,omitempty" db:"-"`

	PhoneCaptured bool `json:"phone_captured" db:"phone_captured"`
	EmailCaptured bool `json:"email_captured" db:"email_captured"`
	UserTurns     int  `json:"user_turns" db:"user_turns"`
	ToolCalls     int  `json:"tool_calls" db:"tool_calls"`

	EndedAt   time.Time `json:"ended_at" db:"ended_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EndRequest is what the call pipeline reports when a call ends.
type EndRequest struct {
	CallID         string `json:"call_id"`
	WorkspaceID    string `json:"workspace_id"`
	ExternalCallID string `json:"external_call_id,omitempty"`
	AssistantID    string `json:"assistant_id,omitempty"`
	// LeaseID releases by lease when the call had no external id.
	LeaseID    string `json:"lease_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	// Outcome is the pipeline's own classification; empty means completed.
	Outcome       Outcome    `json:"outcome,omitempty"`
	PhoneCaptured bool       `json:"phone_captured"`
	EmailCaptured bool       `json:"email_captured"`
	UserTurns     int        `json:"user_turns"`
	ToolCalls     int        `json:"tool_calls"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// ListFilter selects calls for one workspace ended in [From, To).
type ListFilter struct {
	WorkspaceID string
	From        time.Time
	To          time.Time
}

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)
