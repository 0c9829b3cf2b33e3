package lifecycle

import (
	"errors"

	"voice-agent-platform/internal/workspace"
)

type Operation string

const (
	OperationPause  Operation = "pause"
	OperationResume Operation = "resume"
)

// Action is what an enforcement pass did to one phone number.
type Action string

const (
	ActionUnbound        Action = "unbound"
	ActionAlreadyUnbound Action = "already_unbound"
	ActionRebound        Action = "rebound"
	ActionAlreadyBound   Action = "already_bound"
	ActionFailed         Action = "failed"
)

type NumberOutcome struct {
	PhoneNumberID    string `json:"phone_number_id"`
	ProviderNumberID string `json:"provider_number_id"`
	Action           Action `json:"action"`
	// AssistantID is the backup captured on pause or restored on resume.
	AssistantID string `json:"assistant_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Report describes one enforcement pass. A pass that changed nothing because
// the workspace was not in the matching state has Skipped set.
type Report struct {
	WorkspaceID string                `json:"workspace_id"`
	Operation   Operation             `json:"operation"`
	Status      workspace.Status      `json:"status"`
	PauseReason workspace.PauseReason `json:"pause_reason,omitempty"`
	Skipped     bool                  `json:"skipped,omitempty"`
	SkipReason  string                `json:"skip_reason,omitempty"`
	// Refused is set when a resume was requested during a billing hold.
	Refused bool            `json:"refused,omitempty"`
	Numbers []NumberOutcome `json:"numbers"`
}

// Failed counts numbers left in the wrong state.
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Numbers {
		if o.Action == ActionFailed {
			n++
		}
	}
	return n
}

const (
	skipNotPaused     = "not_paused"
	skipInvalidReason = "invalid_pause_reason"
	skipNotActive     = "not_active"
)

var (
	// ErrEnforcementIncomplete means the provider still routes differently
	// from the stored status. Callers retry.
	ErrEnforcementIncomplete = errors.New("lifecycle: enforcement incomplete")
	ErrInvalidArgument       = errors.New("lifecycle: invalid argument")
)
