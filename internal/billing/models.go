package billing

import (
	"errors"
	"time"

	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/internal/workspace"
)

type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventPlanChanged   EventType = "plan_changed"
	EventAddonChanged  EventType = "addon_changed"
)

// Event is one change pushed by the billing system. ID is the publisher's
// idempotency key; a redelivered event is acknowledged without re-applying.
type Event struct {
	ID          string                `json:"id"`
	Type        EventType             `json:"type"`
	WorkspaceID string                `json:"workspace_id"`
	Status      workspace.Status      `json:"status,omitempty"`
	PauseReason workspace.PauseReason `json:"pause_reason,omitempty"`
	PlanCode    string                `json:"plan_code,omitempty"`
	AddonKey    string                `json:"addon_key,omitempty"`
	Quantity    int                   `json:"quantity,omitempty"`
	AddonStatus workspace.AddonStatus `json:"addon_status,omitempty"`
	OccurredAt  *time.Time            `json:"occurred_at,omitempty"`
}

func (e Event) validate() error {
	if e.ID == "" || e.WorkspaceID == "" {
		return ErrInvalidEvent
	}
	switch e.Type {
	case EventStatusChanged:
		if _, err := workspace.ValidateStatus(e.Status, e.PauseReason); err != nil {
			return ErrInvalidEvent
		}
	case EventPlanChanged:
		if e.PlanCode == "" {
			return ErrInvalidEvent
		}
	case EventAddonChanged:
		if e.AddonKey == "" || e.Quantity < 0 {
			return ErrInvalidEvent
		}
		if e.AddonStatus != workspace.AddonStatusActive && e.AddonStatus != workspace.AddonStatusInactive {
			return ErrInvalidEvent
		}
	default:
		return ErrInvalidEvent
	}
	return nil
}

// Outcome is the result of handling one event.
type Outcome struct {
	EventID     string              `json:"event_id"`
	WorkspaceID string              `json:"workspace_id"`
	Duplicate   bool                `json:"duplicate"`
	Workspace   workspace.Workspace `json:"workspace"`
	Enforcement *lifecycle.Report   `json:"enforcement,omitempty"`
}

var ErrInvalidEvent = errors.New("billing: invalid event")
