package workspace

import (
	"errors"
	"time"
)

// Workspace is the tenant: the unit of billing, plan, and concurrency limiting.
// Owned by billing/ops; this service only transitions Status and PauseReason.
type Workspace struct {
	ID          string      `json:"id" db:"id"`
	PlanCode    string      `json:"plan_code" db:"plan_code"`
	Status      Status      `json:"status" db:"status"`
	PauseReason PauseReason `json:"pause_reason,omitempty" db:"pause_reason"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

func (w Workspace) Active() bool { return w.Status == StatusActive }

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusPaused }

// PauseReason is empty when the column is NULL.
type PauseReason string

const (
	PauseReasonNone    PauseReason = "none"
	PauseReasonManual  PauseReason = "manual"
	PauseReasonHardCap PauseReason = "hard_cap"
	PauseReasonPastDue PauseReason = "past_due"
)

// Known reports whether r is a storable value (NULL excluded).
func (r PauseReason) Known() bool {
	switch r {
	case PauseReasonNone, PauseReasonManual, PauseReasonHardCap, PauseReasonPastDue:
		return true
	}
	return false
}

// Enforceable reports whether a paused workspace with this reason may be acted on.
// NULL and "none" on a paused workspace are an invalid state.
func (r PauseReason) Enforceable() bool {
	switch r {
	case PauseReasonManual, PauseReasonHardCap, PauseReasonPastDue:
		return true
	}
	return false
}

// BillingHold reports whether only billing may lift the pause.
func (r PauseReason) BillingHold() bool {
	return r == PauseReasonHardCap || r == PauseReasonPastDue
}

// Addon is one add-on subscription row. Only active rows count toward limits.
type Addon struct {
	WorkspaceID string      `json:"workspace_id" db:"workspace_id"`
	Key         string      `json:"addon_key" db:"addon_key"`
	Quantity    int         `json:"quantity" db:"quantity"`
	Status      AddonStatus `json:"status" db:"status"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

type AddonStatus string

const (
	AddonStatusActive   AddonStatus = "active"
	AddonStatusInactive AddonStatus = "inactive"
)

var (
	ErrNotFound        = errors.New("workspace: not found")
	ErrInvalidArgument = errors.New("workspace: invalid argument")
)
