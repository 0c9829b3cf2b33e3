package reporting

import (
	"time"

	"voice-agent-platform/internal/limits"
	"voice-agent-platform/internal/workspace"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// Capacity is a point-in-time view of a workspace's admission headroom.
// It is read without locks, so it may be stale by the time it is returned.
type Capacity struct {
	WorkspaceID    string                `json:"workspace_id"`
	Status         workspace.Status      `json:"status"`
	PauseReason    workspace.PauseReason `json:"pause_reason,omitempty"`
	Limits         limits.Limits         `json:"limits"`
	ActiveLeases   int                   `json:"active_leases"`
	AvailableSlots int                   `json:"available_slots"`
	PhoneNumbers   int                   `json:"phone_numbers"`
	// PhoneNumbersOver counts numbers beyond the included allowance.
	PhoneNumbersOver int `json:"phone_numbers_over"`
}

// OutcomeSummaryRequest asks for call outcome counts.
// Workspace isolation: WorkspaceID is required.
type OutcomeSummaryRequest struct {
	WorkspaceID string    `json:"workspace_id"`
	Range       TimeRange `json:"range"`
}

type OutcomeSummary struct {
	WorkspaceID string    `json:"workspace_id"`
	Range       TimeRange `json:"range"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	PartialCalls   int `json:"partial_calls"`
	AbandonedCalls int `json:"abandoned_calls"`

	// GuardrailTriggers is keyed by rule.
	GuardrailTriggers map[string]int `json:"guardrail_triggers"`
	CompletionRate    float64        `json:"completion_rate"`
}
