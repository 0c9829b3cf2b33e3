package guardrail

import (
	"errors"
	"time"
)

// Rule names the guardrail that fired.
type Rule string

const (
	RuleRepeatSlot Rule = "repeat_slot"
	RuleLoopCap    Rule = "loop_cap"
)

// Config holds the thresholds. Zero values take the defaults.
type Config struct {
	// RepeatThreshold is how many times the assistant may ask for one
	// contact field before the call counts as stuck.
	RepeatThreshold int
	MaxUserTurns    int
	MaxToolCalls    int
}

const (
	DefaultRepeatThreshold = 2
	DefaultMaxUserTurns    = 12
	DefaultMaxToolCalls    = 3
)

func (c Config) withDefaults() Config {
	if c.RepeatThreshold <= 0 {
		c.RepeatThreshold = DefaultRepeatThreshold
	}
	if c.MaxUserTurns <= 0 {
		c.MaxUserTurns = DefaultMaxUserTurns
	}
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = DefaultMaxToolCalls
	}
	return c
}

// CallContext is what the call pipeline knows about a call at evaluation time.
type CallContext struct {
	CallID      string `json:"call_id"`
	WorkspaceID string `json:"workspace_id"`
	Transcript  string `json:"transcript"`
	// UserTurns is derived from speaker-labelled transcript lines when zero.
	UserTurns int `json:"user_turns"`
	ToolCalls int `json:"tool_calls"`
}

type Result struct {
	ForceArtifact bool   `json:"force_artifact"`
	MarkPartial   bool   `json:"mark_partial"`
	Reason        Rule   `json:"reason,omitempty"`
	ArtifactID    string `json:"artifact_id,omitempty"`
}

func (r Result) Triggered() bool { return r.ForceArtifact }

// Ticket is the fallback artifact: proof that a stuck call was handed to a human.
// Only the fields this service writes are modelled; the ticket lifecycle lives elsewhere.
type Ticket struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	CallID      string    `json:"call_id" db:"call_id"`
	Source      string    `json:"source" db:"source"`
	Reason      string    `json:"reason" db:"reason"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

const ticketSource = "guardrail"

var (
	// ErrConflict is returned by ArtifactStore.Insert when the call already has a ticket.
	ErrConflict = errors.New("guardrail: artifact already exists")
)
