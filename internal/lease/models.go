package lease

import (
	"errors"
	"time"
)

// DefaultTTL bounds how long a lost release can hold capacity.
const DefaultTTL = 15 * time.Minute

// MaxTTL caps caller-supplied TTLs.
const MaxTTL = 24 * time.Hour

// MinTTL is the shortest lease the store can represent; the stored function
// takes whole seconds.
const MinTTL = time.Second

// Lease is one admitted call counted against a workspace ceiling.
// Transitions: acquired -> released, or acquired -> expired (swept). Never re-activated.
type Lease struct {
	ID             string     `json:"id" db:"id"`
	WorkspaceID    string     `json:"workspace_id" db:"workspace_id"`
	AssistantID    string     `json:"assistant_id,omitempty" db:"assistant_id"`
	ExternalCallID string     `json:"external_call_id,omitempty" db:"external_call_id"`
	AcquiredAt     time.Time  `json:"acquired_at" db:"acquired_at"`
	ExpiresAt      time.Time  `json:"expires_at" db:"expires_at"`
	ReleasedAt     *time.Time `json:"released_at,omitempty" db:"released_at"`
}

// Active is the single active-lease predicate. Store queries mirror it:
// released_at IS NULL AND expires_at > now.
func (l Lease) Active(now time.Time) bool {
	return l.ReleasedAt == nil && l.ExpiresAt.After(now)
}

// DenialReason explains a refused admission. Denials are values, not errors.
type DenialReason string

const (
	ReasonLimitReached   DenialReason = "LIMIT_REACHED"
	ReasonTenantInactive DenialReason = "TENANT_INACTIVE"
)

type AcquireRequest struct {
	WorkspaceID    string        `json:"workspace_id"`
	AssistantID    string        `json:"assistant_id,omitempty"`
	ExternalCallID string        `json:"external_call_id,omitempty"`
	TTL            time.Duration `json:"-"`
}

type Result struct {
	OK        bool         `json:"ok"`
	Reason    DenialReason `json:"reason,omitempty"`
	LeaseID   string       `json:"lease_id,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Limit     int          `json:"limit"`
	// Degraded marks admissions decided by the non-atomic fallback path.
	Degraded bool `json:"degraded,omitempty"`
}

func denied(reason DenialReason, limit int) Result {
	return Result{OK: false, Reason: reason, Limit: limit}
}

var (
	ErrInvalidArgument = errors.New("lease: invalid argument")
	// ErrAdmissionUnavailable is returned in fail-closed mode when the atomic acquire path fails.
	ErrAdmissionUnavailable = errors.New("lease: admission control unavailable")
)
