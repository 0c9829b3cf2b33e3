package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-agent-platform/internal/limits"
	"voice-agent-platform/internal/workspace"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/telemetry"
	"voice-agent-platform/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// LimitSource supplies the current ceiling. *limits.Calculator implements it.
type LimitSource interface {
	ComputeLimits(ctx context.Context, workspaceID string) (limits.Limits, error)
}

type Options struct {
	DefaultTTL time.Duration
	// FailClosed rejects admission when the atomic primitive fails instead of
	// running the best-effort count-then-insert fallback.
	FailClosed bool
}

// Manager is admission control: it acquires and releases per-workspace leases
// against the ceiling from LimitSource. It holds no state between calls; every
// decision re-reads the store, so any number of replicas can run it.
type Manager struct {
	store  Store
	limits LimitSource
	opts   Options

	clock func() time.Time
	newID func() string

	decisions *telemetry.Counter
	degraded  *telemetry.Counter
	swept     *telemetry.Counter
}

func NewManager(store Store, limitSource LimitSource, opts Options) *Manager {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	return &Manager{
		store:  store,
		limits: limitSource,
		opts:   opts,
		clock:  time.Now,
		newID:  uuid.NewString,
		decisions: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "admission_decisions_total",
			Description: "Call admission decisions by result",
			Unit:        "{decision}",
		}),
		degraded: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "lease_acquire_degraded_total",
			Description: "Acquires that bypassed the atomic primitive; each one is a possible ceiling overshoot",
			Unit:        "{acquire}",
		}),
		swept: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "lease_sweep_released_total",
			Description: "Expired leases marked released by the sweeper",
			Unit:        "{lease}",
		}),
	}
}

// Acquire admits a call if the workspace has capacity.
// Denials (LIMIT_REACHED, TENANT_INACTIVE) come back as a Result with OK=false
// and a nil error; an error means no decision could be made.
func (m *Manager) Acquire(ctx context.Context, req AcquireRequest) (Result, error) {
	if req.WorkspaceID == "" {
		return Result{}, ErrInvalidArgument
	}
	log := logger.From(ctx).With("workspace_id", req.WorkspaceID)

	lim, err := m.limits.ComputeLimits(ctx, req.WorkspaceID)
	if err != nil {
		if errors.Is(err, workspace.ErrNotFound) {
			log.Warn("admission for unknown workspace refused")
			return m.deny(ctx, ReasonTenantInactive, 0), nil
		}
		return Result{}, fmt.Errorf("lease: compute limits: %w", err)
	}
	ceiling := lim.MaxConcurrentCalls
	if ceiling <= 0 {
		return m.deny(ctx, ReasonTenantInactive, 0), nil
	}

	now := m.clock().UTC()
	l := Lease{
		ID:             m.newID(),
		WorkspaceID:    req.WorkspaceID,
		AssistantID:    req.AssistantID,
		ExternalCallID: req.ExternalCallID,
		AcquiredAt:     now,
		ExpiresAt:      now.Add(m.ttl(req.TTL)),
	}

	got, ok, err := m.store.AcquireAtomic(ctx, l, ceiling)
	if err == nil {
		if !ok {
			return m.deny(ctx, ReasonLimitReached, ceiling), nil
		}
		m.decisions.Inc(ctx, attribute.String("result", "admitted"))
		return admitted(got, ceiling, false), nil
	}
	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("lease: acquire: %w", err)
	}

	log.Warn("atomic lease acquire failed",
		"err", err,
		"primitive_missing", utils.IsUndefinedFunction(err),
		"fail_closed", m.opts.FailClosed,
	)
	if m.opts.FailClosed {
		m.decisions.Inc(ctx, attribute.String("result", "unavailable"))
		return Result{}, fmt.Errorf("%w: %w", ErrAdmissionUnavailable, err)
	}
	return m.acquireDegraded(ctx, l, ceiling)
}

// acquireDegraded is count-then-insert without the lock. Two callers can both
// pass the count; the degraded counter is the signal that this happened.
func (m *Manager) acquireDegraded(ctx context.Context, l Lease, ceiling int) (Result, error) {
	log := logger.From(ctx).With("workspace_id", l.WorkspaceID)
	m.degraded.Inc(ctx)

	if l.ExternalCallID != "" {
		existing, ok, err := m.store.FindActiveByExternalCall(ctx, l.WorkspaceID, l.ExternalCallID, l.AcquiredAt)
		if err != nil {
			return Result{}, fmt.Errorf("lease: degraded lookup: %w", err)
		}
		if ok {
			return admitted(existing, ceiling, true), nil
		}
	}

	n, err := m.store.CountActive(ctx, l.WorkspaceID, l.AcquiredAt)
	if err != nil {
		return Result{}, fmt.Errorf("lease: degraded count: %w", err)
	}
	if n >= ceiling {
		res := m.deny(ctx, ReasonLimitReached, ceiling)
		res.Degraded = true
		return res, nil
	}
	if err := m.store.Insert(ctx, l); err != nil {
		return Result{}, fmt.Errorf("lease: degraded insert: %w", err)
	}
	log.Warn("lease acquired via degraded count-then-insert", "lease_id", l.ID, "active", n+1, "limit", ceiling)
	m.decisions.Inc(ctx, attribute.String("result", "admitted_degraded"))
	return admitted(l, ceiling, true), nil
}

// Release ends the active lease for an external call. Releasing twice, or
// releasing a call that never acquired, is a no-op.
func (m *Manager) Release(ctx context.Context, workspaceID, externalCallID string) error {
	if workspaceID == "" {
		return ErrInvalidArgument
	}
	if externalCallID == "" {
		return nil
	}
	n, err := m.store.Release(ctx, workspaceID, externalCallID, m.clock().UTC())
	if err != nil {
		return fmt.Errorf("lease: release: %w", err)
	}
	logger.From(ctx).Debug("lease release", "workspace_id", workspaceID, "external_call_id", externalCallID, "released", n)
	return nil
}

// ReleaseLease is Release keyed by lease id, for calls that had no external id.
func (m *Manager) ReleaseLease(ctx context.Context, workspaceID, leaseID string) error {
	if workspaceID == "" {
		return ErrInvalidArgument
	}
	if leaseID == "" {
		return nil
	}
	if _, err := m.store.ReleaseByID(ctx, workspaceID, leaseID, m.clock().UTC()); err != nil {
		return fmt.Errorf("lease: release by id: %w", err)
	}
	return nil
}

// SweepExpired marks expired leases released. Counts never depended on it;
// it only makes expiry permanent.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.store.SweepExpired(ctx, m.clock().UTC())
	if err != nil {
		return 0, fmt.Errorf("lease: sweep: %w", err)
	}
	m.swept.Add(ctx, n)
	return n, nil
}

// ActiveLeaseCount uses the same predicate as the atomic acquire.
func (m *Manager) ActiveLeaseCount(ctx context.Context, workspaceID string) (int, error) {
	if workspaceID == "" {
		return 0, ErrInvalidArgument
	}
	n, err := m.store.CountActive(ctx, workspaceID, m.clock().UTC())
	if err != nil {
		return 0, fmt.Errorf("lease: count active: %w", err)
	}
	return n, nil
}

func (m *Manager) ttl(requested time.Duration) time.Duration {
	switch {
	case requested <= 0:
		return m.opts.DefaultTTL
	case requested > MaxTTL:
		return MaxTTL
	case requested < MinTTL:
		return MinTTL
	default:
		return requested
	}
}

func (m *Manager) deny(ctx context.Context, reason DenialReason, limit int) Result {
	m.decisions.Inc(ctx, attribute.String("result", string(reason)))
	return denied(reason, limit)
}

func admitted(l Lease, limit int, degraded bool) Result {
	exp := l.ExpiresAt
	return Result{OK: true, LeaseID: l.ID, ExpiresAt: &exp, Limit: limit, Degraded: degraded}
}
