package lease

import (
	"context"
	"time"
)

// Store persists leases. Every count uses Lease.Active semantics with the
// caller-supplied now, so enforcement and reporting cannot drift.
type Store interface {
	// AcquireAtomic counts active leases and inserts l only if the count is
	// below max, as one indivisible step per workspace. An active lease with
	// the same external call id is returned instead of inserting a second one.
	AcquireAtomic(ctx context.Context, l Lease, max int) (Lease, bool, error)

	CountActive(ctx context.Context, workspaceID string, now time.Time) (int, error)
	FindActiveByExternalCall(ctx context.Context, workspaceID, externalCallID string, now time.Time) (Lease, bool, error)
	Insert(ctx context.Context, l Lease) error

	// Release and ReleaseByID return the number of leases released.
	Release(ctx context.Context, workspaceID, externalCallID string, now time.Time) (int64, error)
	ReleaseByID(ctx context.Context, workspaceID, leaseID string, now time.Time) (int64, error)

	// SweepExpired marks every expired, unreleased lease as released.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
