package main

import (
	"context"
	"database/sql"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/guardrail"
	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/lease"
	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/internal/limits"
	"voice-agent-platform/internal/reporting"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/internal/workspace"
	"voice-agent-platform/pkg/utils"
)

type workspaceStore interface {
	workspace.Repository
	workspace.PhoneNumberRepository
}

// stores are the persistence backends. Production uses Postgres for all of
// them; tests swap in the memory implementations.
type stores struct {
	workspaces workspaceStore
	leases     lease.Store
	tickets    guardrail.ArtifactStore
	calls      calls.Repository
	billing    billing.Store
	audit      audit.Repository
}

func postgresStores(db *sql.DB) stores {
	return stores{
		workspaces: workspace.NewPostgresRepo(db),
		leases:     lease.NewPostgresStore(db),
		tickets:    guardrail.NewPostgresTickets(db),
		calls:      calls.NewPostgresRepo(db),
		billing:    billing.NewPostgresStore(db),
		audit:      audit.NewPostgresRepo(db),
	}
}

// app is the assembled service graph.
type app struct {
	auth     *auth.Manager
	leases   *lease.Manager
	billing  *billing.Service
	handlers httpapi.Handlers
}

func buildApp(cfg config.Config, st stores, cp telephony.ControlPlane, db *sql.DB) (app, error) {
	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return app{}, err
	}

	auditor := audit.NewService(st.audit)
	calc := limits.NewCalculator(st.workspaces, limits.DefaultPlanTable())
	leases := lease.NewManager(st.leases, calc, lease.Options{
		DefaultTTL: cfg.Lease.DefaultTTL,
		FailClosed: cfg.Lease.FailClosed,
	})
	enforcer := lifecycle.NewEnforcer(st.workspaces, cp, auditor)
	evaluator := guardrail.NewEvaluator(guardrail.Config{
		RepeatThreshold: cfg.Guardrail.RepeatThreshold,
		MaxUserTurns:    cfg.Guardrail.MaxUserTurns,
		MaxToolCalls:    cfg.Guardrail.MaxToolCalls,
	}, st.tickets, auditor)
	billingSvc := billing.NewService(st.billing, enforcer, auditor)

	h := httpapi.Handlers{
		Leases:    leases,
		Limits:    calc,
		Lifecycle: lifecycle.NewService(enforcer),
		Calls:     calls.NewFinalizer(evaluator, st.tickets, leases, st.calls),
		Billing:   billingSvc,
		Reporting: reporting.NewService(st.workspaces, calc, leases, st.calls),
	}
	if db != nil {
		h.Ready = func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) }
	}
	return app{auth: authManager, leases: leases, billing: billingSvc, handlers: h}, nil
}
