package limits

import (
	"context"
	"fmt"

	"voice-agent-platform/internal/workspace"
	"voice-agent-platform/pkg/logger"
)

// Limits are derived on every call and never persisted.
type Limits struct {
	MaxConcurrentCalls   int `json:"max_concurrent_calls"`
	IncludedPhoneNumbers int `json:"included_phone_numbers"`
}

// Compute is the pure limit arithmetic. A workspace that is not active gets
// zero on both axes regardless of plan and add-ons; that is the only place
// "paused" turns into "no admission".
func Compute(ws workspace.Workspace, addons []workspace.Addon, table PlanTable) Limits {
	if !ws.Active() {
		return Limits{}
	}
	plan, _ := table.Plan(ws.PlanCode)
	out := Limits{
		MaxConcurrentCalls:   plan.BaseConcurrency,
		IncludedPhoneNumbers: plan.IncludedPhoneNumbers,
	}
	for _, a := range addons {
		if a.Status != workspace.AddonStatusActive || a.Quantity <= 0 {
			continue
		}
		unit, ok := table.Addons[a.Key]
		if !ok {
			continue
		}
		out.MaxConcurrentCalls += a.Quantity * unit.Concurrency
		out.IncludedPhoneNumbers += a.Quantity * unit.PhoneNumbers
	}
	return out
}

// Source is the read side of workspace.Repository.
type Source interface {
	Get(ctx context.Context, id string) (workspace.Workspace, error)
	ListAddons(ctx context.Context, workspaceID string) ([]workspace.Addon, error)
}

// Calculator reads current plan and add-on rows and computes limits.
type Calculator struct {
	repo  Source
	table PlanTable
}

func NewCalculator(repo Source, table PlanTable) *Calculator {
	return &Calculator{repo: repo, table: table}
}

// ComputeLimits returns workspace.ErrNotFound for unknown workspaces.
func (c *Calculator) ComputeLimits(ctx context.Context, workspaceID string) (Limits, error) {
	ws, err := c.repo.Get(ctx, workspaceID)
	if err != nil {
		return Limits{}, fmt.Errorf("limits: load workspace: %w", err)
	}
	if !ws.Active() {
		return Limits{}, nil
	}
	if _, ok := c.table.Plan(ws.PlanCode); !ok {
		logger.From(ctx).Warn("unknown plan code, using fallback limits",
			"workspace_id", workspaceID,
			"plan_code", ws.PlanCode,
			"plan_table", c.table.Version,
		)
	}
	addons, err := c.repo.ListAddons(ctx, workspaceID)
	if err != nil {
		return Limits{}, fmt.Errorf("limits: load addons: %w", err)
	}
	return Compute(ws, addons, c.table), nil
}

// Table exposes the plan table in use, for reporting.
func (c *Calculator) Table() PlanTable { return c.table }
