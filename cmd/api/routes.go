package main

import (
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Health)
	r.GET("/readyz", h.Readiness)

	// Billing pushes status, plan and add-on changes here. Signature
	// verification is out of scope; the billing role token is the gate.
	r.POST("/webhooks/billing", authMW, rbac.RequireAnyRole(rbac.RoleBilling), h.BillingWebhook)

	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			sub, _ := auth.Subject(c.Request.Context())
			wid, _ := auth.WorkspaceID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"subject": sub, "workspace_id": wid, "role": role})
		})

		// CALLS routes: the voice pipeline's admission and finalization hooks.
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleCallPipeline))
		{
			calls.POST("/start", h.StartCall)
			calls.POST("/release", h.ReleaseCall)
			calls.POST("/end", h.EndCall)
		}

		// WORKSPACE routes. Operator tokens are pinned to their own workspace.
		ws := v1.Group("/workspaces/:workspace_id")
		ws.Use(rbac.RequireWorkspaceParam("workspace_id"))
		{
			ws.GET("/limits", rbac.RequireAnyRole(rbac.RoleCallPipeline, rbac.RoleOperator), h.GetLimits)
			ws.GET("/capacity", rbac.RequireAnyRole(rbac.RoleOperator), h.GetCapacity)
			ws.GET("/outcomes", rbac.RequireAnyRole(rbac.RoleOperator), h.GetOutcomes)
			ws.POST("/pause", rbac.RequireAnyRole(rbac.RoleOperator), h.PauseWorkspace)
			ws.POST("/resume", rbac.RequireAnyRole(rbac.RoleOperator), h.ResumeWorkspace)
			ws.POST("/reconcile", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleBilling), h.ReconcileWorkspace)
		}

		// ADMIN routes: super_admin only.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleSuperAdmin))
		{
			admin.POST("/leases/sweep", h.SweepLeases)
		}
	}
}
