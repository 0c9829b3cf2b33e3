package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/lease"
	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/internal/limits"
	"voice-agent-platform/internal/reporting"
	"voice-agent-platform/internal/workspace"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Leases    *lease.Manager
	Limits    *limits.Calculator
	Lifecycle *lifecycle.Service
	Calls     *calls.Finalizer
	Billing   *billing.Service
	Reporting *reporting.Service

	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) Readiness(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Calls ---

type startCallRequest struct {
	WorkspaceID    string `json:"workspace_id"`
	AssistantID    string `json:"assistant_id"`
	ExternalCallID string `json:"external_call_id"`
	TTLSeconds     int    `json:"ttl_seconds,omitempty"`
}

// StartCall asks for an admission lease. Denials are 200 with ok=false.
func (h Handlers) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.WorkspaceID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "workspace_id required"})
		return
	}
	res, err := h.Leases.Acquire(c.Request.Context(), lease.AcquireRequest{
		WorkspaceID:    req.WorkspaceID,
		AssistantID:    req.AssistantID,
		ExternalCallID: req.ExternalCallID,
		TTL:            time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		h.fail(c, "admission failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type releaseCallRequest struct {
	WorkspaceID    string `json:"workspace_id"`
	ExternalCallID string `json:"external_call_id"`
	LeaseID        string `json:"lease_id"`
}

func (h Handlers) ReleaseCall(c *gin.Context) {
	var req releaseCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.WorkspaceID == "" || (req.ExternalCallID == "" && req.LeaseID == "") {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "workspace_id and external_call_id or lease_id required"})
		return
	}
	var err error
	if req.ExternalCallID != "" {
		err = h.Leases.Release(c.Request.Context(), req.WorkspaceID, req.ExternalCallID)
	} else {
		err = h.Leases.ReleaseLease(c.Request.Context(), req.WorkspaceID, req.LeaseID)
	}
	if err != nil {
		h.fail(c, "release failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h Handlers) EndCall(c *gin.Context) {
	var req calls.EndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, err := h.Calls.Finalize(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "call finalization failed", err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// --- Workspaces ---

func (h Handlers) GetLimits(c *gin.Context) {
	ctx := c.Request.Context()
	workspaceID := c.Param("workspace_id")
	lim, err := h.Limits.ComputeLimits(ctx, workspaceID)
	if err != nil {
		h.fail(c, "limit lookup failed", err)
		return
	}
	active, err := h.Leases.ActiveLeaseCount(ctx, workspaceID)
	if err != nil {
		h.fail(c, "lease count failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspace_id": workspaceID, "limits": lim, "active_leases": active})
}

func (h Handlers) GetCapacity(c *gin.Context) {
	out, err := h.Reporting.Capacity(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		h.fail(c, "capacity lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetOutcomes takes RFC 3339 from/to query params; the default is the last 24 hours.
func (h Handlers) GetOutcomes(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
	}
	out, err := h.Reporting.OutcomeSummary(c.Request.Context(), reporting.OutcomeSummaryRequest{
		WorkspaceID: c.Param("workspace_id"),
		Range:       reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		h.fail(c, "outcome summary failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type pauseRequest struct {
	Reason workspace.PauseReason `json:"reason"`
}

func (h Handlers) PauseWorkspace(c *gin.Context) {
	var req pauseRequest
	// An empty body means a manual pause.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	rep, err := h.Lifecycle.Pause(c.Request.Context(), c.Param("workspace_id"), req.Reason, actor(c))
	h.report(c, rep, err)
}

func (h Handlers) ResumeWorkspace(c *gin.Context) {
	rep, err := h.Lifecycle.Resume(c.Request.Context(), c.Param("workspace_id"), actor(c))
	if err == nil && rep.Refused {
		c.JSON(http.StatusConflict, rep)
		return
	}
	h.report(c, rep, err)
}

func (h Handlers) ReconcileWorkspace(c *gin.Context) {
	rep, err := h.Lifecycle.Reconcile(c.Request.Context(), c.Param("workspace_id"))
	h.report(c, rep, err)
}

// report writes an enforcement report. Incomplete enforcement is 503 with
// the per-number detail so the caller can retry.
func (h Handlers) report(c *gin.Context, rep lifecycle.Report, err error) {
	if errors.Is(err, lifecycle.ErrEnforcementIncomplete) {
		logger.FromGin(c).Error("enforcement incomplete", "workspace_id", rep.WorkspaceID, "failed", rep.Failed(), "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "enforcement incomplete", "report": rep})
		return
	}
	if err != nil {
		h.fail(c, "enforcement failed", err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// --- Admin ---

func (h Handlers) SweepLeases(c *gin.Context) {
	n, err := h.Leases.SweepExpired(c.Request.Context())
	if err != nil {
		h.fail(c, "sweep failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": n})
}

// --- Billing ---

func (h Handlers) BillingWebhook(c *gin.Context) {
	var ev billing.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	out, err := h.Billing.Handle(c.Request.Context(), ev)
	if errors.Is(err, lifecycle.ErrEnforcementIncomplete) {
		logger.FromGin(c).Error("billing event applied but enforcement incomplete", "billing_event_id", ev.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "enforcement incomplete", "outcome": out})
		return
	}
	if err != nil {
		h.fail(c, "billing event failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// fail maps domain errors to status codes. Unknown errors are logged and
// hidden behind a generic message.
func (h Handlers) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
	case errors.Is(err, lease.ErrInvalidArgument),
		errors.Is(err, workspace.ErrInvalidArgument),
		errors.Is(err, lifecycle.ErrInvalidArgument),
		errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, billing.ErrInvalidEvent):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, lease.ErrAdmissionUnavailable):
		logger.FromGin(c).Error(msg, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admission control unavailable"})
	default:
		logger.FromGin(c).Error(msg, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func actor(c *gin.Context) string {
	sub, err := auth.Subject(c.Request.Context())
	if err != nil {
		return "unknown"
	}
	return sub
}
