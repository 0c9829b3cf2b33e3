package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/guardrail"
	"voice-agent-platform/internal/lease"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/internal/workspace"

	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := workspace.NewMemoryRepo()
	for _, id := range []string{"w1", "w2"} {
		repo.Put(workspace.Workspace{ID: id, PlanCode: "growth", Status: workspace.StatusActive, PauseReason: workspace.PauseReasonNone})
	}
	st := stores{
		workspaces: repo,
		leases:     lease.NewMemoryStore(),
		tickets:    guardrail.NewMemoryTickets(),
		calls:      calls.NewMemoryRepo(),
		billing:    billing.NewMemoryStore(repo),
		audit:      audit.NewMemoryRepo(),
	}
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "secret", JWTIssuer: "test", JWTAudience: "api"}}
	a, err := buildApp(cfg, st, telephony.NewMemoryControlPlane(), nil)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}

	r := gin.New()
	registerRoutes(r, a.handlers, auth.RequireServiceToken(a.auth))
	return r, a.auth
}

func token(t *testing.T, m *auth.Manager, role, workspaceID string) string {
	t.Helper()
	tok, err := m.IssueServiceToken(time.Now(), "test-"+role, role, workspaceID, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func TestRoutes_Authorization(t *testing.T) {
	r, m := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{name: "health is public", method: http.MethodGet, path: "/healthz", want: 200},
		{name: "missing token", method: http.MethodGet, path: "/v1/me", want: 401},
		{name: "pipeline starts calls", method: http.MethodPost, path: "/v1/calls/start", body: `{"workspace_id":"w1"}`, token: token(t, m, "call_pipeline", ""), want: 200},
		{name: "operator cannot start calls", method: http.MethodPost, path: "/v1/calls/start", body: `{"workspace_id":"w1"}`, token: token(t, m, "operator", "w1"), want: 403},
		{name: "pipeline reads limits", method: http.MethodGet, path: "/v1/workspaces/w1/limits", token: token(t, m, "call_pipeline", ""), want: 200},
		{name: "operator reads own capacity", method: http.MethodGet, path: "/v1/workspaces/w1/capacity", token: token(t, m, "operator", "w1"), want: 200},
		{name: "operator cannot read other workspace", method: http.MethodGet, path: "/v1/workspaces/w2/capacity", token: token(t, m, "operator", "w1"), want: 403},
		{name: "pipeline cannot pause", method: http.MethodPost, path: "/v1/workspaces/w1/pause", token: token(t, m, "call_pipeline", ""), want: 403},
		{name: "billing reconciles", method: http.MethodPost, path: "/v1/workspaces/w2/reconcile", token: token(t, m, "billing", ""), want: 200},
		{name: "operator cannot sweep", method: http.MethodPost, path: "/v1/admin/leases/sweep", token: token(t, m, "operator", "w1"), want: 403},
		{name: "super admin sweeps", method: http.MethodPost, path: "/v1/admin/leases/sweep", token: token(t, m, "super_admin", ""), want: 200},
		{name: "super admin pauses any workspace", method: http.MethodPost, path: "/v1/workspaces/w2/pause", token: token(t, m, "super_admin", ""), want: 200},
		{name: "billing webhook needs billing role", method: http.MethodPost, path: "/webhooks/billing", body: `{"id":"e1","type":"plan_changed","workspace_id":"w1","plan_code":"scale"}`, token: token(t, m, "operator", "w1"), want: 403},
		{name: "billing webhook", method: http.MethodPost, path: "/webhooks/billing", body: `{"id":"e1","type":"plan_changed","workspace_id":"w1","plan_code":"scale"}`, token: token(t, m, "billing", ""), want: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}
