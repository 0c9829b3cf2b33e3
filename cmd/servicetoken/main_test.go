package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/rbac"
)

func testEnv(k string) string {
	switch k {
	case "JWT_SECRET":
		return "test-secret"
	case "JWT_ISSUER":
		return "voice-agent-platform"
	case "JWT_AUDIENCE":
		return "voice-agent-api"
	}
	return ""
}

func TestRun_IssuesVerifiableToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	err := run([]string{"-subject", "ops-console", "-role", "operator", "-workspace", "ws-1", "-ttl", "1h"},
		&out, testEnv, func() time.Time { return now })
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:   "test-secret",
		JWTIssuer:   "voice-agent-platform",
		JWTAudience: "voice-agent-api",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	claims, err := m.Verify(strings.TrimSpace(out.String()), now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "ops-console" || claims.Role != rbac.RoleOperator || claims.WorkspaceID != "ws-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := m.Verify(strings.TrimSpace(out.String()), now.Add(2*time.Hour)); err == nil {
		t.Fatalf("expected expired token to fail verification")
	}
}

func TestRun_RejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		args []string
		env  func(string) string
	}{
		{"missing subject", []string{"-role", "billing"}, testEnv},
		{"unknown role", []string{"-subject", "x", "-role", "admin"}, testEnv},
		{"operator without workspace", []string{"-subject", "x", "-role", "operator"}, testEnv},
		{"missing secret", []string{"-subject", "x", "-role", "billing"}, func(string) string { return "" }},
		{"bad ttl env", []string{"-subject", "x", "-role", "billing"}, func(k string) string {
			if k == "JWT_SERVICE_TTL" {
				return "soon"
			}
			return testEnv(k)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(tc.args, &out, tc.env, time.Now); err == nil {
				t.Fatalf("expected error, got token %q", out.String())
			}
		})
	}
}
