// Command servicetoken mints HS256 service tokens for the API's callers
// (call pipeline, billing, operators). It reads the same JWT_* variables as
// the API so issued tokens verify against the running service.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/rbac"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv, time.Now); err != nil {
		fmt.Fprintln(os.Stderr, "servicetoken:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, getenv func(string) string, now func() time.Time) error {
	fs := flag.NewFlagSet("servicetoken", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.String("subject", "", "service name written to the sub claim")
	role := fs.String("role", "", "call_pipeline, billing, operator or super_admin")
	workspaceID := fs.String("workspace", "", "workspace id (required for operator tokens)")
	ttl := fs.Duration("ttl", 0, "token lifetime; 0 uses JWT_SERVICE_TTL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *subject == "" {
		return errors.New("-subject is required")
	}
	if !rbac.Known(*role) {
		return fmt.Errorf("unknown role %q", *role)
	}
	if rbac.IsWorkspaceScoped(*role) && *workspaceID == "" {
		return fmt.Errorf("role %s requires -workspace", *role)
	}

	cfg := config.AuthConfig{
		JWTSecret:   getenv("JWT_SECRET"),
		JWTIssuer:   getenv("JWT_ISSUER"),
		JWTAudience: getenv("JWT_AUDIENCE"),
	}
	if v := getenv("JWT_SERVICE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JWT_SERVICE_TTL: %w", err)
		}
		cfg.ServiceTokenTTL = d
	}
	m, err := auth.NewManager(cfg)
	if err != nil {
		return err
	}

	token, err := m.IssueServiceToken(now().UTC(), *subject, *role, *workspaceID, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
