package utils

import (
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	if c.MaxOpenConns != 25 || c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	c = PostgresPoolConfig{MaxOpenConns: 5}.withDefaults()
	if c.MaxOpenConns != 5 {
		t.Fatalf("expected explicit value kept, got %d", c.MaxOpenConns)
	}
}

func TestPgErrorCode_UnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("insert ticket: %w", &pgconn.PgError{Code: PgUniqueViolation})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation")
	}
	if IsUndefinedFunction(err) {
		t.Fatalf("did not expect undefined function")
	}
	if PgErrorCode(fmt.Errorf("plain")) != "" {
		t.Fatalf("expected empty code for non-pg error")
	}
}

func TestNullString(t *testing.T) {
	if NullString("") != nil {
		t.Fatalf("expected nil for empty string")
	}
	if NullString("x") != "x" {
		t.Fatalf("expected value passthrough")
	}
}
