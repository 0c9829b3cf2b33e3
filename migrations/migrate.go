// Package migrations embeds the Postgres schema and applies it in order.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/utils"
)

//go:embed *.sql
var files embed.FS

// lockID serializes migrators across replicas; any stable constant works.
const lockID = 0x766f6963

// Migration is one embedded SQL file.
type Migration struct {
	Version string
	SQL     string
}

// List returns embedded migrations sorted by version (file name prefix).
func List() ([]Migration, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := files.ReadFile(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Apply runs every migration not yet recorded in schema_migrations.
// All pending migrations run in one transaction under an advisory lock.
func Apply(ctx context.Context, db *sql.DB) (applied int, err error) {
	ms, err := List()
	if err != nil {
		return 0, fmt.Errorf("migrations: list: %w", err)
	}
	log := logger.From(ctx)

	err = utils.WithTx(ctx, db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version    TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL
)`); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}

		for _, m := range ms {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check %s: %w", m.Version, err)
			}
			if exists {
				continue
			}
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("apply %s: %w", m.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`, m.Version, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("record %s: %w", m.Version, err)
			}
			log.Info("migration applied", "version", m.Version)
			applied++
		}
		return nil
	})
	return applied, err
}
