package billing

import (
	"context"
	"time"

	"voice-agent-platform/internal/workspace"
)

// Store applies one event atomically: the workspace row is locked, the event
// id is checked, the change is written and the id recorded in one unit.
// A duplicate returns the current workspace and dup=true without writing.
type Store interface {
	Apply(ctx context.Context, ev Event, now time.Time) (ws workspace.Workspace, dup bool, err error)
}
