package calls

import "context"

type Repository interface {
	// Upsert writes the final record, replacing an earlier finalization of the same call.
	Upsert(ctx context.Context, c Call) error
	Get(ctx context.Context, callID string) (Call, error)
	List(ctx context.Context, f ListFilter) ([]Call, error)
}
