package ports

import "context"

// Ledger records platform ids of nodes the platform cannot deduplicate on
// its own (dossiers, entities), keyed by a stable idempotency key.
type Ledger interface {
	// Lookup returns the platform id recorded for key, if any
	Lookup(ctx context.Context, kind, key string) (string, bool, error)

	// Record stores the platform id for key
	Record(ctx context.Context, kind, key, id string) error

	Close() error
}
