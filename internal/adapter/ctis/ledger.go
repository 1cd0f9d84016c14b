package ctis

import (
	"context"
	"log/slog"
)

// ledgerLookup consults the optional ledger. Errors are logged and read as
// a miss so the platform stays the source of truth.
func (c *Client) ledgerLookup(ctx context.Context, kind, key string) (string, bool) {
	if c.opts.Ledger == nil {
		return "", false
	}
	id, found, err := c.opts.Ledger.Lookup(ctx, kind, key)
	if err != nil {
		slog.Warn("ledger lookup failed", "kind", kind, "key", key, "error", err)
		return "", false
	}
	return id, found
}

func (c *Client) ledgerRecord(ctx context.Context, kind, key, id string) {
	if c.opts.Ledger == nil || id == "" {
		return
	}
	if err := c.opts.Ledger.Record(ctx, kind, key, id); err != nil {
		slog.Warn("ledger record failed", "kind", kind, "key", key, "id", id, "error", err)
	}
}
