package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/ports"
)

const createLedgerTable = `
	CREATE TABLE IF NOT EXISTS sync_ledger (
		kind        TEXT NOT NULL,
		key         TEXT NOT NULL,
		platform_id TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (kind, key)
	)
`

type PostgresLedger struct {
	db *pgxpool.Pool
}

var _ ports.Ledger = (*PostgresLedger)(nil)

// NewPostgresLedger connects and makes sure the ledger table exists.
func NewPostgresLedger(ctx context.Context, databaseURL string) (*PostgresLedger, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.Exec(ctx, createLedgerTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger table: %w", err)
	}
	return &PostgresLedger{db: db}, nil
}

func (l *PostgresLedger) Lookup(ctx context.Context, kind, key string) (string, bool, error) {
	query := `
		SELECT platform_id
		FROM sync_ledger
		WHERE kind = $1 AND key = $2
	`

	var id string
	err := l.db.QueryRow(ctx, query, kind, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return id, true, nil
}

func (l *PostgresLedger) Record(ctx context.Context, kind, key, id string) error {
	query := `
		INSERT INTO sync_ledger (kind, key, platform_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, key) DO UPDATE SET platform_id = EXCLUDED.platform_id, recorded_at = now()
	`

	if _, err := l.db.Exec(ctx, query, kind, key, id); err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Close() error {
	l.db.Close()
	return nil
}
