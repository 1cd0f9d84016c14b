// Package ledger persists the platform ids of dossiers and entities under
// their idempotency keys so a restarted run reuses them.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/ports"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	// Path of the bolt file
	Path        string
	DatabaseURL string
	RedisAddr   string
	RedisPrefix string
}

// Open builds the configured ledger. An empty backend means memory.
func Open(ctx context.Context, cfg Config) (ports.Ledger, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryLedger(), nil
	case BackendBolt:
		return NewBoltLedger(cfg.Path)
	case BackendPostgres:
		return NewPostgresLedger(ctx, cfg.DatabaseURL)
	case BackendRedis:
		return NewRedisLedger(ctx, RedisConfig{Addr: cfg.RedisAddr, KeyPrefix: cfg.RedisPrefix})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// MemoryLedger lives for a single run only.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]string
}

var _ ports.Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]string)}
}

func (l *MemoryLedger) Lookup(_ context.Context, kind, key string) (string, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.entries[kind+":"+key]
	return id, ok, nil
}

func (l *MemoryLedger) Record(_ context.Context, kind, key, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[kind+":"+key] = id
	return nil
}

func (l *MemoryLedger) Close() error { return nil }
