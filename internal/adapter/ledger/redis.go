package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/ports"
)

// RedisConfig configures Redis access for the ledger.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisLedger stores one hash per kind under the key prefix.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

var _ ports.Ledger = (*RedisLedger)(nil)

func NewRedisLedger(ctx context.Context, cfg RedisConfig) (*RedisLedger, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "rf-ctis-bridge:ledger"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis ledger: %w", err)
	}

	return &RedisLedger{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

func (l *RedisLedger) hashKey(kind string) string {
	return l.prefix + ":" + kind
}

func (l *RedisLedger) Lookup(ctx context.Context, kind, key string) (string, bool, error) {
	id, err := l.client.HGet(ctx, l.hashKey(kind), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis ledger lookup: %w", err)
	}
	return id, true, nil
}

func (l *RedisLedger) Record(ctx context.Context, kind, key, id string) error {
	if err := l.client.HSet(ctx, l.hashKey(kind), key, id).Err(); err != nil {
		return fmt.Errorf("redis ledger record: %w", err)
	}
	return nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}
