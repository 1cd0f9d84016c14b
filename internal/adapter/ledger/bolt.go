package ledger

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/ports"
)

// BoltLedger keeps one bucket per kind in a local bolt file.
type BoltLedger struct {
	db *bbolt.DB
}

var _ ports.Ledger = (*BoltLedger)(nil)

func NewBoltLedger(path string) (*BoltLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt ledger path is empty")
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout:      1 * time.Second,
		FreelistType: bbolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	return &BoltLedger{db: db}, nil
}

func (l *BoltLedger) Lookup(_ context.Context, kind, key string) (string, bool, error) {
	var id string
	err := l.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			id = string(v)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("read ledger %s/%s: %w", kind, key, err)
	}
	return id, id != "", nil
}

func (l *BoltLedger) Record(_ context.Context, kind, key, id string) error {
	err := l.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(kind))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), []byte(id))
	})
	if err != nil {
		return fmt.Errorf("write ledger %s/%s: %w", kind, key, err)
	}
	return nil
}

func (l *BoltLedger) Close() error {
	return l.db.Close()
}
