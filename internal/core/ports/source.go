package ports

import (
	"context"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
)

// AlertSource is the vendor feed: a search followed by per-alert lookups.
type AlertSource interface {
	SearchAlerts(ctx context.Context, limit int) ([]domain.AlertRef, error)
	LookupAlert(ctx context.Context, id string) (*domain.Alert, error)
	Name() string
}
