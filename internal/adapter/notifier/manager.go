// Package notifier delivers run notifications to Slack.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/ports"
)

// sendTimeout bounds a single delivery so a slow webhook never stalls a run.
const sendTimeout = 15 * time.Second

// Manager fans notifications out to the configured sinks. Delivery is best
// effort: failures are logged and never returned.
type Manager struct {
	slack *SlackNotifier
}

var _ ports.Notifier = (*Manager)(nil)

// NewManager returns a manager. A nil slack notifier makes every call a
// log-only no-op.
func NewManager(slack *SlackNotifier) *Manager {
	return &Manager{slack: slack}
}

func (m *Manager) SendInfo(info string) {
	if m.slack == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := m.slack.NotifyInfo(ctx, info); err != nil {
		slog.Error("Failed to send info notification to Slack", "error", err)
	}
}

func (m *Manager) SendError(errContext, detail string, fatal bool) {
	if m.slack == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := m.slack.NotifyError(ctx, errContext, detail, fatal); err != nil {
		slog.Error("Failed to send error notification to Slack", "error", err, "fatal", fatal)
	}
}
