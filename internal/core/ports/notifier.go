package ports

// Notifier delivers human-readable run notifications. Implementations are
// best effort: callers never act on a delivery failure beyond logging it.
type Notifier interface {
	// SendInfo sends a free-text informational message
	SendInfo(info string)

	// SendError sends an error with its context; fatal marks run-aborting errors
	SendError(context, detail string, fatal bool)
}
