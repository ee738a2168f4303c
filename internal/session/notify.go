package session

import "log/slog"

// EventKind classifies a Notification.
type EventKind string

const (
	EventDispatched     EventKind = "dispatched"
	EventDispatchFailed EventKind = "dispatch_failed"
	EventCompleted      EventKind = "completed"
	EventCancelled      EventKind = "cancelled"
)

// Notification is a user-facing message from the machine.
type Notification struct {
	Kind      EventKind
	SessionID string
	Message   string
	Dose      float64
	Err       error
}

// Notifier receives notifications. Notify is called without the machine's
// lock held and may call back into the machine.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to logger, dispatch failures at warn
// level and everything else at info. It suits processes with no one
// watching a countdown.
func LogNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return NotifierFunc(func(n Notification) {
		attrs := []any{"kind", string(n.Kind), "session", n.SessionID}
		if n.Err != nil {
			logger.Warn(n.Message, append(attrs, "error", n.Err)...)
			return
		}
		logger.Info(n.Message, attrs...)
	})
}

// NopNotifier drops every notification.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(Notification) {}
