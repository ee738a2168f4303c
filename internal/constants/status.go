package constants

// SessionStatus is the lifecycle state of a sleep session.
type SessionStatus string

const (
	// StatusIdle means no session exists.
	StatusIdle SessionStatus = "idle"

	// StatusRunning means a countdown is in progress.
	StatusRunning SessionStatus = "running"

	// StatusCompleted means the countdown reached zero.
	StatusCompleted SessionStatus = "completed"

	// StatusCancelled means the user cancelled the countdown.
	StatusCancelled SessionStatus = "cancelled"
)

// Valid returns true if the status is a recognized value.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status ends a session.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	return string(s)
}
