// Package store persists session records, dose history and feedback
// analyses.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/sleepsync/internal/dose"
	"github.com/nvandessel/sleepsync/internal/feedback"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SessionRecord is the durable snapshot of a running session. It is written
// on suspend and read on resume.
type SessionRecord struct {
	ID               string  `json:"id"`
	RemainingSeconds int64   `json:"remaining_seconds"`
	TotalSeconds     int64   `json:"total_seconds"`
	ElapsedSeconds   int64   `json:"elapsed_seconds"`
	StartEpochMillis int64   `json:"start_epoch_millis"`
	ActiveDose       float64 `json:"active_dose"`
	HasDose          bool    `json:"has_dose"`
	Description      string  `json:"description,omitempty"`
}

// SessionStore is a key/value store of session records.
type SessionStore interface {
	// SaveSession writes rec under key, replacing any previous record.
	SaveSession(ctx context.Context, key string, rec SessionRecord) error

	// LoadSession returns the record under key, or nil when there is none.
	LoadSession(ctx context.Context, key string) (*SessionRecord, error)

	// DeleteSession removes the record. Deleting a missing key is not an error.
	DeleteSession(ctx context.Context, key string) error
}

// DoseRun is one computed dose series and the outcome of its dispatch.
type DoseRun struct {
	ID               int64       `json:"id"`
	SessionID        string      `json:"session_id"`
	CreatedAt        time.Time   `json:"created_at"`
	RemainingSeconds float64     `json:"remaining_seconds"`
	TotalSeconds     float64     `json:"total_seconds"`
	BaseDose         float64     `json:"base_dose"`
	Feedback         float64     `json:"feedback"`
	Source           string      `json:"source"`
	ActiveDose       float64     `json:"active_dose"`
	Dispatched       bool        `json:"dispatched"`
	DispatchError    string      `json:"dispatch_error,omitempty"`
	Samples          dose.Series `json:"samples,omitempty"`
}

// HistoryStore records dose runs.
type HistoryStore interface {
	// RecordDoseRun stores run and its samples and returns the new run ID.
	RecordDoseRun(ctx context.Context, run DoseRun) (int64, error)

	// MarkDispatch stores the dispatch outcome of a run.
	MarkDispatch(ctx context.Context, runID int64, dispatchErr error) error

	// ListDoseRuns returns the newest runs first, without samples.
	ListDoseRuns(ctx context.Context, limit int) ([]DoseRun, error)

	// GetDoseRun returns one run with its samples.
	GetDoseRun(ctx context.Context, id int64) (*DoseRun, error)
}

// FeedbackLog records analyses. It satisfies feedback.Recorder.
type FeedbackLog interface {
	feedback.Recorder

	// LatestFeedback returns the newest analysis that set the score, or nil
	// when there is none. Analyses whose backend was unavailable are skipped.
	LatestFeedback(ctx context.Context) (*feedback.Event, error)
}

// Store is everything the CLI persists.
type Store interface {
	SessionStore
	HistoryStore
	FeedbackLog
	Close() error
}
