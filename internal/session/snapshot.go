package session

import (
	"fmt"
	"time"

	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/dose"
)

// DispatchState tracks the single dispatch of a session.
type DispatchState string

const (
	// DispatchNone means no dispatch belongs to this process's view of the
	// session, as after a resume.
	DispatchNone    DispatchState = ""
	DispatchPending DispatchState = "pending"
	DispatchSent    DispatchState = "sent"
	DispatchFailed  DispatchState = "failed"
)

// Snapshot is a copy of the session slot.
type Snapshot struct {
	ID               string                  `json:"id,omitempty"`
	Status           constants.SessionStatus `json:"status"`
	TotalSeconds     int64                   `json:"total_seconds"`
	RemainingSeconds int64                   `json:"remaining_seconds"`
	ElapsedSeconds   int64                   `json:"elapsed_seconds"`
	StartedAt        time.Time               `json:"started_at,omitzero"`
	TargetTime       time.Time               `json:"target_time,omitzero"`
	ActiveDose       float64                 `json:"active_dose"`
	HasDose          bool                    `json:"has_dose"`
	Series           dose.Series             `json:"series,omitempty"`
	Dispatch         DispatchState           `json:"dispatch,omitempty"`
	DispatchError    string                  `json:"dispatch_error,omitempty"`
	Description      string                  `json:"description,omitempty"`
}

// Ratio returns remaining/total as "mm:ss/mm:ss".
func (s Snapshot) Ratio() string {
	return FormatClock(s.RemainingSeconds) + "/" + FormatClock(s.TotalSeconds)
}

// Progress returns the elapsed fraction in [0, 1].
func (s Snapshot) Progress() float64 {
	if s.TotalSeconds <= 0 {
		return 0
	}
	return min(1, max(0, float64(s.TotalSeconds-s.RemainingSeconds)/float64(s.TotalSeconds)))
}

// FormatClock renders seconds as mm:ss. Minutes are not wrapped at 60.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
