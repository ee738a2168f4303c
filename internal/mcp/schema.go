package mcp

import (
	"time"

	"github.com/nvandessel/sleepsync/internal/dose"
)

// SleepStartInput defines the input for sleep_start tool.
type SleepStartInput struct {
	Minutes     int    `json:"minutes" jsonschema:"Session length in minutes (must be positive)"`
	Description string `json:"description,omitempty" jsonschema:"How last night's sleep went. Analyzed into a feedback score before the dose is computed"`
}

// SleepStartOutput defines the output for sleep_start tool.
type SleepStartOutput struct {
	Session       SessionSummary `json:"session" jsonschema:"The started session"`
	FeedbackScore *float64       `json:"feedback_score,omitempty" jsonschema:"Score derived from the description, if one was given"`
	FeedbackError string         `json:"feedback_error,omitempty" jsonschema:"Why the description could not be scored"`
	Message       string         `json:"message" jsonschema:"Human-readable result message"`
}

// SleepStatusInput defines the input for sleep_status tool.
type SleepStatusInput struct{}

// SleepStatusOutput defines the output for sleep_status tool.
type SleepStatusOutput struct {
	Session SessionSummary `json:"session" jsonschema:"Current session state"`
	Message string         `json:"message" jsonschema:"Human-readable status line"`
}

// SleepCancelInput defines the input for sleep_cancel tool.
type SleepCancelInput struct{}

// SleepCancelOutput defines the output for sleep_cancel tool.
type SleepCancelOutput struct {
	Session SessionSummary `json:"session" jsonschema:"The cancelled session"`
	Message string         `json:"message" jsonschema:"Human-readable result message"`
}

// SleepFeedbackInput defines the input for sleep_feedback tool.
type SleepFeedbackInput struct {
	Description string `json:"description" jsonschema:"Free-text description of how the user slept"`
}

// SleepFeedbackOutput defines the output for sleep_feedback tool.
type SleepFeedbackOutput struct {
	Score   float64 `json:"score" jsonschema:"Feedback score in [-1, 1]; positive raises the next dose"`
	Stored  float64 `json:"stored" jsonschema:"Score now held by the feedback store"`
	Message string  `json:"message" jsonschema:"Human-readable result message"`
}

// DoseSeriesInput defines the input for dose_series tool.
type DoseSeriesInput struct {
	RemainingMinutes float64 `json:"remaining_minutes,omitempty" jsonschema:"Minutes remaining in the session (default: 60)"`
	TotalMinutes     float64 `json:"total_minutes,omitempty" jsonschema:"Total session minutes (default: 60)"`
}

// DoseSeriesOutput defines the output for dose_series tool.
type DoseSeriesOutput struct {
	Samples    []DoseSample `json:"samples" jsonschema:"Dose per historical hour, oldest first"`
	ActiveDose float64      `json:"active_dose" jsonschema:"Dose from the most recent hour"`
	BaseDose   float64      `json:"base_dose" jsonschema:"Base dose in mg"`
	Feedback   float64      `json:"feedback" jsonschema:"Feedback score used"`
	Source     string       `json:"source" jsonschema:"Biometric provider that supplied the data"`
}

// DoseSample is a compact view of one dose.Sample.
type DoseSample struct {
	HourLabel int       `json:"hour_label"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	// RawTimestamp is set when the source timestamp did not parse.
	RawTimestamp string  `json:"raw_timestamp,omitempty"`
	HRV          float64 `json:"hrv"`
	RHR          float64 `json:"rhr"`
	Resp         float64 `json:"resp"`
	Dose         float64 `json:"dose"`
}

// SessionSummary is the session view returned by tools.
type SessionSummary struct {
	ID               string    `json:"id,omitempty"`
	Status           string    `json:"status"`
	Remaining        string    `json:"remaining"`
	Total            string    `json:"total"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	TotalSeconds     int64     `json:"total_seconds"`
	TargetTime       time.Time `json:"target_time,omitzero"`
	ActiveDose       *float64  `json:"active_dose,omitempty"`
	Dispatch         string    `json:"dispatch,omitempty"`
	DispatchError    string    `json:"dispatch_error,omitempty"`
}

func toDoseSamples(series dose.Series) []DoseSample {
	out := make([]DoseSample, 0, len(series))
	for _, s := range series {
		out = append(out, DoseSample{
			HourLabel:    s.HourLabel,
			Timestamp:    s.Timestamp,
			RawTimestamp: s.RawTimestamp,
			HRV:          s.CurrentHRV,
			RHR:          s.CurrentRHR,
			Resp:         s.CurrentResp,
			Dose:         s.Dose,
		})
	}
	return out
}
