// Package biometrics models physiological time series and aggregates them
// into historical means and index-aligned recent windows.
package biometrics

import (
	"encoding/json"
	"strings"
	"time"
)

// Quality grades how trustworthy a recorded sample is.
type Quality string

const (
	QualityGood    Quality = "good"
	QualityFair    Quality = "fair"
	QualityPoor    Quality = "poor"
	QualityUnknown Quality = "unknown"
)

// ParseQuality maps a provider quality label to a Quality.
// Unrecognized labels map to QualityUnknown.
func ParseQuality(s string) Quality {
	switch Quality(strings.ToLower(strings.TrimSpace(s))) {
	case QualityGood:
		return QualityGood
	case QualityFair:
		return QualityFair
	case QualityPoor:
		return QualityPoor
	default:
		return QualityUnknown
	}
}

// UnmarshalJSON normalizes free-form provider labels.
func (q *Quality) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*q = ParseQuality(s)
	return nil
}

// Sample is a single recorded value of one signal.
type Sample struct {
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"` // ISO-8601
	Quality   Quality `json:"quality"`
}

// Time parses the sample timestamp.
func (s Sample) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, s.Timestamp)
}

// Series is a time-ordered sequence of samples for one signal, oldest first.
type Series []Sample

// Values returns the sample values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, sample := range s {
		out[i] = sample.Value
	}
	return out
}

// Signal names one of the physiological signals the dose formula consumes.
type Signal string

const (
	SignalHRV  Signal = "hrv"
	SignalRHR  Signal = "rhr"
	SignalResp Signal = "respiratory_rate"
)

// Signals lists every signal in formula order.
var Signals = []Signal{SignalHRV, SignalRHR, SignalResp}
