package dose

import (
	"fmt"
	"time"

	"github.com/nvandessel/sleepsync/internal/biometrics"
)

// Sample is one hour of a dose series.
type Sample struct {
	// HourLabel counts hours back from the most recent sample, which is 0.
	HourLabel int       `json:"hour_label"`
	Timestamp time.Time `json:"timestamp"`
	// RawTimestamp holds the source timestamp when it could not be parsed.
	RawTimestamp string  `json:"raw_timestamp,omitempty"`
	Deltas       Deltas  `json:"deltas"`
	CurrentHRV   float64 `json:"current_hrv"`
	CurrentRHR   float64 `json:"current_rhr"`
	CurrentResp  float64 `json:"current_resp"`
	Dose         float64 `json:"dose"`
}

// Series is a batch of samples, oldest first.
type Series []Sample

// Unparsed returns the samples whose source timestamp did not parse.
func (s Series) Unparsed() []Sample {
	var out []Sample
	for _, sm := range s {
		if sm.RawTimestamp != "" {
			out = append(out, sm)
		}
	}
	return out
}

// Active returns the dose a session dispatches: the most recent sample.
func (s Series) Active() (Sample, bool) {
	if len(s) == 0 {
		return Sample{}, false
	}
	return s[len(s)-1], true
}

// Doses returns only the dose values.
func (s Series) Doses() []float64 {
	out := make([]float64, len(s))
	for i, sample := range s {
		out[i] = sample.Dose
	}
	return out
}

// Params are the inputs shared by every sample of one batch.
type Params struct {
	Base      float64
	Remaining float64
	Total     float64

	// Feedback is read once for the whole batch.
	Feedback float64
}

// ComputeSeries aggregates the three signals and produces one sample per
// position of the aligned recent window. Timestamps come from the HRV window.
func ComputeSeries(hrv, rhr, resp biometrics.Series, p Params) (Series, error) {
	if p.Total <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDuration, p.Total)
	}
	agg, err := biometrics.AggregateAligned(hrv, rhr, resp)
	if err != nil {
		return nil, err
	}

	n := agg.Len()
	out := make(Series, n)
	for i := range n {
		h, r, b := agg.HRV.RecentWindow[i], agg.RHR.RecentWindow[i], agg.Resp.RecentWindow[i]
		d := Deltas{
			HRV:  agg.HRV.HistoricalMean - h.Value,
			RHR:  agg.RHR.HistoricalMean - r.Value,
			Resp: agg.Resp.HistoricalMean - b.Value,
		}
		value, err := ComputeDose(p.Base, p.Remaining, p.Total, d, p.Feedback)
		if err != nil {
			return nil, err
		}
		var raw string
		ts, err := h.Time()
		if err != nil {
			raw = h.Timestamp
		}
		out[i] = Sample{
			HourLabel:    (n - 1) - i,
			Timestamp:    ts,
			RawTimestamp: raw,
			Deltas:       d,
			CurrentHRV:   h.Value,
			CurrentRHR:   r.Value,
			CurrentResp:  b.Value,
			Dose:         value,
		}
	}
	return out, nil
}
