// Package dose maps aggregated biometrics, the remaining sleep time and the
// feedback score to a recommended dose.
//
// The formula is
//
//	dose = base + (remaining/total)·(α·ΔHRV + β·ΔRHR + ρ·ΔResp) + w·feedback
//
// where each Δ is historical mean minus current reading. The output is not
// clamped: deltas far from the history can produce negative or very large
// doses, and callers must bound the value before it reaches hardware.
package dose

import (
	"errors"
	"fmt"
)

// Formula weights.
const (
	Alpha          = 0.2
	Beta           = 0.5
	Rho            = 0.3
	FeedbackWeight = 0.3
)

// ErrInvalidDuration is returned when the total duration is not positive.
var ErrInvalidDuration = errors.New("total duration must be positive")

// Deltas are historical means minus current readings.
type Deltas struct {
	HRV  float64 `json:"hrv_delta"`
	RHR  float64 `json:"rhr_delta"`
	Resp float64 `json:"resp_delta"`
}

// ComputeDose applies the dose formula.
func ComputeDose(base, remaining, total float64, d Deltas, feedback float64) (float64, error) {
	if total <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidDuration, total)
	}
	ratio := remaining / total
	return base + ratio*(Alpha*d.HRV+Beta*d.RHR+Rho*d.Resp) + FeedbackWeight*feedback, nil
}
