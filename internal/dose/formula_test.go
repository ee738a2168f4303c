package dose

import (
	"errors"
	"math"
	"testing"
)

func TestComputeDose(t *testing.T) {
	tests := []struct {
		name      string
		base      float64
		remaining float64
		total     float64
		deltas    Deltas
		feedback  float64
		want      float64
	}{
		{
			name: "offsetting deltas return base",
			base: 1, remaining: 3600, total: 3600,
			deltas: Deltas{HRV: 5, RHR: -2},
			want:   1.0,
		},
		{
			name: "half the time left halves the biometric term",
			base: 1, remaining: 1800, total: 3600,
			deltas: Deltas{HRV: 10},
			want:   2.0,
		},
		{
			name: "feedback adds linearly",
			base: 1, remaining: 0, total: 3600,
			deltas:   Deltas{HRV: 100, RHR: 100, Resp: 100},
			feedback: 1,
			want:     1.3,
		},
		{
			name: "all weights",
			base: 0.5, remaining: 60, total: 60,
			deltas:   Deltas{HRV: 1, RHR: 1, Resp: 1},
			feedback: -1,
			want:     0.5 + 0.2 + 0.5 + 0.3 - 0.3,
		},
		{
			name: "output is not clamped",
			base: 1, remaining: 1, total: 1,
			deltas: Deltas{RHR: -10},
			want:   -4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeDose(tt.base, tt.remaining, tt.total, tt.deltas, tt.feedback)
			if err != nil {
				t.Fatalf("ComputeDose() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ComputeDose() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeDose_ZeroInputsReturnBase(t *testing.T) {
	for _, base := range []float64{0, 0.25, 1, 3.7} {
		for _, r := range []float64{0, 1, 1800, 3600} {
			got, err := ComputeDose(base, r, 3600, Deltas{}, 0)
			if err != nil {
				t.Fatalf("ComputeDose() error = %v", err)
			}
			if got != base {
				t.Errorf("ComputeDose(%v, %v, 3600, 0, 0) = %v, want %v", base, r, got, base)
			}
		}
	}
}

func TestComputeDose_InvalidDuration(t *testing.T) {
	for _, total := range []float64{0, -1} {
		if _, err := ComputeDose(1, 1, total, Deltas{}, 0); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("ComputeDose(total=%v) error = %v, want ErrInvalidDuration", total, err)
		}
	}
}
