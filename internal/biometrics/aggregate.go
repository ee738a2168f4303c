package biometrics

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nvandessel/sleepsync/internal/constants"
)

var (
	// ErrInsufficientData is returned when a series has no samples.
	ErrInsufficientData = errors.New("insufficient biometric data")

	// ErrMisalignedSeries is returned when the recent windows of the three
	// signals differ in length and cannot be matched by position.
	ErrMisalignedSeries = errors.New("misaligned biometric series")
)

// Aggregation is the result of aggregating one series.
type Aggregation struct {
	// HistoricalMean is the arithmetic mean over the whole series.
	HistoricalMean float64

	// RecentWindow holds the most recent samples, oldest first.
	RecentWindow Series
}

// Mean returns the arithmetic mean of every value in the series.
func Mean(s Series) (float64, error) {
	if len(s) == 0 {
		return 0, ErrInsufficientData
	}
	var sum float64
	for _, sample := range s {
		sum += sample.Value
	}
	return sum / float64(len(s)), nil
}

// Aggregate computes the historical mean and the most recent
// constants.RecentWindowSize samples of s.
func Aggregate(s Series) (Aggregation, error) {
	return AggregateWindow(s, constants.RecentWindowSize)
}

// AggregateWindow is Aggregate with an explicit window size.
// When s is shorter than size the window is the full series.
// On ErrInsufficientData the returned mean is 0.
func AggregateWindow(s Series, size int) (Aggregation, error) {
	mean, err := Mean(s)
	if err != nil {
		return Aggregation{}, err
	}
	start := 0
	if size > 0 && len(s) > size {
		start = len(s) - size
	}
	return Aggregation{
		HistoricalMean: mean,
		RecentWindow:   slices.Clone(s[start:]),
	}, nil
}

// Aligned holds the aggregations of the three signals. Position i of each
// recent window refers to the same hour.
type Aligned struct {
	HRV  Aggregation
	RHR  Aggregation
	Resp Aggregation
}

// Len returns the shared window length.
func (a Aligned) Len() int {
	return len(a.HRV.RecentWindow)
}

// AggregateAligned aggregates the three signals independently and checks
// that their recent windows line up.
func AggregateAligned(hrv, rhr, resp Series) (Aligned, error) {
	var out Aligned
	inputs := []struct {
		signal Signal
		series Series
		dst    *Aggregation
	}{
		{SignalHRV, hrv, &out.HRV},
		{SignalRHR, rhr, &out.RHR},
		{SignalResp, resp, &out.Resp},
	}
	for _, in := range inputs {
		agg, err := Aggregate(in.series)
		if err != nil {
			return Aligned{}, fmt.Errorf("aggregating %s: %w", in.signal, err)
		}
		*in.dst = agg
	}

	n := len(out.HRV.RecentWindow)
	if len(out.RHR.RecentWindow) != n || len(out.Resp.RecentWindow) != n {
		return Aligned{}, fmt.Errorf("%w: hrv=%d rhr=%d respiratory_rate=%d",
			ErrMisalignedSeries, n, len(out.RHR.RecentWindow), len(out.Resp.RecentWindow))
	}
	return out, nil
}
