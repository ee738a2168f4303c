// Package feedback holds the user's most recent subjective sleep report as a
// single dose-adjustment score, and turns free-text descriptions into that
// score through an analyzer backend.
package feedback

import (
	"math"
	"sync/atomic"

	"github.com/nvandessel/sleepsync/internal/constants"
)

// Store is a single-slot holder for the feedback score. The zero value holds
// the neutral score. It is safe for concurrent use; the last write wins.
type Store struct {
	bits atomic.Uint64
}

// NewStore creates a Store holding the neutral score.
func NewStore() *Store {
	return &Store{}
}

// Set clamps score to [-1, 1] and overwrites the stored value.
// NaN is stored as the neutral score.
func (s *Store) Set(score float64) float64 {
	score = Clamp(score)
	s.bits.Store(math.Float64bits(score))
	return score
}

// Get returns the current score.
func (s *Store) Get() float64 {
	return math.Float64frombits(s.bits.Load())
}

// Clamp bounds a score to the feedback range.
func Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return constants.NeutralFeedbackScore
	}
	return math.Max(constants.MinFeedbackScore, math.Min(constants.MaxFeedbackScore, score))
}
