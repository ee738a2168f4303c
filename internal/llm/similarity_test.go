package llm

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1.0},
		{"partial", []float32{1, 1, 0}, []float32{1, 0, 0}, 1.0 / math.Sqrt(2)},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0.0},
		{"different lengths", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
		{"nil", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnchorScore(t *testing.T) {
	tests := []struct {
		name       string
		poor, good float64
		want       float64
	}{
		{"equal similarity is neutral", 0.6, 0.6, 0},
		{"closer to poor", 0.7, 0.6, 0.4},
		{"closer to good", 0.5, 0.6, -0.4},
		{"clamped high", 0.9, 0.1, 1},
		{"clamped low", 0.1, 0.9, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnchorScore(tt.poor, tt.good)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AnchorScore(%v, %v) = %v, want %v", tt.poor, tt.good, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	vec := []float32{3, 4}
	normalize(vec)
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("normalize() = %v, want [0.6 0.8]", vec)
	}

	zero := []float32{0, 0}
	normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("normalize(zero) = %v, want unchanged", zero)
	}
}
