package llm

import "math"

// Anchor phrases the local backend compares descriptions against.
const (
	poorSleepAnchor = "I slept badly, woke up many times during the night, felt restless and stressed, and I am exhausted."
	goodSleepAnchor = "I slept deeply through the whole night, woke up rested and calm, and feel full of energy."
)

// anchorGain stretches the typically narrow gap between anchor similarities
// across the score range.
const anchorGain = 4.0

// CosineSimilarity computes the cosine similarity between two float32 vectors.
// Returns a value between -1.0 and 1.0. Returns 0.0 if either vector has zero magnitude
// or the vectors have different lengths.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// AnchorScore turns similarities to the poor-sleep and good-sleep anchors
// into a score in [-1, 1]. Closer to the poor anchor is positive.
func AnchorScore(poorSim, goodSim float64) float64 {
	return clampScore((poorSim - goodSim) * anchorGain)
}

// normalize performs in-place L2 normalization of a float32 vector.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
