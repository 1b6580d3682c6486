// Package face provides face descriptor matching: fetching and analyzing
// reference photos, comparing live frames against a reference descriptor,
// and caching the per-session reference descriptor.
package face

import "math"

// DefaultThreshold is the maximum Euclidean distance between two descriptors
// that still counts as the same person. Tunable at deploy time, never at runtime.
const DefaultThreshold = 0.55

// Descriptor is a fixed-length numeric vector encoding a face's identity
// signature. Descriptors are held in memory only and never persisted.
type Descriptor []float32

// MatchResult is the outcome of comparing one live frame against a reference.
type MatchResult struct {
	// FaceFound is false when no face was detected in the live frame.
	// Callers must treat this differently from a rejected match.
	FaceFound bool `json:"face_found"`

	// Distance is the Euclidean distance between the descriptors.
	Distance float64 `json:"distance"`

	// Similarity is 1 - Distance, rounded to two decimals for display.
	Similarity float64 `json:"similarity"`

	// Accepted is true when Distance is below the threshold.
	Accepted bool `json:"accepted"`
}

// NoDetection returns the result for a frame without a detectable face.
func NoDetection() MatchResult {
	return MatchResult{FaceFound: false}
}

// EuclideanDistance computes the L2 distance between two descriptors.
// Mismatched or empty vectors yield +Inf so they can never be accepted.
func EuclideanDistance(a, b Descriptor) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match compares a live descriptor against the reference descriptor.
func Match(live, ref Descriptor, threshold float64) MatchResult {
	distance := EuclideanDistance(live, ref)
	return MatchResult{
		FaceFound:  true,
		Distance:   distance,
		Similarity: roundSimilarity(1 - distance),
		Accepted:   distance < threshold,
	}
}

// roundSimilarity rounds to two decimal digits for user-facing display.
func roundSimilarity(s float64) float64 {
	if math.IsInf(s, -1) || math.IsNaN(s) {
		return 0
	}
	return math.Round(s*100) / 100
}
