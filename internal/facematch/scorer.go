package facematch

import (
	"math"
)

// Tier labels for match confidence buckets.
const (
	TierStrong   = "strong"
	TierGood     = "good"
	TierPossible = "possible"
)

// Thresholds holds the calibration scale and every confidence/distance
// floor used by matching. A single instance is shared by all call paths
// so that no two subsystems can drift apart on the scale.
type Thresholds struct {
	// Scale is the distance at which confidence reaches zero.
	// Calibrated for 128-dim face-api descriptors.
	Scale float64

	Strong   int
	Good     int
	Possible int // acceptance floor: below this a candidate is discarded

	// MaxDistance is a hard rejection on the raw metric, applied
	// independently of the confidence mapping.
	MaxDistance float64
}

// DefaultThresholds returns the calibrated production values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Scale:       0.8,
		Strong:      70,
		Good:        55,
		Possible:    20,
		MaxDistance: 0.6,
	}
}

// Distance returns the Euclidean distance between two descriptors.
// Mismatched lengths or absent vectors yield +Inf, never an error:
// such a pair simply cannot match.
func Distance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence maps a distance to an integer percentage in [0, 100].
func Confidence(distance, scale float64) int {
	if math.IsInf(distance, 1) || scale <= 0 {
		return 0
	}
	c := math.Round(math.Max(0, 1-distance/scale) * 100)
	if c > 100 {
		c = 100
	}
	return int(c)
}

// Tier classifies a confidence value. Confidences below the acceptance
// floor return an empty string and must be excluded from results.
func (t Thresholds) Tier(confidence int) string {
	switch {
	case confidence >= t.Strong:
		return TierStrong
	case confidence >= t.Good:
		return TierGood
	case confidence >= t.Possible:
		return TierPossible
	default:
		return ""
	}
}

// Accept reports whether a candidate clears both the acceptance floor
// and the raw-distance cutoff.
func (t Thresholds) Accept(confidence int, distance float64) bool {
	return confidence >= t.Possible && distance <= t.MaxDistance
}
