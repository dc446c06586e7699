// Package shrink estimates per-level wavelet thresholds and applies hard or
// soft shrinkage to coefficient arrays. Every estimator is a pure function of
// its input and returns 0 on degenerate (empty, constant, all-zero) levels.
package shrink

import (
	"math"
	"slices"
)

// madScale converts the median absolute deviation of Gaussian noise into σ.
const madScale = 0.6745

// NoiseSigma is the robust noise estimate median(|d|)/0.6745.
func NoiseSigma(detail []float64) float64 {
	abs := absValues(detail)
	if len(abs) == 0 {
		return 0
	}
	slices.Sort(abs)
	return finiteOrZero(median(abs) / madScale)
}

// UniversalThreshold is the VisuShrink threshold σ̂·√(2·ln n).
func UniversalThreshold(detail []float64) float64 {
	n := countFinite(detail)
	if n < 2 {
		return 0
	}
	sigma := NoiseSigma(detail)
	if sigma == 0 {
		return 0
	}
	return finiteOrZero(sigma * math.Sqrt(2*math.Log(float64(n))))
}

// BayesShrinkThreshold assumes Laplacian coefficients: σ̂²/σx with
// σx² = max(0, Var[d] − σ̂²). A level with no signal variance yields 0.
func BayesShrinkThreshold(detail []float64) float64 {
	sigma := NoiseSigma(detail)
	if sigma == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, v := range detail {
		if isFinite(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	var sumSq float64
	for _, v := range detail {
		if isFinite(v) {
			sumSq += (v - mean) * (v - mean)
		}
	}
	signalVar := math.Max(0, sumSq/float64(n)-sigma*sigma)
	if signalVar == 0 {
		return 0
	}
	return finiteOrZero(sigma * sigma / math.Sqrt(signalVar))
}

// SUREThreshold minimises Stein's unbiased risk estimate for soft shrinkage
// over the candidate set {0} ∪ |d|/σ̂. The minimiser is rescaled by σ̂ and
// capped at the universal threshold.
func SUREThreshold(detail []float64) float64 {
	sigma := NoiseSigma(detail)
	if sigma == 0 {
		return 0
	}
	abs := absValues(detail)
	n := len(abs)
	if n < 2 {
		return 0
	}
	for i := range abs {
		abs[i] /= sigma
	}
	slices.Sort(abs)

	// SURE(t) = n − 2·#{|x| ≤ t} + Σ min(|x|, t)²
	// Walking sorted candidates keeps the running prefix of squares.
	best, bestRisk := 0.0, float64(n)
	var prefixSq float64
	for i, t := range abs {
		prefixSq += t * t
		below := i + 1
		above := n - below
		risk := float64(n) - 2*float64(below) + prefixSq + float64(above)*t*t
		if risk < bestRisk {
			best, bestRisk = t, risk
		}
	}
	universal := math.Sqrt(2 * math.Log(float64(n)))
	return finiteOrZero(math.Min(best, universal) * sigma)
}

// HybridSUREThreshold is the SureShrink heuristic: SURE is unreliable on
// sparse levels, so those fall back to the universal threshold.
func HybridSUREThreshold(detail []float64) float64 {
	sigma := NoiseSigma(detail)
	if sigma == 0 {
		return 0
	}
	var energy float64
	var n int
	for _, v := range detail {
		if isFinite(v) {
			x := v / sigma
			energy += x * x
			n++
		}
	}
	if n < 2 {
		return 0
	}
	nf := float64(n)
	eta := (energy - nf) / nf
	crit := math.Pow(math.Log2(nf), 1.5) / math.Sqrt(nf)
	if eta < crit {
		return UniversalThreshold(detail)
	}
	return SUREThreshold(detail)
}

func absValues(detail []float64) []float64 {
	out := make([]float64, 0, len(detail))
	for _, v := range detail {
		if isFinite(v) {
			out = append(out, math.Abs(v))
		}
	}
	return out
}

func countFinite(detail []float64) int {
	n := 0
	for _, v := range detail {
		if isFinite(v) {
			n++
		}
	}
	return n
}

// median of a sorted slice
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrZero(v float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return v
}
