package shrink

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaussian(n int, sigma float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = sigma * rng.NormFloat64()
	}
	return out
}

func TestNoiseSigma(t *testing.T) {
	assert.Equal(t, 0.0, NoiseSigma(nil))
	assert.InDelta(t, 2.5/madScale, NoiseSigma([]float64{-1, 2, -3, 4}), 1e-12, "even count averages the middle pair")
	assert.InDelta(t, 2/madScale, NoiseSigma([]float64{1, -2, 3}), 1e-12)
	// robust to a NaN sneaking into the level
	assert.InDelta(t, 2/madScale, NoiseSigma([]float64{1, -2, 3, math.NaN()}), 1e-12)

	est := NoiseSigma(gaussian(4096, 3, 1))
	assert.InEpsilon(t, 3.0, est, 0.1)
}

func TestUniversalThreshold(t *testing.T) {
	detail := gaussian(1024, 1.5, 2)
	want := NoiseSigma(detail) * math.Sqrt(2*math.Log(1024))
	assert.InDelta(t, want, UniversalThreshold(detail), 1e-12)
}

func TestThresholds_Degenerate(t *testing.T) {
	cases := map[string][]float64{
		"nil":      nil,
		"single":   {3},
		"zeros":    make([]float64, 64),
		"all nan":  {math.NaN(), math.NaN()},
		"mostly 0": append(make([]float64, 63), 10),
	}
	for name, detail := range cases {
		t.Run(name, func(t *testing.T) {
			for _, rule := range []Rule{RuleUniversal, RuleBayes, RuleSURE, RuleHybridSURE} {
				v := Threshold(rule, detail)
				assert.Equal(t, 0.0, v, "%s", rule)
			}
		})
	}
}

func TestBayesShrinkThreshold(t *testing.T) {
	// pure noise: signal variance estimate collapses towards 0, threshold is large or 0
	noise := gaussian(2048, 1, 3)
	tNoise := BayesShrinkThreshold(noise)
	assert.GreaterOrEqual(t, tNoise, 0.0)

	// strong signal on top of unit noise: threshold ~ σ²/σx, well below σ
	rng := rand.New(rand.NewSource(4))
	mixed := make([]float64, 2048)
	for i := range mixed {
		mixed[i] = rng.NormFloat64()
		if i%8 == 0 {
			mixed[i] += 40 * rng.NormFloat64()
		}
	}
	tMixed := BayesShrinkThreshold(mixed)
	sigma := NoiseSigma(mixed)
	assert.Greater(t, tMixed, 0.0)
	assert.Less(t, tMixed, sigma)

	var sum, sumSq float64
	for _, v := range mixed {
		sum += v
	}
	mean := sum / 2048
	for _, v := range mixed {
		sumSq += (v - mean) * (v - mean)
	}
	signalVar := sumSq/2048 - sigma*sigma
	assert.InDelta(t, sigma*sigma/math.Sqrt(signalVar), tMixed, 1e-9)
}

func TestBayesShrinkThresholdUsesCentredVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	detail := make([]float64, 1024)
	for i := range detail {
		detail[i] = rng.NormFloat64()
		if i%16 == 0 {
			detail[i] += 10 * rng.NormFloat64()
		}
	}
	var sum float64
	for _, v := range detail {
		sum += v
	}
	mean := sum / float64(len(detail))
	var variance float64
	for _, v := range detail {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(detail))

	// a constant offset moves σ̂ but not the signal variance term
	shifted := make([]float64, len(detail))
	for i, v := range detail {
		shifted[i] = v + 0.5
	}
	sigma := NoiseSigma(shifted)
	require.Greater(t, variance, sigma*sigma)
	want := sigma * sigma / math.Sqrt(variance-sigma*sigma)
	assert.InDelta(t, want, BayesShrinkThreshold(shifted), 1e-9)

	var rawSq float64
	for _, v := range shifted {
		rawSq += v * v
	}
	uncentred := sigma * sigma / math.Sqrt(rawSq/float64(len(shifted))-sigma*sigma)
	assert.Greater(t, BayesShrinkThreshold(shifted), uncentred)
}

func TestSUREThreshold(t *testing.T) {
	noise := gaussian(1024, 2, 5)
	sure := SUREThreshold(noise)
	universal := UniversalThreshold(noise)
	assert.Greater(t, sure, 0.0)
	assert.LessOrEqual(t, sure, universal+1e-12, "capped at universal")

	// brute force over the same candidate set
	sigma := NoiseSigma(noise)
	best, bestRisk := 0.0, math.Inf(1)
	n := float64(len(noise))
	candidates := append([]float64{0}, noise...)
	for _, c := range candidates {
		tt := math.Abs(c) / sigma
		risk := n
		for _, v := range noise {
			x := math.Abs(v) / sigma
			if x <= tt {
				risk -= 2
			}
			m := math.Min(x, tt)
			risk += m * m
		}
		if risk < bestRisk {
			best, bestRisk = tt, risk
		}
	}
	want := math.Min(best, math.Sqrt(2*math.Log(n))) * sigma
	assert.InDelta(t, want, sure, 1e-9)
}

func TestHybridSUREThreshold_SparseFallsBackToUniversal(t *testing.T) {
	noise := gaussian(512, 1, 6)
	assert.Equal(t, UniversalThreshold(noise), HybridSUREThreshold(noise))

	rng := rand.New(rand.NewSource(7))
	dense := make([]float64, 512)
	for i := range dense {
		dense[i] = rng.NormFloat64()
		if i%4 == 0 {
			dense[i] += 30
		}
	}
	assert.Equal(t, SUREThreshold(dense), HybridSUREThreshold(dense))
}

func TestThresholdsDoNotMutate(t *testing.T) {
	detail := gaussian(128, 1, 8)
	orig := append([]float64(nil), detail...)
	for _, rule := range []Rule{RuleUniversal, RuleBayes, RuleSURE, RuleHybridSURE} {
		_ = Threshold(rule, detail)
	}
	require.Equal(t, orig, detail)
}
