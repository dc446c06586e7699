package transform

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"wavelet-signal-go/shrink"
	"wavelet-signal-go/wavelet"
)

// reconstructionCache remembers the last synthesized level. Any mutation of
// the coefficients drops it.
type reconstructionCache struct {
	valid bool
	level int
	data  []float64
}

// Result owns one approximation and Levels() detail arrays of equal length.
// Detail level 1 is the finest scale.
//
// A Result has a single writer (ApplyShrinkage, Reconstruct). Readers may
// call Detail, Approximation and Details concurrently as long as no
// shrinkage is applied at the same time.
type Result struct {
	bank *wavelet.FilterBank

	mu      sync.RWMutex
	coeffs  *wavelet.Coefficients
	cache   reconstructionCache
	scratch []float64

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newResult(bank *wavelet.FilterBank, coeffs *wavelet.Coefficients) *Result {
	return &Result{bank: bank, coeffs: coeffs}
}

// Len returns the window length N.
func (r *Result) Len() int { return r.coeffs.Len() }

// Levels returns the decomposition depth.
func (r *Result) Levels() int { return r.coeffs.Levels() }

func (r *Result) checkLevel(level, lo int) error {
	if level < lo || level > r.Levels() {
		return fmt.Errorf("%w: level %d outside [%d, %d]", ErrBounds, level, lo, r.Levels())
	}
	return nil
}

// Detail returns a read-only view of detail level (1-based).
func (r *Result) Detail(level int) (View, error) {
	if err := r.checkLevel(level, 1); err != nil {
		return View{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return View{data: r.coeffs.Details[level-1]}, nil
}

// Approximation returns a read-only view of the coarsest coefficients.
func (r *Result) Approximation() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return View{data: r.coeffs.Approximation}
}

// Details returns freshly allocated copies of every detail level, in level
// order. The caller owns the returned slices.
func (r *Result) Details() [][]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][]float64, len(r.coeffs.Details))
	for i, d := range r.coeffs.Details {
		out[i] = append([]float64(nil), d...)
	}
	return out
}

// Energy is the total coefficient energy.
func (r *Result) Energy() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coeffs.Energy()
}

// Reconstruct synthesizes the approximation plus detail levels 1..level.
// Level 0 is the smooth trend, Levels() is the full inverse. A repeated call
// for the same level with no shrinkage in between is served from the cache.
// The returned slice belongs to the caller.
func (r *Result) Reconstruct(level int) ([]float64, error) {
	if err := r.checkLevel(level, 0); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.valid && r.cache.level == level {
		r.hits.Add(1)
		return append([]float64(nil), r.cache.data...), nil
	}
	r.misses.Add(1)

	n := r.coeffs.Len()
	if r.cache.data == nil {
		r.cache.data = make([]float64, n)
		r.scratch = make([]float64, n)
	}
	r.cache.valid = false
	if err := r.bank.SynthesizeInto(r.cache.data, r.scratch, r.coeffs, level); err != nil {
		// shapes are fixed at construction; reaching this means memory corruption
		panic(fmt.Sprintf("transform: coefficient invariant violated: %v", err))
	}
	r.cache.valid = true
	r.cache.level = level
	return append([]float64(nil), r.cache.data...), nil
}

// ReconstructApproximation is Reconstruct(0): the trend synthesised back to
// signal space with every detail level zeroed. It is not the raw
// Approximation() coefficient array.
func (r *Result) ReconstructApproximation() ([]float64, error) {
	return r.Reconstruct(0)
}

// ApplyShrinkage thresholds detail level in place and drops the
// reconstruction cache.
func (r *Result) ApplyShrinkage(level int, threshold float64, soft bool) error {
	if err := r.checkLevel(level, 1); err != nil {
		return err
	}
	if math.IsNaN(threshold) || threshold < 0 {
		return fmt.Errorf("%w: threshold must be a non-negative number, got %v", ErrConfiguration, threshold)
	}
	mode := shrink.Hard
	if soft {
		mode = shrink.Soft
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	shrink.Apply(r.coeffs.Details[level-1], threshold, mode)
	r.cache.valid = false
	return nil
}

// ApplySpec applies one planned threshold.
func (r *Result) ApplySpec(spec shrink.Spec) error {
	return r.ApplyShrinkage(spec.Level, spec.Value, spec.Mode == shrink.Soft)
}

// ApplyPlan applies specs in order, stopping at the first error.
func (r *Result) ApplyPlan(specs []shrink.Spec) error {
	for _, s := range specs {
		if err := r.ApplySpec(s); err != nil {
			return err
		}
	}
	return nil
}

// CacheStats reports reconstruction cache hits and misses.
func (r *Result) CacheStats() (hits, misses uint64) {
	return r.hits.Load(), r.misses.Load()
}
