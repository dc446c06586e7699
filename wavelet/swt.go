package wavelet

import "fmt"

// Coefficients is the output of a forward transform. Details[0] holds level
// 1 (the finest scale); every array has the length of the input.
type Coefficients struct {
	Approximation []float64
	Details       [][]float64
}

// Levels returns the decomposition depth.
func (c *Coefficients) Levels() int { return len(c.Details) }

// Len returns the window length.
func (c *Coefficients) Len() int { return len(c.Approximation) }

// Energy is the sum of squares over the approximation and all detail levels.
func (c *Coefficients) Energy() float64 {
	var e float64
	for _, v := range c.Approximation {
		e += v * v
	}
	for _, d := range c.Details {
		for _, v := range d {
			e += v * v
		}
	}
	return e
}

// Clone returns a deep copy.
func (c *Coefficients) Clone() *Coefficients {
	out := &Coefficients{
		Approximation: append([]float64(nil), c.Approximation...),
		Details:       make([][]float64, len(c.Details)),
	}
	for i, d := range c.Details {
		out.Details[i] = append([]float64(nil), d...)
	}
	return out
}

func (c *Coefficients) validate() error {
	n := len(c.Approximation)
	if n == 0 {
		return fmt.Errorf("%w: empty approximation", ErrShapeMismatch)
	}
	for i, d := range c.Details {
		if len(d) != n {
			return fmt.Errorf("%w: level %d has %d samples, want %d", ErrShapeMismatch, i+1, len(d), n)
		}
	}
	return nil
}

// offsets returns the circular tap positions of level j (1-based).
func (b *FilterBank) offsets(j, n int) []int {
	step := 1 << uint(j-1)
	out := make([]int, len(b.low))
	for k := range out {
		out[k] = mod(step*(k-b.center), n)
	}
	return out
}

// Decompose runs the forward transform to the given depth.
func (b *FilterBank) Decompose(samples []float64, levels int) (*Coefficients, error) {
	if levels < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLevels, levels)
	}
	n := len(samples)
	if need := b.MinLength(levels); n < need {
		return nil, fmt.Errorf("%w: %s with %d levels needs %d samples, got %d",
			ErrWindowTooShort, b.family, levels, need, n)
	}
	out := &Coefficients{Details: make([][]float64, levels)}
	prev := append([]float64(nil), samples...)
	for j := 1; j <= levels; j++ {
		off := b.offsets(j, n)
		approx := make([]float64, n)
		detail := make([]float64, n)
		for i := 0; i < n; i++ {
			var a, d float64
			for k, o := range off {
				idx := i + o
				if idx >= n {
					idx -= n
				}
				v := prev[idx]
				a += b.low[k] * v
				d += b.high[k] * v
			}
			approx[i] = a
			detail[i] = d
		}
		out.Details[j-1] = detail
		prev = approx
	}
	out.Approximation = prev
	return out, nil
}

// Synthesize inverts c using the approximation and detail levels 1..active.
// Levels above active contribute nothing; active == c.Levels() is the full
// inverse.
func (b *FilterBank) Synthesize(c *Coefficients, active int) ([]float64, error) {
	n := c.Len()
	dst := make([]float64, n)
	if err := b.SynthesizeInto(dst, make([]float64, n), c, active); err != nil {
		return nil, err
	}
	return dst, nil
}

// SynthesizeInto is Synthesize writing into caller-owned buffers. dst and
// scratch must both have the window length and must not alias c.
func (b *FilterBank) SynthesizeInto(dst, scratch []float64, c *Coefficients, active int) error {
	if err := c.validate(); err != nil {
		return err
	}
	levels := c.Levels()
	if active < 0 || active > levels {
		return fmt.Errorf("%w: active levels %d outside [0, %d]", ErrShapeMismatch, active, levels)
	}
	n := c.Len()
	if len(dst) != n || len(scratch) != n {
		return fmt.Errorf("%w: buffers must have %d samples", ErrShapeMismatch, n)
	}
	cur, next := dst, scratch
	// start on the buffer that ends up in dst after levels swaps
	if levels%2 == 1 {
		cur, next = scratch, dst
	}
	copy(cur, c.Approximation)
	for j := levels; j >= 1; j-- {
		off := b.offsets(j, n)
		var detail []float64
		if j <= active {
			detail = c.Details[j-1]
		}
		for i := range next {
			next[i] = 0
		}
		// adjoint: scatter each coefficient back onto its taps
		for i := 0; i < n; i++ {
			a := cur[i]
			var d float64
			if detail != nil {
				d = detail[i]
			}
			for k, o := range off {
				idx := i + o
				if idx >= n {
					idx -= n
				}
				next[idx] += b.low[k]*a + b.high[k]*d
			}
		}
		cur, next = next, cur
	}
	return nil
}

func mod(x, n int) int {
	r := x % n
	if r < 0 {
		r += n
	}
	return r
}
