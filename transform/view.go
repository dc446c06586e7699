package transform

// View is a read-only window onto a coefficient array. It reads through to
// the Result's storage, so values change if shrinkage is applied later.
type View struct {
	data []float64
}

func (v View) Len() int { return len(v.data) }

// At returns coefficient i; it panics when i is out of range like a slice.
func (v View) At(i int) float64 { return v.data[i] }

// Values returns a copy of the coefficients.
func (v View) Values() []float64 {
	return append([]float64(nil), v.data...)
}

// CopyTo copies into dst and returns the number of values copied.
func (v View) CopyTo(dst []float64) int {
	return copy(dst, v.data)
}

// Range calls fn for each coefficient until it returns false.
func (v View) Range(fn func(i int, c float64) bool) {
	for i, c := range v.data {
		if !fn(i, c) {
			return
		}
	}
}
