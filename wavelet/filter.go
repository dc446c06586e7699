// Package wavelet implements the undecimated (shift-invariant) multi-level
// wavelet transform used by the denoising pipeline.
//
// Filters are MODWT-normalised (scaled by 1/√2 per level) so that the total
// coefficient energy equals the signal energy, and centred so that the
// approximation stays time-aligned with the input. All convolutions are
// circular; a circular shift of the input shifts every coefficient array by
// the same amount.
package wavelet

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrUnknownFamily  = errors.New("unknown wavelet family")
	ErrInvalidLevels  = errors.New("levels must be >= 1")
	ErrWindowTooShort = errors.New("window too short for wavelet and levels")
	ErrShapeMismatch  = errors.New("coefficient shape mismatch")
)

// Family names an orthonormal scaling filter.
type Family string

const (
	Haar Family = "haar"
	DB2  Family = "db2"
	DB3  Family = "db3"
	DB4  Family = "db4"
)

var sqrt3 = math.Sqrt(3)

// scaling filters, unnormalised where a closed form exists
var scalingFilters = map[Family][]float64{
	Haar: {1, 1},
	DB2: {
		(1 + sqrt3) / (4 * math.Sqrt2),
		(3 + sqrt3) / (4 * math.Sqrt2),
		(3 - sqrt3) / (4 * math.Sqrt2),
		(1 - sqrt3) / (4 * math.Sqrt2),
	},
	DB3: {
		0.3326705529509569,
		0.8068915093133388,
		0.4598775021193313,
		-0.13501102001039084,
		-0.08544127388224149,
		0.035226291882100656,
	},
	DB4: {
		0.23037781330885523,
		0.7148465705525415,
		0.6308807679295904,
		-0.02798376941698385,
		-0.18703481171888114,
		0.030841381835986965,
		0.032883011666982945,
		-0.010597401784997278,
	},
}

// ParseFamily resolves a case-insensitive family name ("haar", "db1".."db4").
func ParseFamily(name string) (Family, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "db1" {
		return Haar, nil
	}
	f := Family(n)
	if _, ok := scalingFilters[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, name)
	}
	return f, nil
}

// Families lists the supported families in filter-length order.
func Families() []Family {
	return []Family{Haar, DB2, DB3, DB4}
}

// FilterBank holds the MODWT lowpass/highpass pair of one family.
type FilterBank struct {
	family Family
	low    []float64
	high   []float64
	center int
}

// NewFilterBank builds the filter pair for family f.
func NewFilterBank(f Family) (*FilterBank, error) {
	h, ok := scalingFilters[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, string(f))
	}
	var norm float64
	for _, v := range h {
		norm += v * v
	}
	// unit energy, then the MODWT 1/√2 rescale
	scale := 1 / (math.Sqrt(norm) * math.Sqrt2)
	L := len(h)
	low := make([]float64, L)
	high := make([]float64, L)
	for k := 0; k < L; k++ {
		low[k] = h[k] * scale
		// quadrature mirror: g[k] = (-1)^k h[L-1-k]
		g := h[L-1-k] * scale
		if k%2 == 1 {
			g = -g
		}
		high[k] = g
	}
	return &FilterBank{
		family: f,
		low:    low,
		high:   high,
		center: (L - 1) / 2,
	}, nil
}

func (b *FilterBank) Family() Family { return b.family }

// Len returns the filter length.
func (b *FilterBank) Len() int { return len(b.low) }

// MinLength is the shortest window for which the equivalent filter of the
// deepest level does not wrap onto itself.
func (b *FilterBank) MinLength(levels int) int {
	if levels < 1 {
		return 0
	}
	return (b.Len()-1)*((1<<uint(levels))-1) + 1
}

// MaxLevels returns the deepest decomposition a window of n samples supports.
func (b *FilterBank) MaxLevels(n int) int {
	levels := 0
	for b.MinLength(levels+1) <= n && levels < 30 {
		levels++
	}
	return levels
}
