// Package transform wraps the wavelet primitive into per-step results that
// carry their own reconstruction cache and in-place shrinkage.
package transform

import (
	"errors"
	"fmt"

	"wavelet-signal-go/wavelet"
)

var (
	// ErrConfiguration covers non-positive levels, unknown families and
	// windows too short for the requested depth.
	ErrConfiguration = errors.New("transform configuration error")
	// ErrBounds is returned for a level index outside the valid range.
	ErrBounds = errors.New("level out of bounds")
)

// Adapter produces Results for one wavelet family. It holds no mutable
// state and is safe for concurrent use.
type Adapter struct {
	bank *wavelet.FilterBank
}

// NewAdapter builds an adapter for family.
func NewAdapter(family wavelet.Family) (*Adapter, error) {
	bank, err := wavelet.NewFilterBank(family)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &Adapter{bank: bank}, nil
}

func (a *Adapter) Family() wavelet.Family { return a.bank.Family() }

// MinWindow returns the shortest window accepted for levels.
func (a *Adapter) MinWindow(levels int) int { return a.bank.MinLength(levels) }

// Transform decomposes samples to the given depth. The input is not
// retained.
func (a *Adapter) Transform(samples []float64, levels int) (*Result, error) {
	if levels < 1 {
		return nil, fmt.Errorf("%w: levels must be >= 1, got %d", ErrConfiguration, levels)
	}
	coeffs, err := a.bank.Decompose(samples, levels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return newResult(a.bank, coeffs), nil
}
