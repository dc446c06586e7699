// Package volatility turns per-level wavelet detail coefficients into one
// smoothed volatility scalar.
package volatility

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

var ErrConfiguration = errors.New("volatility configuration error")

// Config 波动率估计参数
type Config struct {
	SmoothingPeriod  int     `yaml:"smoothingPeriod"`  // EMA 周期
	LevelWeightDecay float64 `yaml:"levelWeightDecay"` // 层级权重衰减，越粗的层权重越低
	Window           int     `yaml:"window"`           // 每层 RMS 的尾部窗口，0 表示整段
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		SmoothingPeriod:  14,
		LevelWeightDecay: 0.5,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.SmoothingPeriod < 1 {
		return fmt.Errorf("%w: smoothingPeriod must be >= 1, got %d", ErrConfiguration, c.SmoothingPeriod)
	}
	if math.IsNaN(c.LevelWeightDecay) || math.IsInf(c.LevelWeightDecay, 0) || c.LevelWeightDecay < 0 {
		return fmt.Errorf("%w: levelWeightDecay must be a finite value >= 0, got %v", ErrConfiguration, c.LevelWeightDecay)
	}
	if c.Window < 0 {
		return fmt.Errorf("%w: window must be >= 0, got %d", ErrConfiguration, c.Window)
	}
	return nil
}

// Estimator folds the level-weighted RMS of detail coefficients into an
// EMA. Calculate has a single writer; CurrentValue may be read from any
// number of goroutines.
type Estimator struct {
	cfg   Config
	alpha float64

	mu      sync.Mutex
	ema     float64
	updates int

	current atomic.Uint64 // float64 bits of the last published EMA
}

// New validates cfg and returns an estimator with no history.
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{
		cfg:   cfg,
		alpha: 2 / (float64(cfg.SmoothingPeriod) + 1),
	}, nil
}

func (e *Estimator) Config() Config { return e.cfg }

// LevelWeight is 1/(1+(level−1)·decay); level 1 always weighs 1.
func (e *Estimator) LevelWeight(level int) float64 {
	return 1 / (1 + float64(level-1)*e.cfg.LevelWeightDecay)
}

// Calculate snapshots details[0:levels] (details[0] is level 1), sums the
// weighted per-level RMS and folds the sum into the EMA. The first call seeds
// the EMA with the raw sum. The returned value is finite and non-negative.
func (e *Estimator) Calculate(details [][]float64, levels int) float64 {
	// snapshot the outer slice first so a concurrent append/reslice by the
	// owner cannot move the bound under us
	outer := append([][]float64(nil), details...)
	if levels > len(outer) {
		levels = len(outer)
	}

	var sum float64
	for lvl := 1; lvl <= levels; lvl++ {
		snap := append([]float64(nil), outer[lvl-1]...)
		sum += e.LevelWeight(lvl) * rms(snap, e.cfg.Window)
	}
	if !isFinite(sum) || sum < 0 {
		sum = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if levels < 1 {
		return e.ema
	}
	if e.updates == 0 {
		e.ema = sum
	} else {
		e.ema += e.alpha * (sum - e.ema)
	}
	if !isFinite(e.ema) || e.ema < 0 {
		e.ema = 0
	}
	e.updates++
	e.current.Store(math.Float64bits(e.ema))
	return e.ema
}

// CurrentValue returns the last published EMA.
func (e *Estimator) CurrentValue() float64 {
	return math.Float64frombits(e.current.Load())
}

// Updates returns how many times Calculate folded a new sum.
func (e *Estimator) Updates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updates
}

// Reset drops the EMA history.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ema = 0
	e.updates = 0
	e.current.Store(0)
}

// rms over the trailing window (0 = all), skipping non-finite values.
func rms(x []float64, window int) float64 {
	if window > 0 && window < len(x) {
		x = x[len(x)-window:]
	}
	var ss float64
	var n int
	for _, v := range x {
		if isFinite(v) {
			ss += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	r := math.Sqrt(ss / float64(n))
	if !isFinite(r) {
		return 0
	}
	return r
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
