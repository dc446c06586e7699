// Package pipeline runs one processing step per bar: decompose the latest
// window, shrink the configured levels, reconstruct the denoised series and
// the trend, and update the wavelet volatility.
package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wavelet-signal-go/market"
	"wavelet-signal-go/metrics"
	"wavelet-signal-go/shrink"
	"wavelet-signal-go/transform"
	"wavelet-signal-go/volatility"
)

var (
	ErrWarmingUp  = errors.New("window not full yet")
	ErrInvalidBar = errors.New("invalid bar")
)

// Output is the result of one step. It is immutable once published.
type Output struct {
	Time       time.Time
	Denoised   []float64
	Trend      []float64
	Last       float64 // newest denoised value
	TrendLast  float64
	Volatility float64
	Thresholds []shrink.Spec
}

// Pipeline is driven by a single writer (OnBar/Process/Reconfigure). Latest
// and Volatility may be called from any goroutine.
type Pipeline struct {
	mu        sync.Mutex
	cfg       Config
	settings  settings
	adapter   *transform.Adapter
	estimator atomic.Pointer[volatility.Estimator]
	window    *market.Window

	logger  *zap.Logger
	metrics *metrics.Collector

	latest atomic.Pointer[Output]
	steps  atomic.Uint64
}

type Option func(*Pipeline)

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = c }
}

// New validates cfg and builds the pipeline.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	s, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	adapter, err := transform.NewAdapter(s.family)
	if err != nil {
		return nil, err
	}
	est, err := volatility.New(cfg.Volatility)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:      cfg,
		settings: s,
		adapter:  adapter,
		window:   market.NewWindow(cfg.WindowSize),
		logger:   zap.NewNop(),
	}
	p.estimator.Store(est)
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns a copy of the active configuration.
func (p *Pipeline) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.cfg
	c.ShrinkLevels = slices.Clone(p.cfg.ShrinkLevels)
	return c
}

// Latest returns the last published output, or nil before the first step.
func (p *Pipeline) Latest() *Output { return p.latest.Load() }

// Volatility returns the last published volatility.
func (p *Pipeline) Volatility() float64 { return p.estimator.Load().CurrentValue() }

// Steps returns the number of completed steps.
func (p *Pipeline) Steps() uint64 { return p.steps.Load() }

// OnBar appends the bar close to the rolling window and processes it once
// the window is full.
func (p *Pipeline) OnBar(b market.Bar) (*Output, error) {
	if !b.Valid() {
		p.metrics.ObserveError("invalid_bar")
		return nil, fmt.Errorf("%w: %+v", ErrInvalidBar, b)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window.Push(b.Close)
	if !p.window.Ready() {
		return nil, fmt.Errorf("%w: %d/%d samples", ErrWarmingUp, p.window.Len(), p.window.Cap())
	}
	return p.process(p.window.Snapshot(), b.Ts)
}

// Process runs one step on an explicit window of samples.
func (p *Pipeline) Process(samples []float64) (*Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.process(samples, time.Now())
}

func (p *Pipeline) process(samples []float64, ts time.Time) (*Output, error) {
	start := time.Now()
	levels := p.cfg.Levels

	res, err := p.adapter.Transform(samples, levels)
	if err != nil {
		p.metrics.ObserveError("transform")
		p.logger.Error("transform failed", zap.Error(err), zap.Int("samples", len(samples)))
		return nil, err
	}

	// raw (pre-shrinkage) details feed the volatility estimate
	raw := res.Details()
	specs := shrink.Plan(p.settings.rule, p.settings.mode, raw, p.settings.shrinkLevels)
	if err := res.ApplyPlan(specs); err != nil {
		p.metrics.ObserveError("shrink")
		return nil, err
	}

	denoised, err := res.Reconstruct(p.cfg.ReconstructLevel)
	if err != nil {
		p.metrics.ObserveError("reconstruct")
		return nil, err
	}
	trend, err := res.ReconstructApproximation()
	if err != nil {
		p.metrics.ObserveError("reconstruct")
		return nil, err
	}
	vol := p.estimator.Load().Calculate(raw, levels)

	out := &Output{
		Time:       ts,
		Denoised:   denoised,
		Trend:      trend,
		Last:       denoised[len(denoised)-1],
		TrendLast:  trend[len(trend)-1],
		Volatility: vol,
		Thresholds: specs,
	}
	p.latest.Store(out)
	p.steps.Add(1)

	elapsed := time.Since(start)
	p.metrics.ObserveStep(elapsed, vol, out.Last)
	for _, s := range specs {
		p.metrics.ObserveThreshold(s.Level, s.Value)
	}
	p.metrics.ObserveCache(res.CacheStats())

	p.logger.Debug("step processed",
		zap.Int("samples", len(samples)),
		zap.Float64("last", out.Last),
		zap.Float64("trend", out.TrendLast),
		zap.Float64("volatility", vol),
		zap.Duration("elapsed", elapsed))
	return out, nil
}

// Reconfigure swaps in cfg between steps. Volatility history survives when
// its parameters are unchanged; the sample window keeps its newest samples.
func (p *Pipeline) Reconfigure(cfg Config) error {
	s, err := cfg.compile()
	if err != nil {
		return err
	}
	adapter, err := transform.NewAdapter(s.family)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg.Volatility != p.cfg.Volatility {
		est, err := volatility.New(cfg.Volatility)
		if err != nil {
			return err
		}
		p.estimator.Store(est)
	}
	if cfg.WindowSize != p.window.Cap() {
		p.window.Resize(cfg.WindowSize)
	}
	p.adapter = adapter
	p.settings = s
	p.cfg = cfg
	p.cfg.ShrinkLevels = slices.Clone(cfg.ShrinkLevels)

	p.logger.Info("pipeline reconfigured",
		zap.String("family", string(s.family)),
		zap.Int("levels", cfg.Levels),
		zap.Int("window", cfg.WindowSize),
		zap.Stringer("rule", s.rule),
		zap.Stringer("mode", s.mode))
	return nil
}
