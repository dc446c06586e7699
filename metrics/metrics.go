// Package metrics provides Prometheus metrics for the denoising pipeline
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector 汇总 pipeline 的运行指标
type Collector struct {
	Steps          prometheus.Counter
	StepErrors     *prometheus.CounterVec
	StepDuration   prometheus.Histogram
	Volatility     prometheus.Gauge
	Denoised       prometheus.Gauge
	Threshold      *prometheus.GaugeVec
	CacheLookups   *prometheus.CounterVec
	FeedReconnects prometheus.Counter
	FeedBars       prometheus.Counter
	ConfigReloads  *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them on reg. A nil reg
// uses the default registerer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsp_steps_total",
			Help: "处理步骤数量（每根 bar 一次）",
		}),
		StepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsp_step_errors_total",
			Help: "处理步骤错误数量",
		}, []string{"kind"}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wsp_step_duration_seconds",
			Help:    "单步 transform/shrink/reconstruct/volatility 耗时",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),
		Volatility: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsp_volatility",
			Help: "平滑后的小波波动率",
		}),
		Denoised: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsp_denoised_last",
			Help: "去噪序列最新值",
		}),
		Threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wsp_threshold",
			Help: "各层收缩阈值",
		}, []string{"level"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsp_reconstruct_cache_total",
			Help: "重构缓存命中/未命中次数",
		}, []string{"result"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsp_feed_reconnects_total",
			Help: "行情 WS 重连次数",
		}),
		FeedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsp_feed_bars_total",
			Help: "收到的已闭合 bar 数量",
		}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsp_config_reloads_total",
			Help: "配置热更新次数",
		}, []string{"result"}),
	}
	for _, col := range []prometheus.Collector{
		c.Steps, c.StepErrors, c.StepDuration, c.Volatility, c.Denoised,
		c.Threshold, c.CacheLookups, c.FeedReconnects, c.FeedBars, c.ConfigReloads,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// ObserveStep records one successful processing step.
func (c *Collector) ObserveStep(elapsed time.Duration, volatility, last float64) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	c.StepDuration.Observe(elapsed.Seconds())
	c.Volatility.Set(volatility)
	c.Denoised.Set(last)
}

func (c *Collector) ObserveThreshold(level int, value float64) {
	if c == nil {
		return
	}
	c.Threshold.WithLabelValues(strconv.Itoa(level)).Set(value)
}

// ObserveCache adds reconstruction cache counts from one result.
func (c *Collector) ObserveCache(hits, misses uint64) {
	if c == nil {
		return
	}
	c.CacheLookups.WithLabelValues("hit").Add(float64(hits))
	c.CacheLookups.WithLabelValues("miss").Add(float64(misses))
}

func (c *Collector) ObserveError(kind string) {
	if c == nil {
		return
	}
	c.StepErrors.WithLabelValues(kind).Inc()
}

// StartServer 启动Prometheus指标服务器；addr 为空时不启动。
// 监听失败（如端口被占用）记 error 日志，不影响主流程。
func StartServer(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return srv
}
