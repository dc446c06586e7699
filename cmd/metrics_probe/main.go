package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"wavelet-signal-go/market"
	"wavelet-signal-go/metrics"
	"wavelet-signal-go/pipeline"
)

// 不连交易所，用合成价格驱动 pipeline，便于验证 Prometheus/Grafana 上的 wsp_* 指标。
func main() {
	addr := flag.String("metricsAddr", ":9100", "Prometheus 指标监听地址")
	every := flag.Duration("every", 200*time.Millisecond, "合成 bar 间隔")
	noise := flag.Float64("noise", 0.2, "合成价格噪声标准差")
	family := flag.String("family", "db2", "小波族")
	flag.Parse()

	col, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics init failed: %v\n", err)
		os.Exit(1)
	}
	srv := metrics.StartServer(*addr, prometheus.DefaultGatherer, zap.NewExample())
	fmt.Printf("metrics_probe started at %s\n", *addr)

	cfg := pipeline.DefaultConfig()
	cfg.Family = *family
	pipe, err := pipeline.New(cfg, pipeline.WithMetrics(col))
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline init failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			if srv != nil {
				_ = srv.Close()
			}
			fmt.Printf("metrics_probe stopped after %d steps\n", pipe.Steps())
			return
		case ts := <-ticker.C:
			px := 100 + 2*math.Sin(2*math.Pi*float64(i)/64) + *noise*rng.NormFloat64()
			_, _ = pipe.OnBar(market.Bar{Open: px, High: px, Low: px, Close: px, Ts: ts})
		}
	}
}
