package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"wavelet-signal-go/config"
	"wavelet-signal-go/feed"
	"wavelet-signal-go/infrastructure/logger"
	"wavelet-signal-go/market"
	"wavelet-signal-go/metrics"
	"wavelet-signal-go/monitor/logschema"
	"wavelet-signal-go/pipeline"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	symbol := flag.String("symbol", "", "交易对（覆盖配置，例如 BTCUSDT）")
	watch := flag.Bool("watch", true, "监听配置文件并热更新 pipeline 参数")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *symbol != "" {
		cfg.Feed.Symbol = strings.ToUpper(*symbol)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()
	lg = lg.WithFields(map[string]interface{}{"env": cfg.Env, "symbol": cfg.Feed.Symbol})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	col, err := metrics.NewCollector(reg)
	if err != nil {
		lg.Fatal("metrics init failed", zap.Error(err))
	}
	srv := metrics.StartServer(cfg.Metrics.Addr, reg, lg.Named("metrics"))

	pipe, err := pipeline.New(cfg.Pipeline,
		pipeline.WithLogger(lg.Named("pipeline")),
		pipeline.WithMetrics(col))
	if err != nil {
		lg.Fatal("pipeline init failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	publisher := market.NewPublisher()
	bars := publisher.Subscribe(256)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for bar := range bars {
			out, err := pipe.OnBar(bar)
			switch {
			case errors.Is(err, pipeline.ErrWarmingUp):
				lg.Debug("warming up", zap.Error(err))
			case err != nil:
				logFailure(lg, "bar_failed", err, map[string]interface{}{"barTs": bar.Ts})
			default:
				logEvent(lg, "bar_processed", map[string]interface{}{
					"barTs":      bar.Ts,
					"close":      bar.Close,
					"denoised":   out.Last,
					"trend":      out.TrendLast,
					"volatility": out.Volatility,
				})
			}
		}
	}()

	stream := feed.NewStream(cfg.Feed.Endpoint, cfg.Feed.Symbol, cfg.Feed.Interval, feed.Kind(cfg.Feed.Kind),
		feed.WithLogger(lg.Named("feed")),
		feed.WithMetrics(col))
	stream.MaxRetries = cfg.Feed.MaxRetries
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := stream.Run(ctx, func(b market.Bar) {
			if dropped := publisher.Publish(b); dropped > 0 {
				lg.Warn("bar dropped, pipeline busy", zap.Time("barTs", b.Ts))
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("feed stopped", zap.Error(err))
			cancel()
		}
	}()

	if *watch {
		watcher := config.NewWatcher(*cfgPath,
			config.WithLogger(lg.Named("config")),
			config.WithMetrics(col))
		feedCfg := cfg.Feed
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := watcher.Start(ctx, func(next config.AppConfig) error {
				if *symbol != "" {
					next.Feed.Symbol = feedCfg.Symbol
				}
				if next.Feed != feedCfg {
					lg.Warn("feed settings changed, restart required to apply")
				}
				return pipe.Reconfigure(next.Pipeline)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("config watcher stopped", zap.Error(err))
			}
		}()
	}

	notify(lg, daemon.SdNotifyReady)
	notify(lg, fmt.Sprintf("STATUS=streaming %s %s", cfg.Feed.Symbol, cfg.Feed.Interval))
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchdogLoop(ctx, lg, interval/2, stream)
		}()
	}
	logEvent(lg, "runner_start", map[string]interface{}{
		"family":  cfg.Pipeline.Family,
		"levels":  cfg.Pipeline.Levels,
		"window":  cfg.Pipeline.WindowSize,
		"metrics": cfg.Metrics.Addr,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	notify(lg, daemon.SdNotifyStopping)
	cancel()

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		done()
	}
	publisher.Close()
	wg.Wait()
	logEvent(lg, "runner_exit", map[string]interface{}{"steps": pipe.Steps()})
}

// watchdogLoop 仅在行情连接正常时喂狗，长时间断线交给 systemd 重启。
func watchdogLoop(ctx context.Context, lg *logger.Logger, every time.Duration, stream *feed.Stream) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stream.Connected() {
				notify(lg, daemon.SdNotifyWatchdog)
			}
		}
	}
}

// logEvent 校验事件字段后输出 step_event。
func logEvent(lg *logger.Logger, event string, fields map[string]interface{}) {
	if err := logschema.Validate(event, fields); err != nil {
		lg.Warn("log schema mismatch", zap.Error(err))
	}
	lg.LogStep(event, fields)
}

// logFailure 同样校验 schema，走 error 级别的 error_event。
func logFailure(lg *logger.Logger, event string, cause error, fields map[string]interface{}) {
	fields["event"] = event
	fields["error"] = cause.Error()
	if err := logschema.Validate(event, fields); err != nil {
		lg.Warn("log schema mismatch", zap.Error(err))
	}
	lg.LogError(cause, fields)
}

func notify(lg *logger.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		lg.Warn("sd_notify failed", zap.String("state", state), zap.Error(err))
	}
}
