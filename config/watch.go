package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"wavelet-signal-go/metrics"
)

// Watcher 监听配置文件变化，校验通过后回调新配置。
// 监听所在目录而非文件本身，编辑器的 rename 保存也能捕获。
type Watcher struct {
	Path     string
	Debounce time.Duration // 连续写入合并为一次重载

	logger  *zap.Logger
	metrics *metrics.Collector
}

type WatchOption func(*Watcher)

func WithLogger(l *zap.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithMetrics(c *metrics.Collector) WatchOption {
	return func(w *Watcher) { w.metrics = c }
}

func NewWatcher(path string, opts ...WatchOption) *Watcher {
	w := &Watcher{
		Path:     path,
		Debounce: 500 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start blocks until ctx is done. onUpdate receives every config that loads
// and validates; an error from onUpdate is logged and counted as rejected.
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// 只处理写入和创建事件
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			w.reload(onUpdate)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			// 记录错误但继续监听
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(onUpdate func(AppConfig) error) {
	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		w.count("invalid")
		w.logger.Error("config reload failed, keeping current config", zap.String("path", w.Path), zap.Error(err))
		return
	}
	if onUpdate != nil {
		if err := onUpdate(cfg); err != nil {
			w.count("rejected")
			w.logger.Error("config update rejected", zap.Error(err))
			return
		}
	}
	w.count("ok")
	w.logger.Info("config reloaded", zap.String("path", w.Path))
}

func (w *Watcher) count(result string) {
	if w.metrics != nil {
		w.metrics.ConfigReloads.WithLabelValues(result).Inc()
	}
}
