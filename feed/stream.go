// Package feed subscribes to a binance combined websocket stream and turns it
// into closed market bars.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wavelet-signal-go/market"
	"wavelet-signal-go/metrics"
)

// DefaultEndpoint binance U 本位合约行情 WS。
const DefaultEndpoint = "wss://fstream.binance.com"

// Kind 选择订阅的数据源。
type Kind string

const (
	KindKline    Kind = "kline"    // 交易所推送的 kline，只转发已收盘的 bar
	KindAggTrade Kind = "aggTrade" // 本地用 BarAggregator 聚合成交
)

// ErrRetriesExhausted is returned by Run when MaxRetries consecutive dials fail.
var ErrRetriesExhausted = errors.New("feed: reconnection retries exhausted")

// Handler 接收已收盘的 bar。
type Handler func(market.Bar)

// Stream 管理一个 combined stream 连接，含自动重连。
type Stream struct {
	Endpoint     string
	Symbol       string
	Interval     string
	Kind         Kind
	Dialer       *websocket.Dialer
	ReadTimeout  time.Duration
	RetryBackoff time.Duration
	MaxRetries   int // 0 表示无限重试

	logger    *zap.Logger
	metrics   *metrics.Collector
	connected atomic.Bool
}

type Option func(*Stream)

func WithLogger(l *zap.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Stream) { s.metrics = c }
}

func NewStream(endpoint, symbol, interval string, kind Kind, opts ...Option) *Stream {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if kind == "" {
		kind = KindKline
	}
	s := &Stream{
		Endpoint:     endpoint,
		Symbol:       symbol,
		Interval:     interval,
		Kind:         kind,
		Dialer:       websocket.DefaultDialer,
		ReadTimeout:  30 * time.Second,
		RetryBackoff: 3 * time.Second,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connected reports whether a websocket connection is currently open.
func (s *Stream) Connected() bool { return s.connected.Load() }

// URL 构建 combined stream 地址。
func (s *Stream) URL() (string, error) {
	if s.Symbol == "" {
		return "", fmt.Errorf("symbol required")
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", s.Endpoint, err)
	}
	u.Path = "/stream"
	q := u.Query()
	q.Set("streams", StreamName(s.Kind, s.Symbol, s.Interval))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run 连接并读取消息直到 ctx 结束；断线后按线性退避重连。
func (s *Stream) Run(ctx context.Context, handler Handler) error {
	addr, err := s.URL()
	if err != nil {
		return err
	}
	decode, agg, err := s.decoder()
	if err != nil {
		return err
	}

	retries := 0
	everConnected := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := s.Dialer.DialContext(ctx, addr, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			retries++
			if s.MaxRetries > 0 && retries > s.MaxRetries {
				return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, s.MaxRetries, err)
			}
			backoff := time.Duration(retries) * s.RetryBackoff
			s.logger.Warn("ws dial failed",
				zap.Error(err), zap.Int("attempt", retries), zap.Duration("retryIn", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			continue
		}
		if everConnected && s.metrics != nil {
			s.metrics.FeedReconnects.Inc()
		}
		everConnected = true
		retries = 0
		s.connected.Store(true)
		s.logger.Info("ws connected", zap.String("url", addr))

		err = s.readLoop(ctx, conn, decode, handler)

		s.connected.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// 断线期间的成交收不到，未闭合的 bar 不完整，丢弃
		if open := flushOpen(agg); open != nil {
			s.logger.Warn("partial bar discarded", zap.Time("barTs", open.Ts))
		}
		s.logger.Warn("ws disconnected, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, s.RetryBackoff) {
			return ctx.Err()
		}
	}
}

// decoder returns a per-run message decoder. For aggTrade a fresh aggregator
// is used so a restart never mixes bars from different runs; it is returned
// too so Run can drop the open bar on disconnect. Kline mode has none.
func (s *Stream) decoder() (func([]byte) (*market.Bar, error), *market.BarAggregator, error) {
	switch s.Kind {
	case KindKline:
		return func(raw []byte) (*market.Bar, error) {
			bar, closed, err := ParseKline(raw)
			if err != nil || !closed {
				return nil, err
			}
			return &bar, nil
		}, nil, nil
	case KindAggTrade:
		interval, err := ParseInterval(s.Interval)
		if err != nil {
			return nil, nil, err
		}
		agg := market.NewBarAggregator(interval)
		return func(raw []byte) (*market.Bar, error) {
			tr, err := ParseAggTrade(raw)
			if err != nil {
				return nil, err
			}
			return agg.OnTrade(tr.Price, tr.Qty, tr.Ts), nil
		}, agg, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed kind %q", s.Kind)
	}
}

func flushOpen(agg *market.BarAggregator) *market.Bar {
	if agg == nil {
		return nil
	}
	return agg.Flush()
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, decode func([]byte) (*market.Bar, error), handler Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		bar, err := decode(msg)
		if err != nil {
			s.logger.Warn("ws message dropped", zap.Error(err), zap.ByteString("raw", msg))
			continue
		}
		if bar == nil {
			continue
		}
		if s.metrics != nil {
			s.metrics.FeedBars.Inc()
		}
		if handler != nil {
			handler(*bar)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
